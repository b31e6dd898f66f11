package board

import (
	"context"
	"fmt"
	"testing"

	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupBoards(t *testing.T) (*Service, *tenantspace.Manager) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	cfg := config.Config{DBType: "sqlite"}
	spaces := tenantspace.NewManager(cfg, db.NewScopedOpener(cfg, gdb), zap.NewNop())
	_, err = spaces.Allocate(context.Background(), "acme")
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(spaces, node, zap.NewNop()), spaces
}

func TestCreateAndListBoards(t *testing.T) {
	svc, _ := setupBoards(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "acme", "Sprint 1", "#FF0000")
	require.NoError(t, err)
	assert.Equal(t, "Sprint 1", created.Name)
	assert.Equal(t, "#FF0000", created.Color)

	withDefault, err := svc.Create(ctx, "acme", "  Backlog  ", "")
	require.NoError(t, err)
	assert.Equal(t, "Backlog", withDefault.Name)
	assert.Equal(t, "#3B82F6", withDefault.Color)

	boards, err := svc.List(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, boards, 2)
}

func TestCreateBoardRejectsEmptyName(t *testing.T) {
	svc, _ := setupBoards(t)

	_, err := svc.Create(context.Background(), "acme", "   ", "")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestDeleteBoardCascadesTasks(t *testing.T) {
	svc, spaces := setupBoards(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "acme", "Sprint 1", "")
	require.NoError(t, err)

	space, err := spaces.Open(ctx, "acme")
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	task := tenantspace.Task{ID: node.Generate(), BoardID: created.ID, Title: "Ship it", Status: "todo"}
	require.NoError(t, space.DB.Create(&task).Error)

	require.NoError(t, svc.Delete(ctx, "acme", created.ID))

	var taskCount int64
	require.NoError(t, space.DB.Model(&tenantspace.Task{}).Count(&taskCount).Error)
	assert.Zero(t, taskCount)

	boards, err := svc.List(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, boards)
}

func TestDeleteBoardNotFound(t *testing.T) {
	svc, _ := setupBoards(t)

	err := svc.Delete(context.Background(), "acme", snowflake.ID(42))
	require.ErrorIs(t, err, ErrNotFound)
}
