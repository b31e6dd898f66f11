package authorization

import (
	"context"
	"fmt"
	"testing"

	"github.com/boardstack/boardstack/internal/permission"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzEnv struct {
	svc      Service
	enforcer *casbin.SyncedEnforcer
	space    tenantctx.Space
	node     *snowflake.Node
}

func setupAuthz(t *testing.T) *authzEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(tenantspace.Models()...))

	enforcer, err := NewEnforcer(gdb)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
	return &authzEnv{
		svc:      svc,
		enforcer: enforcer,
		space:    tenantctx.Space{Slug: "acme", DB: gdb},
		node:     node,
	}
}

func (e *authzEnv) addMember(t *testing.T, role string) string {
	t.Helper()
	member := tenantspace.Member{
		ID:           e.node.Generate(),
		Email:        fmt.Sprintf("%s@acme.test", role),
		Name:         role,
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, e.space.DB.Create(&member).Error)
	return "member:" + member.ID.String()
}

func TestAuthorizeSystemActor(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Authorize(ctx, env.space, "system", "boards", "create"))
	require.NoError(t, env.svc.Authorize(ctx, env.space, "system", "settings", "manage"))
}

func TestAuthorizeOwner(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()
	owner := env.addMember(t, permission.RoleOwner)

	require.NoError(t, env.svc.Authorize(ctx, env.space, owner, "boards", "delete"))
	require.NoError(t, env.svc.Authorize(ctx, env.space, owner, "settings", "manage"))
}

func TestAuthorizeViewerDeniedWrites(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()
	viewer := env.addMember(t, permission.RoleViewer)

	require.NoError(t, env.svc.Authorize(ctx, env.space, viewer, "boards", "view"))
	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, viewer, "boards", "create"), ErrForbidden)
	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, viewer, "tasks", "edit"), ErrForbidden)
}

func TestAuthorizeMemberBoundaries(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()
	member := env.addMember(t, permission.RoleMember)

	require.NoError(t, env.svc.Authorize(ctx, env.space, member, "boards", "create"))
	require.NoError(t, env.svc.Authorize(ctx, env.space, member, "tasks", "edit"))
	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, member, "boards", "delete"), ErrForbidden)
	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, member, "users", "invite"), ErrForbidden)
}

func TestAuthorizeRoleChangeRebinds(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()
	actor := env.addMember(t, permission.RoleViewer)

	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, actor, "boards", "create"), ErrForbidden)

	// promote the member; the stale binding is replaced on next check
	require.NoError(t, env.space.DB.Model(&tenantspace.Member{}).
		Where("role = ?", permission.RoleViewer).
		Update("role", permission.RoleAdmin).Error)

	require.NoError(t, env.svc.Authorize(ctx, env.space, actor, "boards", "create"))
}

func TestAuthorizeInvalidActor(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()

	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, "", "boards", "view"), ErrInvalidActor)
	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, "stranger", "boards", "view"), ErrInvalidActor)
	require.ErrorIs(t, env.svc.Authorize(ctx, env.space, "member:nope", "boards", "view"), ErrInvalidActor)
}

func TestAuthorizeUnknownMember(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()

	err := env.svc.Authorize(ctx, env.space, "member:123456789", "boards", "view")
	require.Error(t, err)
}

func TestForgetRemovesTenantBindings(t *testing.T) {
	env := setupAuthz(t)
	ctx := context.Background()
	viewer := env.addMember(t, permission.RoleViewer)

	require.NoError(t, env.svc.Authorize(ctx, env.space, viewer, "boards", "view"))

	require.NoError(t, Forget(env.enforcer, "acme"))

	groups, err := env.enforcer.GetFilteredGroupingPolicy(2, "tenant:acme")
	require.NoError(t, err)
	require.Empty(t, groups)
}
