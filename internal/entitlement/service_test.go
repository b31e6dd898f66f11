package entitlement

import (
	"context"
	"fmt"
	"testing"

	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/plan"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	tenantrepo "github.com/boardstack/boardstack/internal/tenant/repository"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type entitlementEnv struct {
	svc    *Service
	spaces *tenantspace.Manager
	node   *snowflake.Node
}

func setupEntitlements(t *testing.T, planSlug string) *entitlementEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&tenantdomain.Tenant{}, &plan.Plan{}))

	ctx := context.Background()
	plans := plan.NewRepository(gdb)
	require.NoError(t, plans.Upsert(ctx, plan.Plan{
		Slug:     "free",
		Name:     "Free",
		Currency: "usd",
		Interval: "month",
		Features: datatypes.JSONMap{
			plan.FeatureMaxTeams:         float64(1),
			plan.FeatureMaxUsers:         float64(3),
			plan.FeatureMaxBoards:        float64(3),
			plan.FeatureMaxTasksPerBoard: float64(2),
		},
		IsActive: true,
	}))
	require.NoError(t, plans.Upsert(ctx, plan.Plan{
		Slug:       "pro-monthly",
		Name:       "Pro Monthly",
		PriceCents: 2900,
		Currency:   "usd",
		Interval:   "month",
		Features:   datatypes.JSONMap{},
		IsActive:   true,
	}))

	tenants := tenantrepo.NewRepository(gdb)
	require.NoError(t, tenants.Reserve(ctx, tenantdomain.Tenant{
		Slug:               "acme",
		Name:               "Acme Inc",
		State:              tenantdomain.StateActive,
		PlanSlug:           planSlug,
		SubscriptionStatus: tenantdomain.SubscriptionNone,
		Settings:           datatypes.JSONMap{},
	}))

	cfg := config.Config{DBType: "sqlite"}
	spaces := tenantspace.NewManager(cfg, db.NewScopedOpener(cfg, gdb), zap.NewNop())
	_, err = spaces.Allocate(ctx, "acme")
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		Tenants: tenants,
		Plans:   plans,
		Spaces:  spaces,
		Log:     zap.NewNop(),
	})
	return &entitlementEnv{svc: svc, spaces: spaces, node: node}
}

func (e *entitlementEnv) addBoards(t *testing.T, n int) {
	t.Helper()
	space, err := e.spaces.Open(context.Background(), "acme")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		board := tenantspace.Board{ID: e.node.Generate(), Name: fmt.Sprintf("Board %d", i), Color: "#3B82F6"}
		require.NoError(t, space.DB.Create(&board).Error)
	}
}

func TestCheckLimitUnderCap(t *testing.T) {
	env := setupEntitlements(t, "free")
	env.addBoards(t, 2)

	decision, err := env.svc.CheckLimit(context.Background(), "acme", plan.FeatureMaxBoards)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(3), decision.Limit)
	assert.Equal(t, int64(2), decision.Usage)
}

func TestCheckLimitAtCap(t *testing.T) {
	env := setupEntitlements(t, "free")
	env.addBoards(t, 3)

	decision, err := env.svc.CheckLimit(context.Background(), "acme", plan.FeatureMaxBoards)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(3), decision.Usage)
}

func TestCheckLimitUnlimitedPlan(t *testing.T) {
	env := setupEntitlements(t, "pro-monthly")
	env.addBoards(t, 10)

	decision, err := env.svc.CheckLimit(context.Background(), "acme", plan.FeatureMaxBoards)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, plan.Unlimited, decision.Limit)
}

func TestCheckLimitUnknownFeature(t *testing.T) {
	env := setupEntitlements(t, "free")

	// keys absent from the plan mean unlimited, so no usage query runs
	decision, err := env.svc.CheckLimit(context.Background(), "acme", "max_widgets")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, plan.Unlimited, decision.Limit)
}

func TestCheckLimitUnknownTenant(t *testing.T) {
	env := setupEntitlements(t, "free")

	_, err := env.svc.CheckLimit(context.Background(), "ghost", plan.FeatureMaxBoards)
	require.ErrorIs(t, err, tenantdomain.ErrNotFound)
}

func TestCheckLimitFailsClosedOnUnresolvablePlan(t *testing.T) {
	env := setupEntitlements(t, "retired-plan")

	_, err := env.svc.CheckLimit(context.Background(), "acme", plan.FeatureMaxBoards)
	require.ErrorIs(t, err, plan.ErrNotFound)
}

func TestCheckTaskLimit(t *testing.T) {
	env := setupEntitlements(t, "free")
	ctx := context.Background()

	space, err := env.spaces.Open(ctx, "acme")
	require.NoError(t, err)

	board := tenantspace.Board{ID: env.node.Generate(), Name: "Sprint", Color: "#3B82F6"}
	require.NoError(t, space.DB.Create(&board).Error)
	other := tenantspace.Board{ID: env.node.Generate(), Name: "Backlog", Color: "#3B82F6"}
	require.NoError(t, space.DB.Create(&other).Error)

	for i := 0; i < 2; i++ {
		task := tenantspace.Task{ID: env.node.Generate(), BoardID: board.ID, Title: fmt.Sprintf("Task %d", i), Status: "todo"}
		require.NoError(t, space.DB.Create(&task).Error)
	}

	decision, err := env.svc.CheckTaskLimit(ctx, "acme", board.ID)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, int64(2), decision.Usage)

	// the cap is per board, not per tenant
	decision, err = env.svc.CheckTaskLimit(ctx, "acme", other.ID)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(0), decision.Usage)
}
