package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/boardstack/boardstack/internal/auth/password"
	"github.com/boardstack/boardstack/internal/authorization"
	"github.com/boardstack/boardstack/internal/billing"
	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/permission"
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

type canceledCall struct {
	subscriptionID string
	atPeriodEnd    bool
}

type gatewayStub struct {
	canceled  []canceledCall
	cancelErr error
}

func (g *gatewayStub) EnsureCustomer(ctx context.Context, existingID, slug, name, email string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}
	return "cus_test", nil
}

func (g *gatewayStub) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://billing.example/cs_test"}, nil
}

func (g *gatewayStub) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.example/portal", nil
}

func (g *gatewayStub) ChangePlan(ctx context.Context, subscriptionID, priceID string) error {
	return nil
}

func (g *gatewayStub) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	g.canceled = append(g.canceled, canceledCall{subscriptionID: subscriptionID, atPeriodEnd: atPeriodEnd})
	return g.cancelErr
}

type testEnv struct {
	svc     *Service
	tenants tenantdomain.Repository
	spaces  *tenantspace.Manager
	gateway *gatewayStub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&tenantdomain.Tenant{},
		&tenantdomain.SubscriptionEvent{},
		&plan.Plan{},
	))

	cfg := config.Config{
		DBType:           "sqlite",
		BaseDomain:       "boardstack.test",
		DefaultPlan:      "free",
		ProvisionTimeout: 10 * time.Second,
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	enforcer, err := authorization.NewEnforcer(gdb)
	require.NoError(t, err)

	plans := plan.NewRepository(gdb)
	require.NoError(t, plans.Upsert(context.Background(), plan.Plan{
		Slug:     "free",
		Name:     "Free",
		Currency: "usd",
		Interval: "month",
		Features: datatypes.JSONMap{"max_boards": float64(3)},
		IsActive: true,
	}))

	log := zap.NewNop()
	tenants := tenantrepo.NewRepository(gdb)
	spaces := tenantspace.NewManager(cfg, db.NewScopedOpener(cfg, gdb), log)
	gateway := &gatewayStub{}

	svc := New(Params{
		Config:   cfg,
		Tenants:  tenants,
		Plans:    plans,
		Spaces:   spaces,
		Perms:    permission.NewBootstrapper(node, log),
		Gateway:  gateway,
		Enforcer: enforcer,
		Node:     node,
		Log:      log,
	})

	return &testEnv{svc: svc, tenants: tenants, spaces: spaces, gateway: gateway}
}

func validRequest() Request {
	return Request{
		Name:          "Acme Inc",
		Slug:          "acme",
		OwnerName:     "Ada Owner",
		OwnerEmail:    "Ada@Acme.test",
		OwnerPassword: "correct horse battery",
	}
}

func TestProvisionActivatesTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant, err := env.svc.Provision(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, "acme", tenant.Slug)
	require.Equal(t, tenantdomain.StateActive, tenant.State)
	require.Equal(t, "free", tenant.PlanSlug)
	require.Equal(t, tenantdomain.SubscriptionNone, tenant.SubscriptionStatus)

	space, err := env.spaces.Open(ctx, "acme")
	require.NoError(t, err)

	var founder tenantspace.Member
	require.NoError(t, space.DB.First(&founder).Error)
	assert.Equal(t, "ada@acme.test", founder.Email)
	assert.Equal(t, permission.RoleOwner, founder.Role)
	assert.NoError(t, password.Verify(founder.PasswordHash, "correct horse battery"))

	var board tenantspace.Board
	require.NoError(t, space.DB.First(&board).Error)
	assert.Equal(t, "Getting Started", board.Name)
	assert.Equal(t, "#3B82F6", board.Color)

	var permCount int64
	require.NoError(t, space.DB.Model(&tenantspace.Permission{}).Count(&permCount).Error)
	assert.Equal(t, int64(len(permission.Permissions)), permCount)

	events, err := env.tenants.ListEvents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, tenantdomain.EventCreated, events[0].Kind)
	assert.Equal(t, "free", events[0].ToPlan)
}

func TestProvisionDerivesSlugFromName(t *testing.T) {
	env := newTestEnv(t)

	req := validRequest()
	req.Slug = ""
	req.Name = "Blue Bottle Boards"

	tenant, err := env.svc.Provision(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "blue-bottle-boards", tenant.Slug)
}

func TestProvisionRetriesWithSuffix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.tenants.Reserve(ctx, domainTenant("acme")))

	tenant, err := env.svc.Provision(ctx, validRequest())
	require.NoError(t, err)
	require.Equal(t, "acme-1", tenant.Slug)
}

func TestProvisionSlugExhausted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.tenants.Reserve(ctx, domainTenant("acme")))
	for i := 1; i <= slugRetries; i++ {
		require.NoError(t, env.tenants.Reserve(ctx, domainTenant(fmt.Sprintf("acme-%d", i))))
	}

	_, err := env.svc.Provision(ctx, validRequest())
	require.ErrorIs(t, err, ErrSlugExhausted)
}

func TestProvisionRejectsBadSlugs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := validRequest()
	req.Slug = "Not A Slug!"
	_, err := env.svc.Provision(ctx, req)
	require.ErrorIs(t, err, ErrInvalidSlug)

	req.Slug = "admin"
	_, err = env.svc.Provision(ctx, req)
	require.ErrorIs(t, err, ErrReservedSlug)
}

func TestProvisionUnknownPlan(t *testing.T) {
	env := newTestEnv(t)

	req := validRequest()
	req.PlanSlug = "platinum"
	_, err := env.svc.Provision(context.Background(), req)
	require.ErrorIs(t, err, plan.ErrNotFound)
}

func TestProvisionRollsBackOnSeedFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// bcrypt rejects passwords longer than 72 bytes, which fails the
	// founder seeding step after the slug reservation and space
	// allocation already happened.
	req := validRequest()
	req.OwnerPassword = strings.Repeat("x", 80)

	_, err := env.svc.Provision(ctx, req)
	require.Error(t, err)

	_, err = env.tenants.FindBySlug(ctx, "acme")
	require.ErrorIs(t, err, tenantdomain.ErrNotFound)

	space, err := env.spaces.Open(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, space.DB.Migrator().HasTable(&tenantspace.Member{}))

	availability, err := env.svc.CheckSlug(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, availability.Available)
}

func TestCheckSlug(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	availability, err := env.svc.CheckSlug(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, availability.Available)

	_, err = env.svc.Provision(ctx, validRequest())
	require.NoError(t, err)

	availability, err = env.svc.CheckSlug(ctx, "Acme")
	require.NoError(t, err)
	assert.False(t, availability.Available)
	assert.Equal(t, "taken", availability.Reason)

	availability, err = env.svc.CheckSlug(ctx, "www")
	require.NoError(t, err)
	assert.False(t, availability.Available)
	assert.Equal(t, "reserved", availability.Reason)

	availability, err = env.svc.CheckSlug(ctx, "x")
	require.NoError(t, err)
	assert.False(t, availability.Available)
	assert.Equal(t, "invalid", availability.Reason)
}

func TestDeprovision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Provision(ctx, validRequest())
	require.NoError(t, err)

	_, err = env.tenants.UpdateSubscription(ctx, "acme", func(tenant *tenantdomain.Tenant) error {
		tenant.SubscriptionStatus = tenantdomain.SubscriptionActive
		tenant.ProviderSubscriptionID = "sub_1"
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.Deprovision(ctx, "acme"))

	require.Len(t, env.gateway.canceled, 1)
	assert.Equal(t, "sub_1", env.gateway.canceled[0].subscriptionID)
	assert.False(t, env.gateway.canceled[0].atPeriodEnd)

	_, err = env.tenants.FindBySlug(ctx, "acme")
	require.ErrorIs(t, err, tenantdomain.ErrNotFound)
}

func TestDeprovisionProceedsWhenCancelFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Provision(ctx, validRequest())
	require.NoError(t, err)

	_, err = env.tenants.UpdateSubscription(ctx, "acme", func(tenant *tenantdomain.Tenant) error {
		tenant.SubscriptionStatus = tenantdomain.SubscriptionActive
		tenant.ProviderSubscriptionID = "sub_1"
		return nil
	})
	require.NoError(t, err)

	env.gateway.cancelErr = errors.New("billing provider unreachable")
	require.NoError(t, env.svc.Deprovision(ctx, "acme"))

	require.Len(t, env.gateway.canceled, 1)

	_, err = env.tenants.FindBySlug(ctx, "acme")
	require.ErrorIs(t, err, tenantdomain.ErrNotFound)

	space, err := env.spaces.Open(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, space.DB.Migrator().HasTable(&tenantspace.Member{}))
}

func TestDeprovisionUnknownTenant(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.Deprovision(context.Background(), "ghost")
	require.ErrorIs(t, err, tenantdomain.ErrNotFound)
}

func domainTenant(slug string) tenantdomain.Tenant {
	return tenantdomain.Tenant{
		Slug:               slug,
		Name:               slug,
		State:              tenantdomain.StateActive,
		PlanSlug:           "free",
		SubscriptionStatus: tenantdomain.SubscriptionNone,
		Settings:           datatypes.JSONMap{},
	}
}
