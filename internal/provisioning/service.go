// Package provisioning runs the tenant creation saga: reserve the
// slug, allocate the isolated space, seed permissions and the founder
// account, then activate. Any failed step unwinds what was built.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boardstack/boardstack/internal/auth/password"
	"github.com/boardstack/boardstack/internal/authorization"
	"github.com/boardstack/boardstack/internal/billing"
	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/observability/metrics"
	"github.com/boardstack/boardstack/internal/permission"
	"github.com/boardstack/boardstack/internal/plan"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Starter board seeded into every new tenant.
const (
	starterBoardName  = "Getting Started"
	starterBoardColor = "#3B82F6"
)

const slugRetries = 5

// Request describes a new workspace.
type Request struct {
	Name          string
	Slug          string
	PlanSlug      string
	OwnerName     string
	OwnerEmail    string
	OwnerPassword string
}

// Availability is the answer to a slug pre-check.
type Availability struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type Params struct {
	fx.In

	Config   config.Config
	Tenants  tenantdomain.Repository
	Plans    plan.Repository
	Spaces   *tenantspace.Manager
	Perms    *permission.Bootstrapper
	Gateway  billing.Gateway
	Enforcer *casbin.SyncedEnforcer
	Node     *snowflake.Node
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	cfg      config.Config
	tenants  tenantdomain.Repository
	plans    plan.Repository
	spaces   *tenantspace.Manager
	perms    *permission.Bootstrapper
	gateway  billing.Gateway
	enforcer *casbin.SyncedEnforcer
	node     *snowflake.Node
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		cfg:      p.Config,
		tenants:  p.Tenants,
		plans:    p.Plans,
		spaces:   p.Spaces,
		perms:    p.Perms,
		gateway:  p.Gateway,
		enforcer: p.Enforcer,
		node:     p.Node,
		log:      p.Log.Named("provisioning"),
		metrics:  p.Metrics,
	}
}

// CheckSlug reports whether a slug could be reserved right now.
func (s *Service) CheckSlug(ctx context.Context, slug string) (Availability, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if err := ValidateSlug(slug); err != nil {
		reason := "invalid"
		if errors.Is(err, ErrReservedSlug) {
			reason = "reserved"
		}
		return Availability{Slug: slug, Available: false, Reason: reason}, nil
	}
	_, err := s.tenants.FindBySlug(ctx, slug)
	if err == nil {
		return Availability{Slug: slug, Available: false, Reason: "taken"}, nil
	}
	if !errors.Is(err, tenantdomain.ErrNotFound) {
		return Availability{}, err
	}
	return Availability{Slug: slug, Available: true}, nil
}

// Provision runs the full saga and returns the activated tenant.
func (s *Service) Provision(ctx context.Context, req Request) (*tenantdomain.Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProvisionTimeout)
	defer cancel()

	planSlug := strings.TrimSpace(req.PlanSlug)
	if planSlug == "" {
		planSlug = s.cfg.DefaultPlan
	}
	if _, err := s.plans.FindBySlug(ctx, planSlug); err != nil {
		return nil, fmt.Errorf("resolve plan %q: %w", planSlug, err)
	}

	tenant, err := s.reserve(ctx, req, planSlug)
	if err != nil {
		s.recordOutcome("failed")
		return nil, err
	}

	activated, err := s.build(ctx, tenant, req)
	if err != nil {
		s.rollback(context.WithoutCancel(ctx), tenant.Slug)
		s.recordOutcome("rolled_back")
		return nil, err
	}

	s.recordOutcome("succeeded")
	return activated, nil
}

// reserve claims a slug, retrying with numeric suffixes on collision.
func (s *Service) reserve(ctx context.Context, req Request, planSlug string) (*tenantdomain.Tenant, error) {
	base := strings.ToLower(strings.TrimSpace(req.Slug))
	if base == "" {
		base = DeriveSlug(req.Name)
	}
	if err := ValidateSlug(base); err != nil {
		return nil, err
	}

	candidate := base
	for attempt := 0; attempt <= slugRetries; attempt++ {
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
			if len(candidate) > slugMaxLen {
				return nil, ErrSlugExhausted
			}
		}

		tenant := tenantdomain.Tenant{
			Slug:               candidate,
			Name:               strings.TrimSpace(req.Name),
			State:              tenantdomain.StateProvisioning,
			PlanSlug:           planSlug,
			SubscriptionStatus: tenantdomain.SubscriptionNone,
			Settings:           datatypes.JSONMap{},
			CreatedAt:          time.Now().UTC(),
			UpdatedAt:          time.Now().UTC(),
		}
		err := s.tenants.Reserve(ctx, tenant)
		if err == nil {
			s.log.Info("slug reserved", zap.String("tenant", candidate))
			return &tenant, nil
		}
		if !errors.Is(err, tenantdomain.ErrSlugTaken) {
			return nil, err
		}
	}
	return nil, ErrSlugExhausted
}

func (s *Service) build(ctx context.Context, tenant *tenantdomain.Tenant, req Request) (*tenantdomain.Tenant, error) {
	space, err := s.spaces.Allocate(ctx, tenant.Slug)
	if err != nil {
		return nil, err
	}

	if err := s.perms.Bootstrap(ctx, space); err != nil {
		return nil, err
	}
	if err := s.perms.Verify(ctx, space); err != nil {
		return nil, err
	}

	if err := s.seedFounder(ctx, space, req); err != nil {
		return nil, err
	}
	if err := s.seedStarterBoard(ctx, space); err != nil {
		return nil, err
	}

	activated, err := s.tenants.UpdateSubscription(ctx, tenant.Slug, func(t *tenantdomain.Tenant) error {
		t.State = tenantdomain.StateActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit := tenantdomain.SubscriptionEvent{
		ID:         s.node.Generate(),
		TenantSlug: tenant.Slug,
		Kind:       tenantdomain.EventCreated,
		FromStatus: tenantdomain.SubscriptionNone,
		ToStatus:   activated.SubscriptionStatus,
		ToPlan:     activated.PlanSlug,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.tenants.AppendEvent(ctx, audit); err != nil {
		return nil, err
	}

	s.log.Info("tenant provisioned",
		zap.String("tenant", tenant.Slug),
		zap.String("plan", activated.PlanSlug),
	)
	return activated, nil
}

func (s *Service) seedFounder(ctx context.Context, space tenantctx.Space, req Request) error {
	hash, err := password.Hash(req.OwnerPassword)
	if err != nil {
		return fmt.Errorf("hash founder password: %w", err)
	}
	founder := tenantspace.Member{
		ID:           s.node.Generate(),
		Email:        strings.ToLower(strings.TrimSpace(req.OwnerEmail)),
		Name:         strings.TrimSpace(req.OwnerName),
		PasswordHash: hash,
		Role:         permission.RoleOwner,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := space.DB.WithContext(ctx).Create(&founder).Error; err != nil {
		return fmt.Errorf("seed founder: %w", err)
	}
	return nil
}

func (s *Service) seedStarterBoard(ctx context.Context, space tenantctx.Space) error {
	board := tenantspace.Board{
		ID:        s.node.Generate(),
		Name:      starterBoardName,
		Color:     starterBoardColor,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := space.DB.WithContext(ctx).Create(&board).Error; err != nil {
		return fmt.Errorf("seed starter board: %w", err)
	}
	return nil
}

// rollback unwinds a half-built tenant. If the unwind itself fails the
// row is left in the failed state so the slug stays visibly occupied
// until an operator intervenes.
func (s *Service) rollback(ctx context.Context, slug string) {
	if err := s.spaces.Drop(ctx, slug); err != nil {
		s.log.Error("rollback: drop space failed", zap.String("tenant", slug), zap.Error(err))
		s.markFailed(ctx, slug)
		return
	}
	if err := s.tenants.Delete(ctx, slug); err != nil {
		s.log.Error("rollback: delete reservation failed", zap.String("tenant", slug), zap.Error(err))
		s.markFailed(ctx, slug)
		return
	}
	s.log.Warn("provisioning rolled back", zap.String("tenant", slug))
}

func (s *Service) markFailed(ctx context.Context, slug string) {
	_, err := s.tenants.UpdateSubscription(ctx, slug, func(t *tenantdomain.Tenant) error {
		t.State = tenantdomain.StateFailed
		return nil
	})
	if err != nil {
		s.log.Error("mark failed state", zap.String("tenant", slug), zap.Error(err))
	}
}

// Deprovision tears a tenant down: best-effort subscription cancel at
// the provider, then space, registry row and policy cleanup.
func (s *Service) Deprovision(ctx context.Context, slug string) error {
	tenant, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if tenant.ProviderSubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, tenant.ProviderSubscriptionID, false); err != nil {
			s.log.Warn("cancel subscription failed, continuing teardown",
				zap.String("tenant", slug),
				zap.Error(err),
			)
		}
	}

	if err := s.spaces.Drop(ctx, slug); err != nil {
		return err
	}
	if err := s.tenants.Delete(ctx, slug); err != nil {
		return err
	}
	if err := authorization.Forget(s.enforcer, slug); err != nil {
		s.log.Warn("policy cleanup failed", zap.String("tenant", slug), zap.Error(err))
	}

	s.log.Info("tenant deprovisioned", zap.String("tenant", slug))
	return nil
}

func (s *Service) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordProvision(outcome)
	}
}
