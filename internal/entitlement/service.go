// Package entitlement answers whether a tenant's plan still allows
// creating another resource. Checks fail closed: a tenant whose plan
// cannot be resolved is denied.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/boardstack/boardstack/internal/observability/metrics"
	"github.com/boardstack/boardstack/internal/plan"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrUnknownFeature is returned for feature keys without a usage query.
var ErrUnknownFeature = errors.New("entitlement: unknown feature")

// Decision is the outcome of one limit check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Feature string `json:"feature"`
	Limit   int64  `json:"limit"`
	Usage   int64  `json:"usage"`
}

type Params struct {
	fx.In

	Tenants tenantdomain.Repository
	Plans   plan.Repository
	Spaces  *tenantspace.Manager
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	tenants tenantdomain.Repository
	plans   plan.Repository
	spaces  *tenantspace.Manager
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		tenants: p.Tenants,
		plans:   p.Plans,
		spaces:  p.Spaces,
		log:     p.Log.Named("entitlement"),
		metrics: p.Metrics,
	}
}

// CheckLimit reports whether the tenant may create one more resource
// counted by the feature key.
func (s *Service) CheckLimit(ctx context.Context, slug, feature string) (Decision, error) {
	limit, space, err := s.limitFor(ctx, slug, feature)
	if err != nil {
		return Decision{Feature: feature}, err
	}
	if limit == plan.Unlimited {
		return Decision{Allowed: true, Feature: feature, Limit: plan.Unlimited}, nil
	}

	usage, err := s.usage(ctx, space, feature)
	if err != nil {
		return Decision{Feature: feature, Limit: limit}, err
	}

	decision := Decision{
		Allowed: usage < limit,
		Feature: feature,
		Limit:   limit,
		Usage:   usage,
	}
	if !decision.Allowed && s.metrics != nil {
		s.metrics.RecordEntitlementDenial(feature)
	}
	return decision, nil
}

// CheckTaskLimit applies the per-board task cap for one board.
func (s *Service) CheckTaskLimit(ctx context.Context, slug string, boardID snowflake.ID) (Decision, error) {
	feature := plan.FeatureMaxTasksPerBoard
	limit, space, err := s.limitFor(ctx, slug, feature)
	if err != nil {
		return Decision{Feature: feature}, err
	}
	if limit == plan.Unlimited {
		return Decision{Allowed: true, Feature: feature, Limit: plan.Unlimited}, nil
	}

	var usage int64
	err = space.DB.WithContext(ctx).
		Model(&tenantspace.Task{}).
		Where("board_id = ?", boardID).
		Count(&usage).Error
	if err != nil {
		return Decision{Feature: feature, Limit: limit}, err
	}

	decision := Decision{
		Allowed: usage < limit,
		Feature: feature,
		Limit:   limit,
		Usage:   usage,
	}
	if !decision.Allowed && s.metrics != nil {
		s.metrics.RecordEntitlementDenial(feature)
	}
	return decision, nil
}

func (s *Service) limitFor(ctx context.Context, slug, feature string) (int64, tenantctx.Space, error) {
	tenant, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		return 0, tenantctx.Space{}, err
	}

	p, err := s.plans.FindBySlug(ctx, tenant.PlanSlug)
	if err != nil {
		s.log.Warn("plan unresolvable, denying",
			zap.String("tenant", slug),
			zap.String("plan", tenant.PlanSlug),
		)
		return 0, tenantctx.Space{}, fmt.Errorf("resolve plan %q: %w", tenant.PlanSlug, err)
	}

	limit := p.Limit(feature)
	if limit == plan.Unlimited {
		return limit, tenantctx.Space{}, nil
	}

	space, err := s.spaces.Open(ctx, slug)
	if err != nil {
		return 0, tenantctx.Space{}, err
	}
	return limit, space, nil
}

func (s *Service) usage(ctx context.Context, space tenantctx.Space, feature string) (int64, error) {
	var count int64
	db := space.DB.WithContext(ctx)
	switch feature {
	case plan.FeatureMaxBoards:
		return count, db.Model(&tenantspace.Board{}).Count(&count).Error
	case plan.FeatureMaxTeams:
		return count, db.Model(&tenantspace.Team{}).Count(&count).Error
	case plan.FeatureMaxUsers:
		return count, db.Model(&tenantspace.Member{}).Count(&count).Error
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
	}
}
