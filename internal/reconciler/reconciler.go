// Package reconciler folds billing provider notifications into the
// tenant registry. Events arrive at-least-once and out of order; the
// provider's view always wins, and an audit event is appended only
// when the stored subscription actually changed.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/boardstack/boardstack/internal/billing"
	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/observability/metrics"
	"github.com/boardstack/boardstack/internal/plan"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Outcomes reported per applied event.
const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
	OutcomeDropped = "dropped"
)

type Params struct {
	fx.In

	Config  config.Config
	Tenants tenantdomain.Repository
	Plans   plan.Repository
	Node    *snowflake.Node
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Reconciler applies parsed billing events to tenant rows.
type Reconciler struct {
	cfg     config.Config
	tenants tenantdomain.Repository
	plans   plan.Repository
	node    *snowflake.Node
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) *Reconciler {
	return &Reconciler{
		cfg:     p.Config,
		tenants: p.Tenants,
		plans:   p.Plans,
		node:    p.Node,
		log:     p.Log.Named("reconciler"),
		metrics: p.Metrics,
	}
}

// Apply folds one event into the registry. Events that reference no
// known tenant are logged and dropped without error, so the provider
// does not retry them forever.
func (r *Reconciler) Apply(ctx context.Context, event billing.Event) error {
	outcome, err := r.apply(ctx, event)
	if r.metrics != nil {
		r.metrics.RecordWebhookEvent(event.EventType(), outcome)
	}
	return err
}

func (r *Reconciler) apply(ctx context.Context, event billing.Event) (string, error) {
	switch e := event.(type) {
	case *billing.CheckoutCompleted:
		return r.applyCheckout(ctx, e)
	case *billing.SubscriptionChanged:
		return r.applySubscriptionChanged(ctx, e)
	case *billing.SubscriptionDeleted:
		return r.applySubscriptionDeleted(ctx, e)
	case *billing.InvoicePaid:
		return r.applyInvoicePaid(ctx, e)
	case *billing.InvoicePaymentFailed:
		return r.applyInvoicePaymentFailed(ctx, e)
	default:
		r.log.Debug("unhandled event type", zap.String("event_type", event.EventType()))
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) applyCheckout(ctx context.Context, e *billing.CheckoutCompleted) (string, error) {
	tenant, err := r.resolve(ctx, e.TenantSlug, e.SubscriptionID, e.CustomerID)
	if err != nil {
		return r.drop(e, err)
	}

	targetPlan := tenant.PlanSlug
	if e.PlanSlug != "" {
		if _, err := r.plans.FindBySlug(ctx, e.PlanSlug); err == nil {
			targetPlan = e.PlanSlug
		}
	}

	return r.transition(ctx, tenant.Slug, e, func(t *tenantdomain.Tenant) error {
		t.SubscriptionStatus = tenantdomain.SubscriptionActive
		t.PlanSlug = targetPlan
		t.SubscriptionEndsAt = nil
		if e.CustomerID != "" {
			t.ProviderCustomerID = e.CustomerID
		}
		if e.SubscriptionID != "" {
			t.ProviderSubscriptionID = e.SubscriptionID
		}
		return nil
	})
}

func (r *Reconciler) applySubscriptionChanged(ctx context.Context, e *billing.SubscriptionChanged) (string, error) {
	tenant, err := r.resolve(ctx, e.TenantSlug, e.SubscriptionID, e.CustomerID)
	if err != nil {
		return r.drop(e, err)
	}

	targetPlan := r.resolvePlan(ctx, tenant.PlanSlug, e.PlanSlug, e.PriceID)

	return r.transition(ctx, tenant.Slug, e, func(t *tenantdomain.Tenant) error {
		t.SubscriptionStatus = tenantdomain.SubscriptionStatus(e.Status)
		t.PlanSlug = targetPlan
		t.SubscriptionEndsAt = nil
		if e.CancelAtPeriodEnd && e.CurrentPeriodEnd != nil {
			t.SubscriptionEndsAt = e.CurrentPeriodEnd
		}
		t.TrialEndsAt = e.TrialEnd
		if e.CustomerID != "" {
			t.ProviderCustomerID = e.CustomerID
		}
		t.ProviderSubscriptionID = e.SubscriptionID
		return nil
	})
}

func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, e *billing.SubscriptionDeleted) (string, error) {
	tenant, err := r.resolve(ctx, "", e.SubscriptionID, e.CustomerID)
	if err != nil {
		return r.drop(e, err)
	}

	endedAt := e.EndedAt
	if endedAt == nil {
		now := time.Now().UTC()
		endedAt = &now
	}

	return r.transition(ctx, tenant.Slug, e, func(t *tenantdomain.Tenant) error {
		t.SubscriptionStatus = tenantdomain.SubscriptionCanceled
		t.PlanSlug = r.cfg.DefaultPlan
		t.SubscriptionEndsAt = endedAt
		t.ProviderSubscriptionID = ""
		return nil
	})
}

func (r *Reconciler) applyInvoicePaid(ctx context.Context, e *billing.InvoicePaid) (string, error) {
	tenant, err := r.resolve(ctx, "", e.SubscriptionID, e.CustomerID)
	if err != nil {
		return r.drop(e, err)
	}

	// a paid invoice only ever recovers a past-due subscription
	if tenant.SubscriptionStatus != tenantdomain.SubscriptionPastDue {
		return OutcomeIgnored, nil
	}

	return r.transition(ctx, tenant.Slug, e, func(t *tenantdomain.Tenant) error {
		if t.SubscriptionStatus == tenantdomain.SubscriptionPastDue {
			t.SubscriptionStatus = tenantdomain.SubscriptionActive
		}
		return nil
	})
}

func (r *Reconciler) applyInvoicePaymentFailed(ctx context.Context, e *billing.InvoicePaymentFailed) (string, error) {
	tenant, err := r.resolve(ctx, "", e.SubscriptionID, e.CustomerID)
	if err != nil {
		return r.drop(e, err)
	}

	if tenant.SubscriptionStatus == tenantdomain.SubscriptionCanceled {
		return OutcomeIgnored, nil
	}

	return r.transition(ctx, tenant.Slug, e, func(t *tenantdomain.Tenant) error {
		if t.SubscriptionStatus != tenantdomain.SubscriptionCanceled {
			t.SubscriptionStatus = tenantdomain.SubscriptionPastDue
		}
		return nil
	})
}

// transition runs the mutation under optimistic concurrency and
// appends an audit event when status or plan changed.
func (r *Reconciler) transition(ctx context.Context, slug string, event billing.Event, mutate func(*tenantdomain.Tenant) error) (string, error) {
	var before tenantdomain.Tenant
	updated, err := r.tenants.UpdateSubscription(ctx, slug, func(t *tenantdomain.Tenant) error {
		before = *t
		return mutate(t)
	})
	if err != nil {
		return OutcomeDropped, err
	}

	statusChanged := updated.SubscriptionStatus != before.SubscriptionStatus
	planChanged := updated.PlanSlug != before.PlanSlug
	if !statusChanged && !planChanged {
		return OutcomeIgnored, nil
	}

	kind := r.eventKind(ctx, before, updated)
	audit := tenantdomain.SubscriptionEvent{
		ID:         r.node.Generate(),
		TenantSlug: slug,
		Kind:       kind,
		FromStatus: before.SubscriptionStatus,
		ToStatus:   updated.SubscriptionStatus,
		FromPlan:   before.PlanSlug,
		ToPlan:     updated.PlanSlug,
		Metadata: datatypes.JSONMap{
			"provider_event_id":   event.EventID(),
			"provider_event_type": event.EventType(),
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := r.tenants.AppendEvent(ctx, audit); err != nil {
		return OutcomeDropped, err
	}

	r.log.Info("subscription reconciled",
		zap.String("tenant", slug),
		zap.String("event_type", event.EventType()),
		zap.String("kind", string(kind)),
		zap.String("from_status", string(before.SubscriptionStatus)),
		zap.String("to_status", string(updated.SubscriptionStatus)),
	)
	return OutcomeApplied, nil
}

func (r *Reconciler) eventKind(ctx context.Context, before tenantdomain.Tenant, after *tenantdomain.Tenant) tenantdomain.EventKind {
	switch after.SubscriptionStatus {
	case tenantdomain.SubscriptionCanceled:
		return tenantdomain.EventCanceled
	case tenantdomain.SubscriptionPastDue:
		return tenantdomain.EventPastDue
	}

	if before.SubscriptionStatus == tenantdomain.SubscriptionPastDue {
		return tenantdomain.EventResumed
	}
	if before.SubscriptionStatus == tenantdomain.SubscriptionNone {
		return tenantdomain.EventActivated
	}

	if after.PlanSlug != before.PlanSlug {
		oldPlan, errOld := r.plans.FindBySlug(ctx, before.PlanSlug)
		newPlan, errNew := r.plans.FindBySlug(ctx, after.PlanSlug)
		if errOld == nil && errNew == nil && newPlan.PriceCents < oldPlan.PriceCents {
			return tenantdomain.EventDowngraded
		}
		return tenantdomain.EventUpgraded
	}
	return tenantdomain.EventActivated
}

// resolvePlan prefers the metadata plan slug, then the provider price
// binding, and keeps the current plan when neither resolves.
func (r *Reconciler) resolvePlan(ctx context.Context, current, planSlug, priceID string) string {
	if planSlug != "" {
		if _, err := r.plans.FindBySlug(ctx, planSlug); err == nil {
			return planSlug
		}
	}
	if priceID != "" {
		if p, err := r.plans.FindByProviderPrice(ctx, priceID); err == nil {
			return p.Slug
		}
	}
	return current
}

func (r *Reconciler) resolve(ctx context.Context, slug, subscriptionID, customerID string) (*tenantdomain.Tenant, error) {
	if slug != "" {
		tenant, err := r.tenants.FindBySlug(ctx, slug)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, tenantdomain.ErrNotFound) {
			return nil, err
		}
	}
	if subscriptionID != "" {
		tenant, err := r.tenants.FindByProviderSubscription(ctx, subscriptionID)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, tenantdomain.ErrNotFound) {
			return nil, err
		}
	}
	if customerID != "" {
		tenant, err := r.tenants.FindByProviderCustomer(ctx, customerID)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, tenantdomain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, tenantdomain.ErrNotFound
}

// drop swallows unresolvable events so the provider stops retrying.
func (r *Reconciler) drop(event billing.Event, err error) (string, error) {
	if errors.Is(err, tenantdomain.ErrNotFound) {
		r.log.Warn("event references no known tenant",
			zap.String("event_id", event.EventID()),
			zap.String("event_type", event.EventType()),
		)
		return OutcomeDropped, nil
	}
	return OutcomeDropped, err
}
