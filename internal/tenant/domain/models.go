// Package domain contains persistence models for the tenant registry.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// State represents lifecycle states for a tenant record.
type State string

const (
	StateProvisioning State = "provisioning"
	StateActive       State = "active"
	StateFailed       State = "failed"
)

// SubscriptionStatus mirrors the billing provider's subscription status,
// with "none" for tenants that never completed a checkout.
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Tenant is the registry row for one workspace. The slug doubles as the
// primary key and as the subdomain label, so a row in any state occupies
// its slug.
type Tenant struct {
	Slug  string `gorm:"primaryKey;type:text" json:"slug"`
	Name  string `gorm:"type:text;not null" json:"name"`
	State State  `gorm:"type:text;not null;index" json:"state"`

	PlanSlug           string             `gorm:"type:text;not null;column:plan_slug" json:"plan_slug"`
	SubscriptionStatus SubscriptionStatus `gorm:"type:text;not null;column:subscription_status" json:"subscription_status"`
	SubscriptionEndsAt *time.Time         `gorm:"column:subscription_ends_at" json:"subscription_ends_at,omitempty"`
	TrialEndsAt        *time.Time         `gorm:"column:trial_ends_at" json:"trial_ends_at,omitempty"`

	ProviderCustomerID     string `gorm:"type:text;index;column:provider_customer_id" json:"-"`
	ProviderSubscriptionID string `gorm:"type:text;index;column:provider_subscription_id" json:"-"`

	// Version guards read-modify-write cycles on subscription fields.
	Version int64 `gorm:"not null;default:0" json:"-"`

	Settings  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"settings"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// OnTrial reports whether the tenant is trialing with time left at now.
func (t Tenant) OnTrial(now time.Time) bool {
	return t.SubscriptionStatus == SubscriptionTrialing &&
		t.TrialEndsAt != nil && t.TrialEndsAt.After(now)
}

// EventKind classifies subscription audit events.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventActivated  EventKind = "activated"
	EventUpgraded   EventKind = "upgraded"
	EventDowngraded EventKind = "downgraded"
	EventPastDue    EventKind = "past_due"
	EventResumed    EventKind = "resumed"
	EventCanceled   EventKind = "canceled"
)

// SubscriptionEvent is an append-only audit record of subscription
// transitions for a tenant.
type SubscriptionEvent struct {
	ID         snowflake.ID       `gorm:"primaryKey" json:"id"`
	TenantSlug string             `gorm:"type:text;not null;index" json:"tenant_slug"`
	Kind       EventKind          `gorm:"type:text;not null" json:"kind"`
	FromStatus SubscriptionStatus `gorm:"type:text;column:from_status" json:"from_status"`
	ToStatus   SubscriptionStatus `gorm:"type:text;column:to_status" json:"to_status"`
	FromPlan   string             `gorm:"type:text;column:from_plan" json:"from_plan"`
	ToPlan     string             `gorm:"type:text;column:to_plan" json:"to_plan"`
	Metadata   datatypes.JSONMap  `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (SubscriptionEvent) TableName() string { return "subscription_events" }
