package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrSlugTaken is returned when a reservation collides with an
	// existing row, whatever state that row is in.
	ErrSlugTaken = errors.New("tenant: slug taken")

	// ErrNotFound is returned when no tenant matches the lookup.
	ErrNotFound = errors.New("tenant: not found")

	// ErrVersionConflict is returned when an optimistic update lost the
	// race against a concurrent writer.
	ErrVersionConflict = errors.New("tenant: version conflict")
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	// Reserve atomically inserts the row, failing with ErrSlugTaken if
	// the slug is already occupied.
	Reserve(ctx context.Context, tenant Tenant) error

	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	FindByProviderSubscription(ctx context.Context, subscriptionID string) (*Tenant, error)
	FindByProviderCustomer(ctx context.Context, customerID string) (*Tenant, error)

	// Update persists the tenant guarded by its Version column and bumps
	// the version. Returns ErrVersionConflict on a lost race.
	Update(ctx context.Context, tenant *Tenant) error

	// UpdateSubscription runs a read-modify-write cycle with bounded
	// retries on version conflicts.
	UpdateSubscription(ctx context.Context, slug string, mutate func(*Tenant) error) (*Tenant, error)

	Delete(ctx context.Context, slug string) error

	AppendEvent(ctx context.Context, event SubscriptionEvent) error
	ListEvents(ctx context.Context, slug string) ([]SubscriptionEvent, error)
}
