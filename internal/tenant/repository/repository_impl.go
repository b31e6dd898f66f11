package repository

import (
	"context"
	"errors"
	"time"

	"github.com/boardstack/boardstack/internal/tenant/domain"
	"github.com/boardstack/boardstack/pkg/db"
	"gorm.io/gorm"
)

const updateRetries = 3

type repository struct {
	db *gorm.DB
}

func NewRepository(gdb *gorm.DB) domain.Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Reserve(ctx context.Context, tenant domain.Tenant) error {
	err := r.db.WithContext(ctx).Create(&tenant).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrSlugTaken
	}
	return err
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).First(&tenant, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) FindByProviderSubscription(ctx context.Context, subscriptionID string) (*domain.Tenant, error) {
	return r.findOne(ctx, "provider_subscription_id = ?", subscriptionID)
}

func (r *repository) FindByProviderCustomer(ctx context.Context, customerID string) (*domain.Tenant, error) {
	return r.findOne(ctx, "provider_customer_id = ?", customerID)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).First(&tenant, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) Update(ctx context.Context, tenant *domain.Tenant) error {
	currentVersion := tenant.Version
	tenant.Version = currentVersion + 1
	tenant.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("slug = ? AND version = ?", tenant.Slug, currentVersion).
		Select("*").
		Omit("created_at").
		Updates(tenant)
	if result.Error != nil {
		tenant.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		tenant.Version = currentVersion
		return domain.ErrVersionConflict
	}
	return nil
}

func (r *repository) UpdateSubscription(ctx context.Context, slug string, mutate func(*domain.Tenant) error) (*domain.Tenant, error) {
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		tenant, err := r.FindBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if err := mutate(tenant); err != nil {
			return nil, err
		}
		err = r.Update(ctx, tenant)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *repository) Delete(ctx context.Context, slug string) error {
	return r.db.WithContext(ctx).Delete(&domain.Tenant{}, "slug = ?", slug).Error
}

func (r *repository) AppendEvent(ctx context.Context, event domain.SubscriptionEvent) error {
	return r.db.WithContext(ctx).Create(&event).Error
}

func (r *repository) ListEvents(ctx context.Context, slug string) ([]domain.SubscriptionEvent, error) {
	var events []domain.SubscriptionEvent
	err := r.db.WithContext(ctx).
		Where("tenant_slug = ?", slug).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
