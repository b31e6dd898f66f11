package plan

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when no plan matches the lookup.
var ErrNotFound = errors.New("plan: not found")

type Repository interface {
	FindBySlug(ctx context.Context, slug string) (*Plan, error)
	FindByProviderPrice(ctx context.Context, priceID string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Upsert(ctx context.Context, p Plan) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*Plan, error) {
	var p Plan
	err := r.db.WithContext(ctx).First(&p, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindByProviderPrice(ctx context.Context, priceID string) (*Plan, error) {
	if priceID == "" {
		return nil, ErrNotFound
	}
	var p Plan
	err := r.db.WithContext(ctx).First(&p, "provider_price_id = ?", priceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) List(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price_cents ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) Upsert(ctx context.Context, p Plan) error {
	var existing Plan
	err := r.db.WithContext(ctx).First(&existing, "slug = ?", p.Slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(&p).Error
	}
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&Plan{}).
		Where("slug = ?", p.Slug).
		Updates(map[string]any{
			"name":              p.Name,
			"price_cents":       p.PriceCents,
			"currency":          p.Currency,
			"billing_interval":  p.Interval,
			"provider_price_id": p.ProviderPriceID,
			"features":          p.Features,
			"is_active":         p.IsActive,
		}).Error
}
