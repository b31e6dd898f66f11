// Package plan holds the subscription plan catalogue.
package plan

import (
	"time"

	"gorm.io/datatypes"
)

// Unlimited is the sentinel limit for features without a cap.
const Unlimited int64 = -1

// Feature keys understood by the entitlement checks.
const (
	FeatureMaxTeams         = "max_teams"
	FeatureMaxUsers         = "max_users"
	FeatureMaxBoards        = "max_boards"
	FeatureMaxTasksPerBoard = "max_tasks_per_board"
)

// Plan is one row of the plan catalogue. Free plans carry no provider
// price and never reach the billing provider.
type Plan struct {
	Slug            string            `gorm:"primaryKey;type:text" json:"slug"`
	Name            string            `gorm:"type:text;not null" json:"name"`
	PriceCents      int64             `gorm:"not null;column:price_cents" json:"price_cents"`
	Currency        string            `gorm:"type:text;not null" json:"currency"`
	Interval        string            `gorm:"type:text;column:billing_interval" json:"interval"`
	ProviderPriceID string            `gorm:"type:text;index;column:provider_price_id" json:"-"`
	Features        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"features"`
	IsActive        bool              `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// IsFree reports whether the plan bills nothing.
func (p Plan) IsFree() bool { return p.PriceCents == 0 }

// Limit returns the numeric cap for a feature key. Absent keys and
// explicit -1 values both mean unlimited.
func (p Plan) Limit(feature string) int64 {
	raw, ok := p.Features[feature]
	if !ok {
		return Unlimited
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return Unlimited
	}
}
