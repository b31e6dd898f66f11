// Package seed installs the plan catalogue at startup.
package seed

import (
	"context"
	"os"
	"strings"

	"github.com/boardstack/boardstack/internal/plan"
	"gorm.io/datatypes"
)

// EnsurePlans upserts the built-in catalogue. Provider price ids come
// from the environment so each deployment binds its own prices.
func EnsurePlans(ctx context.Context, plans plan.Repository) error {
	catalogue := []plan.Plan{
		{
			Slug:       "free",
			Name:       "Free",
			PriceCents: 0,
			Currency:   "usd",
			Interval:   "month",
			Features: datatypes.JSONMap{
				plan.FeatureMaxTeams:         float64(1),
				plan.FeatureMaxUsers:         float64(3),
				plan.FeatureMaxBoards:        float64(3),
				plan.FeatureMaxTasksPerBoard: float64(50),
				"analytics":                  false,
				"priority_support":           false,
				"custom_branding":            false,
			},
			IsActive: true,
		},
		{
			Slug:            "pro-monthly",
			Name:            "Pro (Monthly)",
			PriceCents:      2900,
			Currency:        "usd",
			Interval:        "month",
			ProviderPriceID: priceID("BILLING_PRO_MONTHLY_PRICE_ID"),
			Features: datatypes.JSONMap{
				plan.FeatureMaxTeams:         float64(plan.Unlimited),
				plan.FeatureMaxUsers:         float64(plan.Unlimited),
				plan.FeatureMaxBoards:        float64(plan.Unlimited),
				plan.FeatureMaxTasksPerBoard: float64(plan.Unlimited),
				"analytics":                  true,
				"priority_support":           true,
				"custom_branding":            true,
				"api_access":                 true,
				"webhooks":                   true,
			},
			IsActive: true,
		},
		{
			Slug:            "pro-yearly",
			Name:            "Pro (Yearly)",
			PriceCents:      29000,
			Currency:        "usd",
			Interval:        "year",
			ProviderPriceID: priceID("BILLING_PRO_YEARLY_PRICE_ID"),
			Features: datatypes.JSONMap{
				plan.FeatureMaxTeams:         float64(plan.Unlimited),
				plan.FeatureMaxUsers:         float64(plan.Unlimited),
				plan.FeatureMaxBoards:        float64(plan.Unlimited),
				plan.FeatureMaxTasksPerBoard: float64(plan.Unlimited),
				"analytics":                  true,
				"priority_support":           true,
				"custom_branding":            true,
				"api_access":                 true,
				"webhooks":                   true,
			},
			IsActive: true,
		},
	}

	for _, p := range catalogue {
		if err := plans.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func priceID(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
