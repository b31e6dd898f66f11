// Package migration migrates the shared registry tables and installs
// the plan catalogue. Tenant space tables are migrated per tenant by
// the tenantspace manager at allocation time.
package migration

import (
	"context"

	"github.com/boardstack/boardstack/internal/plan"
	"github.com/boardstack/boardstack/internal/seed"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

func Run(db *gorm.DB, plans plan.Repository, log *zap.Logger) error {
	ctx := context.Background()

	err := db.WithContext(ctx).AutoMigrate(
		&tenantdomain.Tenant{},
		&tenantdomain.SubscriptionEvent{},
		&plan.Plan{},
	)
	if err != nil {
		return err
	}

	if err := seed.EnsurePlans(ctx, plans); err != nil {
		return err
	}

	log.Info("registry migrated")
	return nil
}
