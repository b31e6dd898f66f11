package tenantspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/pkg/db"
	"github.com/boardstack/boardstack/pkg/tenantctx"
	"go.uber.org/zap"
)

// Manager allocates, opens and drops per-tenant storage namespaces.
// On postgres each tenant gets its own schema; elsewhere tables share
// the default namespace under a per-tenant name prefix.
type Manager struct {
	cfg    config.Config
	opener *db.ScopedOpener
	log    *zap.Logger
}

func NewManager(cfg config.Config, opener *db.ScopedOpener, log *zap.Logger) *Manager {
	return &Manager{cfg: cfg, opener: opener, log: log.Named("tenantspace")}
}

// SchemaName returns the namespace identifier for a slug. Hyphens are
// folded to underscores so the name needs no quoting.
func SchemaName(slug string) string {
	return "tenant_" + strings.ReplaceAll(slug, "-", "_")
}

func (m *Manager) prefix(slug string) string {
	if m.cfg.DBType == "postgres" {
		return SchemaName(slug) + "."
	}
	return SchemaName(slug) + "_"
}

// Allocate creates the tenant's namespace and migrates its tables,
// returning a handle scoped to it. Allocate is idempotent.
func (m *Manager) Allocate(ctx context.Context, slug string) (tenantctx.Space, error) {
	if m.cfg.DBType == "postgres" {
		err := m.opener.Base().WithContext(ctx).
			Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", SchemaName(slug))).Error
		if err != nil {
			return tenantctx.Space{}, fmt.Errorf("create schema: %w", err)
		}
	}

	space, err := m.Open(ctx, slug)
	if err != nil {
		return tenantctx.Space{}, err
	}

	if err := space.DB.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return tenantctx.Space{}, fmt.Errorf("migrate tenant space: %w", err)
	}

	m.log.Info("tenant space allocated", zap.String("tenant", slug))
	return space, nil
}

// Open returns a handle scoped to an existing tenant namespace.
func (m *Manager) Open(ctx context.Context, slug string) (tenantctx.Space, error) {
	_ = ctx
	handle, err := m.opener.Open(m.prefix(slug))
	if err != nil {
		return tenantctx.Space{}, fmt.Errorf("open tenant space: %w", err)
	}
	return tenantctx.Space{Slug: slug, DB: handle}, nil
}

// Drop removes the tenant's namespace and everything in it.
func (m *Manager) Drop(ctx context.Context, slug string) error {
	if m.cfg.DBType == "postgres" {
		err := m.opener.Base().WithContext(ctx).
			Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", SchemaName(slug))).Error
		if err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
		m.log.Info("tenant space dropped", zap.String("tenant", slug))
		return nil
	}

	space, err := m.Open(ctx, slug)
	if err != nil {
		return err
	}
	migrator := space.DB.WithContext(ctx).Migrator()
	for _, model := range Models() {
		if migrator.HasTable(model) {
			if err := migrator.DropTable(model); err != nil {
				return fmt.Errorf("drop tenant table: %w", err)
			}
		}
	}
	m.log.Info("tenant space dropped", zap.String("tenant", slug))
	return nil
}
