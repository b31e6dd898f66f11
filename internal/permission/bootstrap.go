package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Bootstrapper seeds the role and permission catalogue into a freshly
// allocated tenant space.
type Bootstrapper struct {
	node *snowflake.Node
	log  *zap.Logger
}

func NewBootstrapper(node *snowflake.Node, log *zap.Logger) *Bootstrapper {
	return &Bootstrapper{node: node, log: log.Named("permission")}
}

// Bootstrap writes every permission, every role and the role-permission
// links into the space. Safe to run more than once.
func (b *Bootstrapper) Bootstrap(ctx context.Context, space tenantctx.Space) error {
	return space.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permIDs := make(map[string]snowflake.ID, len(Permissions))
		for _, name := range Permissions {
			id, err := b.ensurePermission(tx, name)
			if err != nil {
				return err
			}
			permIDs[name] = id
		}

		for _, role := range Roles {
			roleID, err := b.ensureRole(tx, role)
			if err != nil {
				return err
			}
			for _, perm := range Matrix[role] {
				link := tenantspace.RolePermission{RoleID: roleID, PermissionID: permIDs[perm]}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
					return fmt.Errorf("link %s to %q: %w", role, perm, err)
				}
			}
		}

		b.log.Info("permission catalogue bootstrapped",
			zap.String("tenant", space.Slug),
			zap.Int("permissions", len(Permissions)),
			zap.Int("roles", len(Roles)),
		)
		return nil
	})
}

// Verify reports whether the space holds the full catalogue. Used as a
// provisioning health check before the tenant is activated.
func (b *Bootstrapper) Verify(ctx context.Context, space tenantctx.Space) error {
	tx := space.DB.WithContext(ctx)

	var permCount int64
	if err := tx.Model(&tenantspace.Permission{}).Count(&permCount).Error; err != nil {
		return err
	}
	if permCount < int64(len(Permissions)) {
		return fmt.Errorf("permission catalogue incomplete: %d of %d", permCount, len(Permissions))
	}

	var roleCount int64
	if err := tx.Model(&tenantspace.Role{}).Count(&roleCount).Error; err != nil {
		return err
	}
	if roleCount < int64(len(Roles)) {
		return fmt.Errorf("role catalogue incomplete: %d of %d", roleCount, len(Roles))
	}
	return nil
}

func (b *Bootstrapper) ensurePermission(tx *gorm.DB, name string) (snowflake.ID, error) {
	var existing tenantspace.Permission
	err := tx.Where("name = ?", name).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	created := tenantspace.Permission{ID: b.node.Generate(), Name: name}
	if err := tx.Create(&created).Error; err != nil {
		return 0, fmt.Errorf("create permission %q: %w", name, err)
	}
	return created.ID, nil
}

func (b *Bootstrapper) ensureRole(tx *gorm.DB, name string) (snowflake.ID, error) {
	var existing tenantspace.Role
	err := tx.Where("name = ?", name).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	created := tenantspace.Role{ID: b.node.Generate(), Name: name}
	if err := tx.Create(&created).Error; err != nil {
		return 0, fmt.Errorf("create role %q: %w", name, err)
	}
	return created.ID, nil
}
