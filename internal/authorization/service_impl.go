// Package authorization enforces the per-tenant role matrix with casbin.
// Role grants are seeded once from the permission catalogue; member to
// role bindings are grouped per tenant domain ("tenant:<slug>").
package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/boardstack/boardstack/internal/permission"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/tenantctx"
	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// Service answers "may this member do this action on this object in
// this tenant".
type Service interface {
	Authorize(ctx context.Context, space tenantctx.Space, actor string, object string, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the synced enforcer backed by the shared database
// and seeds the role policies from the permission matrix.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

// seedPolicies grants each role its permissions across all tenant
// domains. "view boards" becomes object "boards", action "view".
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for role, perms := range permission.Matrix {
		subject := "role:" + role
		for _, perm := range perms {
			object, action := splitPermission(perm)
			has, err := enforcer.HasPolicy(subject, "*", object, action)
			if err != nil {
				return err
			}
			if has {
				continue
			}
			if _, err := enforcer.AddPolicy(subject, "*", object, action); err != nil {
				return err
			}
		}
	}

	return nil
}

func splitPermission(perm string) (object string, action string) {
	parts := strings.SplitN(strings.TrimSpace(perm), " ", 2)
	if len(parts) != 2 {
		return perm, perm
	}
	return parts[1], parts[0]
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, space tenantctx.Space, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	if strings.TrimSpace(space.Slug) == "" {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	domain := "tenant:" + space.Slug

	subject, roleName, err := s.resolveActor(ctx, space, actor)
	if err != nil {
		return err
	}
	if roleName != "" {
		if err := s.ensureGrouping(subject, roleName, domain); err != nil {
			return err
		}
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("access denied",
			zap.String("tenant", space.Slug),
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, space tenantctx.Space, actor string) (string, string, error) {
	// The system principal acts with owner rights in every tenant.
	// Grouping rules bind per domain, so the role is attached here and
	// ensureGrouping installs it for the tenant being enforced.
	if actor == "system" {
		return actor, "role:" + permission.RoleOwner, nil
	}
	if memberIDRaw, ok := strings.CutPrefix(actor, "member:"); ok {
		memberID, err := snowflake.ParseString(memberIDRaw)
		if err != nil || memberID == 0 {
			return "", "", ErrInvalidActor
		}
		role, err := s.roleForMember(ctx, space, memberID)
		if err != nil {
			return "", "", err
		}
		return actor, "role:" + strings.ToLower(role), nil
	}
	return "", "", ErrInvalidActor
}

func (s *ServiceImpl) roleForMember(ctx context.Context, space tenantctx.Space, memberID snowflake.ID) (string, error) {
	var member tenantspace.Member
	if err := space.DB.WithContext(ctx).First(&member, "id = ?", memberID).Error; err != nil {
		return "", fmt.Errorf("resolve member role: %w", err)
	}
	role := strings.TrimSpace(member.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) >= 2 && rule[1] == roleName {
			return nil
		}
		// role changed since the last request; drop the stale binding
		if _, err := s.enforcer.RemoveGroupingPolicy(rule); err != nil {
			return err
		}
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

// Forget removes every policy binding scoped to the tenant domain.
// Called when a tenant is deprovisioned.
func Forget(enforcer *casbin.SyncedEnforcer, slug string) error {
	domain := "tenant:" + slug
	if _, err := enforcer.RemoveFilteredGroupingPolicy(2, domain); err != nil {
		return err
	}
	_, err := enforcer.RemoveFilteredPolicy(1, domain)
	return err
}
