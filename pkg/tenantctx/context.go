// Package tenantctx carries the resolved tenant space through request
// contexts. Handlers resolve a slug to a scoped database handle once at
// the boundary, then pass the Space down explicitly or via context.
package tenantctx

import (
	"context"

	"gorm.io/gorm"
)

type keyType string

const spaceKey keyType = "tenant_space"

// Space is a tenant slug bound to a database handle scoped to that
// tenant's tables.
type Space struct {
	Slug string
	DB   *gorm.DB
}

// WithSpace stores the resolved space on the context.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext returns the resolved space, if any.
func FromContext(ctx context.Context) (Space, bool) {
	space, ok := ctx.Value(spaceKey).(Space)
	return space, ok
}
