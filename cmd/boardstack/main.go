package main

import (
	"github.com/boardstack/boardstack/internal/authorization"
	"github.com/boardstack/boardstack/internal/billing"
	"github.com/boardstack/boardstack/internal/board"
	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/entitlement"
	"github.com/boardstack/boardstack/internal/migration"
	"github.com/boardstack/boardstack/internal/observability"
	"github.com/boardstack/boardstack/internal/permission"
	"github.com/boardstack/boardstack/internal/plan"
	"github.com/boardstack/boardstack/internal/provisioning"
	"github.com/boardstack/boardstack/internal/reconciler"
	"github.com/boardstack/boardstack/internal/server"
	"github.com/boardstack/boardstack/internal/tenant"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/boardstack/boardstack/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// registry and catalogue
		tenant.Module,
		plan.Module,

		// tenant spaces and access control
		tenantspace.Module,
		permission.Module,
		authorization.Module,

		// billing pipeline
		billing.Module,
		reconciler.Module,
		entitlement.Module,

		// workspace features
		provisioning.Module,
		board.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
