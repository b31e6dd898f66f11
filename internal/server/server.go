package server

import (
	"context"
	"net/http"
	"time"

	"github.com/boardstack/boardstack/internal/authorization"
	"github.com/boardstack/boardstack/internal/billing"
	"github.com/boardstack/boardstack/internal/board"
	"github.com/boardstack/boardstack/internal/config"
	"github.com/boardstack/boardstack/internal/entitlement"
	"github.com/boardstack/boardstack/internal/observability"
	obslogger "github.com/boardstack/boardstack/internal/observability/logger"
	obsmetrics "github.com/boardstack/boardstack/internal/observability/metrics"
	obstracing "github.com/boardstack/boardstack/internal/observability/tracing"
	"github.com/boardstack/boardstack/internal/plan"
	"github.com/boardstack/boardstack/internal/provisioning"
	"github.com/boardstack/boardstack/internal/reconciler"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(m.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	genID        *snowflake.Node
	tenants      tenantdomain.Repository
	plans        plan.Repository
	spaces       *tenantspace.Manager
	provisioner  *provisioning.Service
	reconciler   *reconciler.Reconciler
	gateway      billing.Gateway
	verifier     *billing.Verifier
	entitlements *entitlement.Service
	authzSvc     authorization.Service
	boardSvc     *board.Service
	metrics      *obsmetrics.Metrics
	log          *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	GenID        *snowflake.Node
	Tenants      tenantdomain.Repository
	Plans        plan.Repository
	Spaces       *tenantspace.Manager
	Provisioner  *provisioning.Service
	Reconciler   *reconciler.Reconciler
	Gateway      billing.Gateway
	Verifier     *billing.Verifier
	Entitlements *entitlement.Service
	AuthzSvc     authorization.Service
	BoardSvc     *board.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
	Log          *zap.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		genID:        p.GenID,
		tenants:      p.Tenants,
		plans:        p.Plans,
		spaces:       p.Spaces,
		provisioner:  p.Provisioner,
		reconciler:   p.Reconciler,
		gateway:      p.Gateway,
		verifier:     p.Verifier,
		entitlements: p.Entitlements,
		authzSvc:     p.AuthzSvc,
		boardSvc:     p.BoardSvc,
		metrics:      p.Metrics,
		log:          p.Log.Named("server"),
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterTenantRoutes()
	s.RegisterWebhookRoutes()
}

// RegisterAPIRoutes mounts the control-plane surface.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/plans", s.listPlans)

	tenants := api.Group("/tenants")
	tenants.POST("", s.createTenant)
	tenants.GET("/check/:slug", s.checkSlug)
	tenants.GET("/:slug/subscription", s.getSubscription)
	tenants.DELETE("/:slug", s.deleteTenant)

	tenantBilling := tenants.Group("/:slug/billing")
	tenantBilling.POST("/checkout", s.createCheckout)
	tenantBilling.POST("/portal", s.createPortal)
	tenantBilling.POST("/change-plan", s.changePlan)
	tenantBilling.POST("/cancel", s.cancelSubscription)
	tenantBilling.GET("/usage", s.billingUsage)
}

// RegisterTenantRoutes mounts the per-tenant workspace surface.
func (s *Server) RegisterTenantRoutes() {
	t := s.engine.Group("/t/:slug")
	t.Use(s.requireActiveTenant())

	boards := t.Group("/boards")
	boards.GET("", s.listBoards)
	boards.POST("", s.entitlements.RequireWithinLimit(plan.FeatureMaxBoards), s.createBoard)
	boards.DELETE("/:id", s.deleteBoard)
}

// RegisterWebhookRoutes mounts the billing provider callback.
func (s *Server) RegisterWebhookRoutes() {
	s.engine.POST("/api/webhooks/billing", s.handleBillingWebhook)
}
