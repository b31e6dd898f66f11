package server

import (
	"fmt"
	"net/http"

	"github.com/boardstack/boardstack/internal/billing"
	"github.com/boardstack/boardstack/internal/plan"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	PlanSlug   string `json:"plan_slug" binding:"required"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (s *Server) createCheckout(c *gin.Context) {
	slug := c.Param("slug")
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("plan_slug", "required", "plan_slug is required"))
		return
	}

	ctx := c.Request.Context()
	tenant, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	target, err := s.plans.FindBySlug(ctx, req.PlanSlug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if target.IsFree() {
		AbortWithError(c, newValidationError("plan_slug", "not_billable", "free plans have no checkout"))
		return
	}

	customerID, err := s.gateway.EnsureCustomer(ctx, tenant.ProviderCustomerID, tenant.Slug, tenant.Name, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if customerID != tenant.ProviderCustomerID {
		_, err = s.tenants.UpdateSubscription(ctx, slug, func(t *tenantdomain.Tenant) error {
			t.ProviderCustomerID = customerID
			return nil
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = s.tenantURL(slug) + "/billing/success"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = s.tenantURL(slug) + "/billing"
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    target.ProviderPriceID,
		TenantSlug: tenant.Slug,
		PlanSlug:   target.Slug,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"session_id": session.ID, "url": session.URL})
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

func (s *Server) createPortal(c *gin.Context) {
	slug := c.Param("slug")
	var req portalRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	tenant, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenant.ProviderCustomerID == "" {
		AbortWithError(c, newValidationError("tenant", "no_customer", "tenant has no billing customer"))
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.tenantURL(slug) + "/billing"
	}

	url, err := s.gateway.CreatePortalSession(ctx, tenant.ProviderCustomerID, returnURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

type changePlanRequest struct {
	PlanSlug string `json:"plan_slug" binding:"required"`
}

func (s *Server) changePlan(c *gin.Context) {
	slug := c.Param("slug")
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("plan_slug", "required", "plan_slug is required"))
		return
	}

	ctx := c.Request.Context()
	tenant, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenant.ProviderSubscriptionID == "" {
		AbortWithError(c, newValidationError("tenant", "no_subscription", "tenant has no active subscription"))
		return
	}
	target, err := s.plans.FindBySlug(ctx, req.PlanSlug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if target.IsFree() {
		AbortWithError(c, newValidationError("plan_slug", "not_billable", "downgrade to free by canceling"))
		return
	}

	if err := s.gateway.ChangePlan(ctx, tenant.ProviderSubscriptionID, target.ProviderPriceID); err != nil {
		AbortWithError(c, err)
		return
	}

	// the registry updates when the provider confirms via webhook
	c.JSON(http.StatusAccepted, gin.H{"status": "pending", "plan_slug": target.Slug})
}

type cancelRequest struct {
	AtPeriodEnd *bool `json:"at_period_end"`
}

func (s *Server) cancelSubscription(c *gin.Context) {
	slug := c.Param("slug")
	var req cancelRequest
	_ = c.ShouldBindJSON(&req)
	atPeriodEnd := true
	if req.AtPeriodEnd != nil {
		atPeriodEnd = *req.AtPeriodEnd
	}

	ctx := c.Request.Context()
	tenant, err := s.tenants.FindBySlug(ctx, slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenant.ProviderSubscriptionID == "" {
		AbortWithError(c, newValidationError("tenant", "no_subscription", "tenant has no active subscription"))
		return
	}

	if err := s.gateway.CancelSubscription(ctx, tenant.ProviderSubscriptionID, atPeriodEnd); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "pending", "at_period_end": atPeriodEnd})
}

func (s *Server) billingUsage(c *gin.Context) {
	slug := c.Param("slug")
	ctx := c.Request.Context()

	features := []string{plan.FeatureMaxTeams, plan.FeatureMaxUsers, plan.FeatureMaxBoards}
	usage := make(map[string]gin.H, len(features))
	for _, feature := range features {
		decision, err := s.entitlements.CheckLimit(ctx, slug, feature)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		usage[feature] = gin.H{
			"limit":   decision.Limit,
			"usage":   decision.Usage,
			"allowed": decision.Allowed,
		}
	}
	c.JSON(http.StatusOK, gin.H{"tenant": slug, "features": usage})
}

func (s *Server) tenantURL(slug string) string {
	return fmt.Sprintf("https://%s.%s", slug, s.cfg.BaseDomain)
}
