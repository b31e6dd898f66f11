package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/boardstack/boardstack/internal/provisioning"
	tenantdomain "github.com/boardstack/boardstack/internal/tenant/domain"
	"github.com/gin-gonic/gin"
)

func provisionRequest(req createTenantRequest) provisioning.Request {
	return provisioning.Request{
		Name:          req.Name,
		Slug:          req.Slug,
		PlanSlug:      req.PlanSlug,
		OwnerName:     req.OwnerName,
		OwnerEmail:    req.OwnerEmail,
		OwnerPassword: req.OwnerPassword,
	}
}

type createTenantRequest struct {
	Name          string `json:"name" binding:"required"`
	Slug          string `json:"slug"`
	PlanSlug      string `json:"plan_slug"`
	OwnerName     string `json:"owner_name" binding:"required"`
	OwnerEmail    string `json:"owner_email" binding:"required,email"`
	OwnerPassword string `json:"owner_password" binding:"required,min=8"`
}

type tenantResponse struct {
	Slug               string `json:"slug"`
	Name               string `json:"name"`
	State              string `json:"state"`
	PlanSlug           string `json:"plan_slug"`
	SubscriptionStatus string `json:"subscription_status"`
	URL                string `json:"url"`
}

func (s *Server) tenantResponse(t *tenantdomain.Tenant) tenantResponse {
	return tenantResponse{
		Slug:               t.Slug,
		Name:               t.Name,
		State:              string(t.State),
		PlanSlug:           t.PlanSlug,
		SubscriptionStatus: string(t.SubscriptionStatus),
		URL:                fmt.Sprintf("https://%s.%s", t.Slug, s.cfg.BaseDomain),
	}
}

func (s *Server) createTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	tenant, err := s.provisioner.Provision(c.Request.Context(), provisionRequest(req))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.tenantResponse(tenant))
}

func (s *Server) checkSlug(c *gin.Context) {
	availability, err := s.provisioner.CheckSlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (s *Server) getSubscription(c *gin.Context) {
	slug := c.Param("slug")
	tenant, err := s.tenants.FindBySlug(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	events, err := s.tenants.ListEvents(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenant":               s.tenantResponse(tenant),
		"subscription_ends_at": tenant.SubscriptionEndsAt,
		"events":               events,
	})
}

func (s *Server) deleteTenant(c *gin.Context) {
	slug := c.Param("slug")
	if err := s.provisioner.Deprovision(c.Request.Context(), slug); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": slug})
}

func (s *Server) listPlans(c *gin.Context) {
	plans, err := s.plans.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// requireActiveTenant rejects workspace requests for tenants that are
// missing or not active.
func (s *Server) requireActiveTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := strings.TrimSpace(c.Param("slug"))
		tenant, err := s.tenants.FindBySlug(c.Request.Context(), slug)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if tenant.State != tenantdomain.StateActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "tenant_not_active",
				"state": tenant.State,
			})
			return
		}
		c.Next()
	}
}
