package entitlement

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireWithinLimit blocks the request with 403 when the tenant has
// exhausted the feature's plan limit. The tenant slug is taken from
// the ":slug" route parameter.
func (s *Service) RequireWithinLimit(feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := strings.TrimSpace(c.Param("slug"))
		if slug == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_tenant"})
			return
		}

		decision, err := s.CheckLimit(c.Request.Context(), slug, feature)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "plan_limit_unresolved",
				"feature": feature,
			})
			return
		}
		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "plan_limit_reached",
				"feature": decision.Feature,
				"limit":   decision.Limit,
				"usage":   decision.Usage,
			})
			return
		}
		c.Next()
	}
}
