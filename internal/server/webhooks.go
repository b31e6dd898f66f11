package server

import (
	"errors"
	"net/http"

	"github.com/boardstack/boardstack/internal/billing"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleBillingWebhook verifies, parses and applies one provider
// notification. Unknown event types and unresolvable tenants return
// 200 so the provider stops retrying; apply failures return 500 so it
// retries later.
func (s *Server) handleBillingWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, billing.ErrInvalidPayload)
		return
	}

	if err := s.verifier.Verify(payload, c.GetHeader(billing.SignatureHeader)); err != nil {
		AbortWithError(c, err)
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, billing.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
			return
		}
		AbortWithError(c, err)
		return
	}

	if err := s.reconciler.Apply(c.Request.Context(), event); err != nil {
		s.log.Error("webhook apply failed",
			zap.String("event_id", event.EventID()),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
