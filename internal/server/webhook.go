package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody bounds how much of a webhook payload is read. Stripe
// events are a few KB; anything near this limit is not a real event.
const maxWebhookBody = 1 << 20

// StripeWebhook ingests provider events. The response is 200 for every
// accepted delivery, including replays, so the provider stops retrying.
func (s *Server) StripeWebhook(c *gin.Context) {
	if !s.webhookLimiter.Allow(c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": gin.H{
			"code":    "rate_limited",
			"message": "too many requests",
		}})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.paymentSvc.IngestWebhook(c.Request.Context(), payload, c.Request.Header); err != nil {
		s.log.Warn("webhook rejected", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
