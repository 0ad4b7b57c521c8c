package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/shareprep/shareprep/internal/limiter"
)

// pathID parses a snowflake path parameter, writing the error response
// itself when the value is garbage.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError(name, "invalid_argument", "must be a valid id"))
		return 0, false
	}
	return id, true
}

// GetCredits returns the user's current balance. A due monthly reset is
// applied first, so the caller never sees a stale allotment.
func (s *Server) GetCredits(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if _, err := s.resetProtocol.ResetIfDue(c.Request.Context(), userID); err != nil {
		AbortWithError(c, err)
		return
	}
	balance, err := s.ledgerSvc.Read(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

// GetSubscription returns the subscription record with its effective tier.
func (s *Server) GetSubscription(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sub, err := s.subscriptionSvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"subscription":   sub,
		"effective_tier": sub.EffectiveTier(),
	}})
}

// GetGraceStatus reports the user's grace window, zero when none.
func (s *Server) GetGraceStatus(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	status, err := s.graceCtrl.GetStatus(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

// GetLimit answers whether the user may perform one action right now.
func (s *Server) GetLimit(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}
	action, err := limiter.ParseAction(c.Param("action"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	decision, err := s.limiter.CanPerform(c.Request.Context(), userID, action)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}
