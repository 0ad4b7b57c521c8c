package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	auditdomain "github.com/shareprep/shareprep/internal/audit/domain"
)

const defaultSweepBatch = 100

// TriggerSweep runs one downgrade sweep on demand. Operators use it
// after incidents instead of waiting for the next scheduled pass.
func (s *Server) TriggerSweep(c *gin.Context) {
	limit := defaultSweepBatch
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("limit", "invalid_argument", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	result := s.graceCtrl.SweepExpired(c.Request.Context(), limit)

	errMessages := make([]string, 0, len(result.Errors))
	for _, err := range result.Errors {
		errMessages = append(errMessages, err.Error())
	}

	if err := s.auditSvc.Record(c.Request.Context(), auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeSystem,
		Action:     auditdomain.ActionManualSweepTriggered,
		TargetType: "sweep",
		Metadata: map[string]any{
			"processed": result.ProcessedCount,
			"errors":    len(result.Errors),
		},
	}); err != nil {
		s.log.Warn("manual sweep audit write failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"processed": result.ProcessedCount,
		"errors":    errMessages,
	}})
}
