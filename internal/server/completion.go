package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	rewarddomain "github.com/shareprep/shareprep/internal/reward/domain"
)

type ingestCompletionRequest struct {
	CompletionID     string `json:"completion_id"`
	PostOwnerID      string `json:"post_owner_id"`
	CompletingUserID string `json:"completing_user_id"`
	ContentType      string `json:"content_type"`
}

// IngestCompletion accepts one completion event and grants the owner's
// reward. Replays return the same 200 with already_granted set.
func (s *Server) IngestCompletion(c *gin.Context) {
	var req ingestCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerID, err := snowflake.ParseString(req.PostOwnerID)
	if err != nil {
		AbortWithError(c, newValidationError("post_owner_id", "invalid_argument", "must be a valid id"))
		return
	}
	completerID, err := snowflake.ParseString(req.CompletingUserID)
	if err != nil {
		AbortWithError(c, newValidationError("completing_user_id", "invalid_argument", "must be a valid id"))
		return
	}

	result, err := s.rewardSvc.Grant(c.Request.Context(), rewarddomain.CompletionEvent{
		CompletionID:     req.CompletionID,
		PostOwnerID:      ownerID,
		CompletingUserID: completerID,
		ContentType:      ledgerdomain.CreditType(req.ContentType),
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListRewards returns the user's reward history, newest first.
func (s *Server) ListRewards(c *gin.Context) {
	userID, ok := pathID(c, "id")
	if !ok {
		return
	}

	rewards, err := s.rewardSvc.ListByOwner(c.Request.Context(), userID, 50)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rewards})
}
