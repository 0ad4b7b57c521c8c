package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/limiter"
)

type createContentRequest struct {
	OwnerUserID string `json:"owner_user_id"`
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
}

// CreateContent creates a draft exam or practice after the creation
// limit check passes. A denial carries the limiter's reason.
func (s *Server) CreateContent(c *gin.Context) {
	var req createContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerID, err := snowflake.ParseString(req.OwnerUserID)
	if err != nil {
		AbortWithError(c, newValidationError("owner_user_id", "invalid_argument", "must be a valid id"))
		return
	}

	contentType := ledgerdomain.CreditType(req.ContentType)
	action := limiter.ActionCreateExam
	if contentType == ledgerdomain.CreditTypePractice {
		action = limiter.ActionCreatePractice
	}
	decision, err := s.limiter.CanPerform(c.Request.Context(), ownerID, action)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !decision.Allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{
			"code":      decision.Reason,
			"message":   "monthly creation limit reached",
			"remaining": decision.Remaining,
		}})
		return
	}

	item, err := s.contentSvc.Create(c.Request.Context(), ownerID, contentType, req.Title)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

type shareContentRequest struct {
	UserID string `json:"user_id"`
}

// ShareContent spends one credit and publishes the item to the library.
func (s *Server) ShareContent(c *gin.Context) {
	contentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req shareContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_argument", "must be a valid id"))
		return
	}

	if err := s.sharing.Share(c.Request.Context(), userID, contentID, nil); err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.contentSvc.Get(c.Request.Context(), contentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// DeleteContent soft-deletes the item. Credits already spent sharing it
// and rewards already earned from it are untouched.
func (s *Server) DeleteContent(c *gin.Context) {
	contentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ownerID, err := snowflake.ParseString(c.Query("owner_user_id"))
	if err != nil {
		AbortWithError(c, newValidationError("owner_user_id", "invalid_argument", "must be a valid id"))
		return
	}

	if err := s.contentSvc.SoftDelete(c.Request.Context(), contentID, ownerID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

type libraryAccessRequest struct {
	UserID    string `json:"user_id"`
	ContentID string `json:"content_id"`
}

// RecordLibraryAccess checks the library cap and records one access.
func (s *Server) RecordLibraryAccess(c *gin.Context) {
	var req libraryAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_argument", "must be a valid id"))
		return
	}
	contentID, err := snowflake.ParseString(req.ContentID)
	if err != nil {
		AbortWithError(c, newValidationError("content_id", "invalid_argument", "must be a valid id"))
		return
	}

	decision, err := s.limiter.CanPerform(c.Request.Context(), userID, limiter.ActionAccessLibrary)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !decision.Allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{
			"code":      decision.Reason,
			"message":   "monthly library access limit reached",
			"remaining": decision.Remaining,
		}})
		return
	}

	if err := s.contentSvc.RecordLibraryAccess(c.Request.Context(), userID, contentID); err != nil {
		AbortWithError(c, err)
		return
	}

	remaining := decision.Remaining
	if remaining > 0 {
		remaining--
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"recorded": true, "remaining": remaining}})
}
