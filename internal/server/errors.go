package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	contentdomain "github.com/shareprep/shareprep/internal/content/domain"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/limiter"
	paymentdomain "github.com/shareprep/shareprep/internal/payment/domain"
	rewarddomain "github.com/shareprep/shareprep/internal/reward/domain"
	"github.com/shareprep/shareprep/internal/sharing"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
)

// APIError is the wire shape for every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

var ErrNotFound = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Message: message, Field: field}
}

// errorStatus maps domain sentinels onto HTTP responses. Anything
// unmapped is a 500 with no internal detail leaked.
func errorStatus(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientCredit):
		return &APIError{Status: http.StatusConflict, Code: "insufficient_credit", Message: "not enough credits for this action"}
	case errors.Is(err, contentdomain.ErrContentNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "content_not_found", Message: "content does not exist"}
	case errors.Is(err, contentdomain.ErrAlreadyShared):
		return &APIError{Status: http.StatusConflict, Code: "content_already_shared", Message: "content is already shared"}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return &APIError{Status: http.StatusUnauthorized, Code: "invalid_signature", Message: "webhook signature verification failed"}
	case errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidCustomer):
		return &APIError{Status: http.StatusBadRequest, Code: "invalid_webhook", Message: "webhook payload could not be processed"}
	case errors.Is(err, limiter.ErrUnknownAction):
		return &APIError{Status: http.StatusBadRequest, Code: "unknown_action", Message: "unknown limited action"}
	case errors.Is(err, sharing.ErrCompensationFailed):
		return &APIError{Status: http.StatusInternalServerError, Code: "share_failed", Message: "share failed and could not be rolled back"}
	case errors.Is(err, ledgerdomain.ErrInvalidCreditType),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, limiter.ErrInvalidUser),
		errors.Is(err, subscriptiondomain.ErrInvalidUser),
		errors.Is(err, subscriptiondomain.ErrInvalidPeriodEnd),
		errors.Is(err, contentdomain.ErrInvalidOwner),
		errors.Is(err, contentdomain.ErrInvalidContentType),
		errors.Is(err, rewarddomain.ErrInvalidCompletionID),
		errors.Is(err, rewarddomain.ErrInvalidOwner),
		errors.Is(err, rewarddomain.ErrInvalidCompleter),
		errors.Is(err, rewarddomain.ErrInvalidContentType):
		return &APIError{Status: http.StatusBadRequest, Code: "invalid_argument", Message: err.Error()}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: "internal_error", Message: "internal error"}
	}
}

// AbortWithError writes the mapped error response and stops the chain.
func AbortWithError(c *gin.Context, err error) {
	apiErr := errorStatus(err)
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
}
