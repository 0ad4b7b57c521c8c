package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
)

// ContentService manages content rows and the month-scoped counts the
// usage limits are derived from.
type ContentService interface {
	Create(ctx context.Context, ownerID snowflake.ID, contentType ledgerdomain.CreditType, title string) (ContentItem, error)
	Get(ctx context.Context, contentID snowflake.ID) (ContentItem, error)

	// MarkShared flips the shared flag exactly once; a second call on the
	// same item reports ErrAlreadyShared so callers never double-spend.
	MarkShared(ctx context.Context, contentID, ownerID snowflake.ID) error

	// SoftDelete hides the item. Rewards already earned from it and its
	// contribution to this month's creation count are unaffected.
	SoftDelete(ctx context.Context, contentID, ownerID snowflake.ID) error

	// CountCreatedInMonth counts rows created in at's calendar month,
	// soft-deleted rows included, so deleting and recreating cannot
	// stretch a creation limit.
	CountCreatedInMonth(ctx context.Context, ownerID snowflake.ID, contentType ledgerdomain.CreditType, at time.Time) (int, error)

	RecordLibraryAccess(ctx context.Context, userID, contentID snowflake.ID) error
	CountLibraryAccessInMonth(ctx context.Context, userID snowflake.ID, at time.Time) (int, error)
}

// Service is the package alias for ContentService.
type Service = ContentService

var (
	ErrInvalidOwner       = errors.New("invalid_owner")
	ErrInvalidContentType = errors.New("invalid_content_type")
	ErrContentNotFound    = errors.New("content_not_found")
	ErrAlreadyShared      = errors.New("content_already_shared")
)
