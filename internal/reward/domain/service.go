package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// GrantResult reports what a grant attempt did.
type GrantResult struct {
	Granted        bool `json:"granted"`
	AlreadyGranted bool `json:"already_granted"`
}

// RewardService consumes completion events and credits content owners.
type RewardService interface {
	// Grant applies one completion event. Self-completions are rejected
	// silently; a replayed CompletionID reports AlreadyGranted with no
	// credit effect.
	Grant(ctx context.Context, event CompletionEvent) (GrantResult, error)

	// ListByOwner returns the owner's reward history, newest first.
	ListByOwner(ctx context.Context, ownerID snowflake.ID, limit int) ([]RewardTransaction, error)
}

// Service is the package alias for RewardService.
type Service = RewardService

var (
	ErrInvalidCompletionID = errors.New("invalid_completion_id")
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrInvalidCompleter    = errors.New("invalid_completer")
	ErrInvalidContentType  = errors.New("invalid_content_type")
)
