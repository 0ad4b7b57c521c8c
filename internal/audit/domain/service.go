package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Entry is what callers record. The service fills in ID and timestamp.
type Entry struct {
	UserID     snowflake.ID
	ActorType  ActorType
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// ListFilter narrows a trail query.
type ListFilter struct {
	UserID    snowflake.ID
	Action    string
	ActorType string
	StartAt   *time.Time
	EndAt     *time.Time
	Limit     int
}

// AuditService records and lists audit rows.
type AuditService interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

// Service is the package alias for AuditService.
type Service = AuditService

var ErrInvalidAction = errors.New("invalid_action")
