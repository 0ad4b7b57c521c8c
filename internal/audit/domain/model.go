// Package domain defines the immutable audit trail for lifecycle and
// reconciliation events.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActorType represents who triggered an action.
type ActorType string

const (
	ActorTypeUser    ActorType = "user"
	ActorTypeSystem  ActorType = "system"
	ActorTypeWebhook ActorType = "webhook"
)

// Recorded actions.
const (
	ActionSubscriptionDowngraded = "subscription.downgraded"
	ActionCancellationExpired    = "subscription.cancellation_expired"
	ActionCompensationFailed     = "ledger.compensation_failed"
	ActionManualSweepTriggered   = "grace.manual_sweep"
)

// AuditLog is one immutable record. Rows are never updated or deleted;
// compensation failures land here for manual reconciliation.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	UserID     *snowflake.ID     `gorm:"index"`
	ActorType  string            `gorm:"type:text;not null"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
