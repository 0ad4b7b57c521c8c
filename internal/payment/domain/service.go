// Package domain defines the webhook intake contracts for the payment
// provider integration.
package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event types after provider mapping.
const (
	EventCheckoutCompleted    = "checkout_completed"
	EventTrialStarted         = "trial_started"
	EventPaymentFailed        = "payment_failed"
	EventPaymentSucceeded     = "payment_succeeded"
	EventCancellationArmed    = "cancellation_armed"
	EventCancellationDisarmed = "cancellation_disarmed"
)

// PaymentEvent is one provider signal mapped into internal terms.
type PaymentEvent struct {
	ProviderEventID string
	Type            string
	UserID          snowflake.ID
	PeriodEnd       *time.Time
}

// EventRecord is the durable intake row. The unique provider event id
// absorbs webhook replays before any state machine runs.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null;default:'stripe'"`
	ProviderEventID string         `gorm:"type:text;not null"`
	EventType       string         `gorm:"type:text;not null"`
	UserID          *snowflake.ID  `gorm:"index"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"`
	ReceivedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }

// Adapter verifies and translates one provider's webhook deliveries.
type Adapter interface {
	Provider() string
	VerifyAndParse(payload []byte, headers http.Header) (PaymentEvent, error)
}

// PaymentService ingests provider webhooks.
type PaymentService interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

// Service is the package alias for PaymentService.
type Service = PaymentService

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidCustomer  = errors.New("invalid_customer")
	// ErrEventIgnored marks provider events the platform has no handler
	// for. Intake treats it as success.
	ErrEventIgnored = errors.New("event_ignored")
)
