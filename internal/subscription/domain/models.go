// Package domain contains the subscription record and its state machine
// contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/shareprep/shareprep/internal/tier"
)

// SubscriptionStatus tracks where a user sits in the billing lifecycle.
type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is one user's subscription record. Rows are never deleted;
// a canceled subscription keeps tier=free. GracePeriodEnd is non-nil only
// while status=past_due with a downgrade pending.
type Subscription struct {
	UserID             snowflake.ID       `gorm:"primaryKey" json:"user_id"`
	Tier               tier.Tier          `gorm:"type:text;not null;default:'free'" json:"tier"`
	Status             SubscriptionStatus `gorm:"type:text;not null;default:'canceled'" json:"status"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool               `gorm:"not null;default:false" json:"cancel_at_period_end"`
	PaymentFailedAt    *time.Time         `json:"payment_failed_at,omitempty"`
	GracePeriodEnd     *time.Time         `json:"grace_period_end,omitempty"`
	DowngradeScheduled bool               `gorm:"not null;default:false" json:"downgrade_scheduled"`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// EffectiveTier resolves the tier whose limits currently apply. Premium
// access survives past_due (grace period) but not cancellation.
func (s Subscription) EffectiveTier() tier.Tier {
	if s.Tier != tier.TierPremium {
		return tier.TierFree
	}
	switch s.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return tier.TierPremium
	default:
		return tier.TierFree
	}
}
