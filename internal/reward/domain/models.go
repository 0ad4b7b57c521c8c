// Package domain contains the reward transaction log and grant contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
)

// RewardTransaction is the durable proof that a reward was earned.
// Append-only: rows are never mutated or deleted, even when the shared
// content that produced them is removed later. The uniqueness constraint
// on SourceCompletionID is what makes concurrent duplicate deliveries
// grant exactly once.
type RewardTransaction struct {
	ID                 snowflake.ID            `gorm:"primaryKey" json:"id"`
	OwnerUserID        snowflake.ID            `gorm:"not null;index" json:"owner_user_id"`
	CreditType         ledgerdomain.CreditType `gorm:"type:text;not null" json:"credit_type"`
	Amount             int                     `gorm:"not null;default:1" json:"amount"`
	SourceCompletionID string                  `gorm:"type:text;not null;uniqueIndex:ux_reward_transactions_source" json:"source_completion_id"`
	CreatedAt          time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RewardTransaction) TableName() string { return "reward_transactions" }

// CompletionEvent is the inbound "someone finished shared content" signal.
// Produced by the completion flow, consumed exactly once per CompletionID.
type CompletionEvent struct {
	CompletionID     string                  `json:"completion_id"`
	PostOwnerID      snowflake.ID            `json:"post_owner_id"`
	CompletingUserID snowflake.ID            `json:"completing_user_id"`
	ContentType      ledgerdomain.CreditType `json:"content_type"`
	CreatedAt        time.Time               `json:"created_at"`
}
