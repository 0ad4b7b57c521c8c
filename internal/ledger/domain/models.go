// Package domain contains the share-credit balance model and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreditType distinguishes the two share-credit buckets.
type CreditType string

const (
	CreditTypeExam     CreditType = "exam"
	CreditTypePractice CreditType = "practice"
)

// Valid reports whether the credit type is one of the known buckets.
func (t CreditType) Valid() bool {
	return t == CreditTypeExam || t == CreditTypePractice
}

// CreditBalance holds a user's current share credits. One row per user,
// created lazily on first access. Both credit columns carry a non-negative
// check constraint; every mutation goes through the ledger service.
type CreditBalance struct {
	UserID               snowflake.ID `gorm:"primaryKey" json:"user_id"`
	ExamShareCredits     int          `gorm:"not null;default:0" json:"exam_share_credits"`
	PracticeShareCredits int          `gorm:"not null;default:0" json:"practice_share_credits"`
	LastResetPeriod      string       `gorm:"type:text;not null" json:"last_reset_period"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// Credits returns the balance for the requested bucket.
func (b CreditBalance) Credits(creditType CreditType) int {
	switch creditType {
	case CreditTypeExam:
		return b.ExamShareCredits
	case CreditTypePractice:
		return b.PracticeShareCredits
	default:
		return 0
	}
}
