package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/tier"
)

// LedgerService owns every mutation of credit_balances rows. Debit and
// Credit are single atomic read-modify-writes, correct under arbitrary
// concurrent callers across processes.
type LedgerService interface {
	// Debit spends credits, failing with ErrInsufficientCredit (and no
	// mutation) when the balance cannot cover the amount.
	Debit(ctx context.Context, userID snowflake.ID, creditType CreditType, amount int) (CreditBalance, error)

	// Credit is an unconditional relative increment. Two concurrent calls
	// both land; it never fails for logical reasons, only on storage errors.
	// source labels the increment for metrics (reward, compensation, reset).
	Credit(ctx context.Context, userID snowflake.ID, creditType CreditType, amount int, source string) (CreditBalance, error)

	// CreditTx is Credit running inside the caller's transaction, so a
	// grant's idempotency record and its credit commit together.
	CreditTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, creditType CreditType, amount int, source string) error

	// Read returns a point-in-time snapshot, creating the row lazily.
	Read(ctx context.Context, userID snowflake.ID) (CreditBalance, error)

	// ResetTx overwrites both buckets with a tier's allotment inside the
	// caller's transaction. Used by the downgrade procedure.
	ResetTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, limits tier.Limits, period string) error

	// ResetIfPeriodTx performs the same overwrite but only when the stored
	// last_reset_period still equals observedPeriod, reporting whether the
	// row changed. This guard is what makes the monthly reset idempotent
	// under concurrent callers.
	ResetIfPeriodTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, observedPeriod, newPeriod string, limits tier.Limits) (bool, error)
}

// Service is the package alias for LedgerService.
type Service = LedgerService

var (
	ErrInsufficientCredit = errors.New("insufficient_credit")
	ErrInvalidCreditType  = errors.New("invalid_credit_type")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidUser        = errors.New("invalid_user")
)

// Credit sources recorded in metrics.
const (
	CreditSourceReward       = "reward"
	CreditSourceCompensation = "compensation"
	CreditSourceReset        = "reset"
)
