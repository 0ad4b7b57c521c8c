package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/clock"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/observability/metrics"
	"github.com/shareprep/shareprep/internal/tier"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Catalog *tier.Catalog
	Clock   clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	catalog *tier.Catalog
	clock   clock.Clock
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		catalog: p.Catalog,
		clock:   p.Clock,
	}
}

func (s *Service) Debit(ctx context.Context, userID snowflake.ID, creditType ledgerdomain.CreditType, amount int) (ledgerdomain.CreditBalance, error) {
	column, err := creditColumn(creditType)
	if err != nil {
		return ledgerdomain.CreditBalance{}, err
	}
	if err := validate(userID, amount); err != nil {
		return ledgerdomain.CreditBalance{}, err
	}

	var balance ledgerdomain.CreditBalance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureTx(ctx, tx, userID); err != nil {
			return err
		}

		// The balance guard lives in the WHERE clause so two concurrent
		// debits for the last credit cannot both succeed.
		result := tx.WithContext(ctx).Exec(
			fmt.Sprintf(
				`UPDATE credit_balances
				 SET %s = %s - ?, updated_at = ?
				 WHERE user_id = ? AND %s >= ?`,
				column, column, column,
			),
			amount,
			s.clock.Now(),
			userID,
			amount,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ledgerdomain.ErrInsufficientCredit
		}
		return s.loadTx(ctx, tx, userID, &balance)
	})
	if err != nil {
		result := "error"
		if errors.Is(err, ledgerdomain.ErrInsufficientCredit) {
			result = "insufficient"
		}
		metrics.Core().IncDebit(string(creditType), result)
		return ledgerdomain.CreditBalance{}, err
	}

	metrics.Core().IncDebit(string(creditType), "success")
	return balance, nil
}

func (s *Service) Credit(ctx context.Context, userID snowflake.ID, creditType ledgerdomain.CreditType, amount int, source string) (ledgerdomain.CreditBalance, error) {
	column, err := creditColumn(creditType)
	if err != nil {
		return ledgerdomain.CreditBalance{}, err
	}
	if err := validate(userID, amount); err != nil {
		return ledgerdomain.CreditBalance{}, err
	}

	var balance ledgerdomain.CreditBalance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.creditTx(ctx, tx, userID, column, amount); err != nil {
			return err
		}
		return s.loadTx(ctx, tx, userID, &balance)
	})
	if err != nil {
		return ledgerdomain.CreditBalance{}, err
	}

	metrics.Core().IncCredit(string(creditType), source)
	return balance, nil
}

func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, creditType ledgerdomain.CreditType, amount int, source string) error {
	column, err := creditColumn(creditType)
	if err != nil {
		return err
	}
	if err := validate(userID, amount); err != nil {
		return err
	}
	if err := s.creditTx(ctx, tx, userID, column, amount); err != nil {
		return err
	}
	metrics.Core().IncCredit(string(creditType), source)
	return nil
}

func (s *Service) creditTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, column string, amount int) error {
	if err := s.ensureTx(ctx, tx, userID); err != nil {
		return err
	}
	// Relative increment, not a set: concurrent credits must all land.
	return tx.WithContext(ctx).Exec(
		fmt.Sprintf(
			`UPDATE credit_balances
			 SET %s = %s + ?, updated_at = ?
			 WHERE user_id = ?`,
			column, column,
		),
		amount,
		s.clock.Now(),
		userID,
	).Error
}

func (s *Service) Read(ctx context.Context, userID snowflake.ID) (ledgerdomain.CreditBalance, error) {
	if userID == 0 {
		return ledgerdomain.CreditBalance{}, ledgerdomain.ErrInvalidUser
	}

	var balance ledgerdomain.CreditBalance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureTx(ctx, tx, userID); err != nil {
			return err
		}
		return s.loadTx(ctx, tx, userID, &balance)
	})
	if err != nil {
		return ledgerdomain.CreditBalance{}, err
	}
	return balance, nil
}

func (s *Service) ResetTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, limits tier.Limits, period string) error {
	if userID == 0 {
		return ledgerdomain.ErrInvalidUser
	}
	if err := s.ensureTx(ctx, tx, userID); err != nil {
		return err
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET exam_share_credits = ?, practice_share_credits = ?, last_reset_period = ?, updated_at = ?
		 WHERE user_id = ?`,
		limits.ExamShareCredits,
		limits.PracticeShareCredits,
		period,
		s.clock.Now(),
		userID,
	).Error
}

func (s *Service) ResetIfPeriodTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, observedPeriod, newPeriod string, limits tier.Limits) (bool, error) {
	if userID == 0 {
		return false, ledgerdomain.ErrInvalidUser
	}
	if err := s.ensureTx(ctx, tx, userID); err != nil {
		return false, err
	}

	// Guarding on the observed period means that of N concurrent callers
	// in the same month, exactly one performs the reset.
	result := tx.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET exam_share_credits = ?, practice_share_credits = ?, last_reset_period = ?, updated_at = ?
		 WHERE user_id = ? AND last_reset_period = ?`,
		limits.ExamShareCredits,
		limits.PracticeShareCredits,
		newPeriod,
		s.clock.Now(),
		userID,
		observedPeriod,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ensureTx creates the balance row lazily with free-tier defaults. Premium
// allotments are applied by subscription activation and the monthly reset,
// which run before any spend on those paths.
func (s *Service) ensureTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	defaults := s.catalog.Limits(tier.TierFree)
	now := s.clock.Now()
	return tx.WithContext(ctx).Exec(
		`INSERT INTO credit_balances (user_id, exam_share_credits, practice_share_credits, last_reset_period, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		defaults.ExamShareCredits,
		defaults.PracticeShareCredits,
		ledgerdomain.PeriodOf(now),
		now,
		now,
	).Error
}

func (s *Service) loadTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, out *ledgerdomain.CreditBalance) error {
	return tx.WithContext(ctx).Raw(
		`SELECT user_id, exam_share_credits, practice_share_credits, last_reset_period, created_at, updated_at
		 FROM credit_balances
		 WHERE user_id = ?`,
		userID,
	).Scan(out).Error
}

func creditColumn(creditType ledgerdomain.CreditType) (string, error) {
	switch creditType {
	case ledgerdomain.CreditTypeExam:
		return "exam_share_credits", nil
	case ledgerdomain.CreditTypePractice:
		return "practice_share_credits", nil
	default:
		return "", ledgerdomain.ErrInvalidCreditType
	}
}

func validate(userID snowflake.ID, amount int) error {
	if userID == 0 {
		return ledgerdomain.ErrInvalidUser
	}
	if amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	return nil
}
