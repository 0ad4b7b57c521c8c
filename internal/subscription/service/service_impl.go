package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/clock"
	"github.com/shareprep/shareprep/internal/config"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
	"github.com/shareprep/shareprep/internal/tier"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	Catalog   *tier.Catalog
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	catalog   *tier.Catalog
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service

	gracePeriod       time.Duration
	extendGraceOnFail bool
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		catalog:   p.Catalog,
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,

		gracePeriod:       time.Duration(p.Cfg.GracePeriodDays) * 24 * time.Hour,
		extendGraceOnFail: p.Cfg.ExtendGraceOnRepeatFailure,
	}
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if userID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}

	var record subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Raw(
		`SELECT user_id, tier, status, current_period_end, cancel_at_period_end,
		        payment_failed_at, grace_period_end, downgrade_scheduled,
		        created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = ?`,
		userID,
	).Scan(&record).Error
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if record.UserID == 0 {
		// Never subscribed: the implicit record is free/canceled.
		return subscriptiondomain.Subscription{
			UserID: userID,
			Tier:   tier.TierFree,
			Status: subscriptiondomain.StatusCanceled,
		}, nil
	}
	return record, nil
}

func (s *Service) StartTrial(ctx context.Context, userID snowflake.ID, periodEnd time.Time) error {
	return s.beginPremium(ctx, userID, subscriptiondomain.StatusTrialing, periodEnd)
}

func (s *Service) Activate(ctx context.Context, userID snowflake.ID, periodEnd time.Time) error {
	return s.beginPremium(ctx, userID, subscriptiondomain.StatusActive, periodEnd)
}

// beginPremium handles the externally driven trial-start and purchase
// transitions. The premium allotment is applied in the same transaction so
// a new subscriber can share immediately.
func (s *Service) beginPremium(ctx context.Context, userID snowflake.ID, status subscriptiondomain.SubscriptionStatus, periodEnd time.Time) error {
	if userID == 0 {
		return subscriptiondomain.ErrInvalidUser
	}
	now := s.clock.Now()
	if periodEnd.IsZero() || !periodEnd.After(now) {
		return subscriptiondomain.ErrInvalidPeriodEnd
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureTx(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET tier = ?, status = ?, current_period_end = ?,
			     cancel_at_period_end = false, payment_failed_at = NULL,
			     grace_period_end = NULL, downgrade_scheduled = false,
			     updated_at = ?
			 WHERE user_id = ?`,
			tier.TierPremium,
			status,
			periodEnd.UTC(),
			now,
			userID,
		).Error; err != nil {
			return err
		}
		return s.ledgerSvc.ResetTx(ctx, tx, userID, s.catalog.Limits(tier.TierPremium), ledgerdomain.PeriodOf(now))
	})
}

func (s *Service) MarkPaymentFailed(ctx context.Context, userID snowflake.ID) (bool, error) {
	if userID == 0 {
		return false, subscriptiondomain.ErrInvalidUser
	}
	now := s.clock.Now()
	deadline := now.Add(s.gracePeriod)

	// active/trialing arm the grace deadline. past_due is matched only
	// when the extend-on-repeat policy is enabled; otherwise a retried
	// failure signal leaves the original deadline standing.
	allowed := []any{subscriptiondomain.StatusActive, subscriptiondomain.StatusTrialing}
	if s.extendGraceOnFail {
		allowed = append(allowed, subscriptiondomain.StatusPastDue)
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, payment_failed_at = ?, grace_period_end = ?,
		     downgrade_scheduled = true, updated_at = ?
		 WHERE user_id = ? AND tier = ? AND status IN ?`,
		subscriptiondomain.StatusPastDue,
		now,
		deadline,
		now,
		userID,
		tier.TierPremium,
		allowed,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("payment failure recorded",
			zap.String("user_id", userID.String()),
			zap.Time("grace_period_end", deadline),
		)
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) ClearPaymentFailure(ctx context.Context, userID snowflake.ID) (bool, error) {
	if userID == 0 {
		return false, subscriptiondomain.ErrInvalidUser
	}
	now := s.clock.Now()

	result := s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, payment_failed_at = NULL, grace_period_end = NULL,
		     downgrade_scheduled = false, updated_at = ?
		 WHERE user_id = ? AND tier = ? AND status IN ?`,
		subscriptiondomain.StatusActive,
		now,
		userID,
		tier.TierPremium,
		[]any{subscriptiondomain.StatusPastDue, subscriptiondomain.StatusTrialing},
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) ScheduleCancellation(ctx context.Context, userID snowflake.ID) error {
	return s.setCancelFlag(ctx, userID, true)
}

func (s *Service) Reactivate(ctx context.Context, userID snowflake.ID) error {
	return s.setCancelFlag(ctx, userID, false)
}

func (s *Service) setCancelFlag(ctx context.Context, userID snowflake.ID, cancel bool) error {
	if userID == 0 {
		return subscriptiondomain.ErrInvalidUser
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET cancel_at_period_end = ?, updated_at = ?
		 WHERE user_id = ? AND tier = ? AND status IN ?`,
		cancel,
		s.clock.Now(),
		userID,
		tier.TierPremium,
		[]any{subscriptiondomain.StatusActive, subscriptiondomain.StatusTrialing, subscriptiondomain.StatusPastDue},
	).Error
}

func (s *Service) DowngradeToFree(ctx context.Context, userID snowflake.ID) (bool, error) {
	return s.cancelToFree(ctx, userID,
		`UPDATE subscriptions
		 SET tier = ?, status = ?, downgrade_scheduled = false,
		     payment_failed_at = NULL, grace_period_end = NULL,
		     cancel_at_period_end = false, updated_at = ?
		 WHERE user_id = ? AND downgrade_scheduled = true`,
	)
}

func (s *Service) ExpireCancellation(ctx context.Context, userID snowflake.ID) (bool, error) {
	return s.cancelToFree(ctx, userID,
		`UPDATE subscriptions
		 SET tier = ?, status = ?, downgrade_scheduled = false,
		     payment_failed_at = NULL, grace_period_end = NULL,
		     cancel_at_period_end = false, updated_at = ?
		 WHERE user_id = ? AND cancel_at_period_end = true
		   AND current_period_end IS NOT NULL AND current_period_end <= ?`,
		s.clock.Now(),
	)
}

// cancelToFree runs one of the two cancellation updates and, when the guard
// matched, resets credits to the free allotment in the same transaction.
// The guard doubles as the idempotency check: a second concurrent sweep
// matches zero rows and performs no credit reset.
func (s *Service) cancelToFree(ctx context.Context, userID snowflake.ID, query string, extraArgs ...any) (bool, error) {
	if userID == 0 {
		return false, subscriptiondomain.ErrInvalidUser
	}
	now := s.clock.Now()

	downgraded := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		args := append([]any{tier.TierFree, subscriptiondomain.StatusCanceled, now, userID}, extraArgs...)
		result := tx.WithContext(ctx).Exec(query, args...)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		downgraded = true
		return s.ledgerSvc.ResetTx(ctx, tx, userID, s.catalog.Limits(tier.TierFree), ledgerdomain.PeriodOf(now))
	})
	if err != nil {
		return false, err
	}
	if downgraded {
		s.log.Info("subscription downgraded to free", zap.String("user_id", userID.String()))
	}
	return downgraded, nil
}

func (s *Service) ListDowngradeCandidates(ctx context.Context, limit int) ([]snowflake.ID, error) {
	return s.listCandidates(ctx,
		`SELECT user_id
		 FROM subscriptions
		 WHERE downgrade_scheduled = true AND grace_period_end IS NOT NULL AND grace_period_end <= ?
		 ORDER BY grace_period_end ASC
		 LIMIT ?`,
		limit,
	)
}

func (s *Service) ListCancellationCandidates(ctx context.Context, limit int) ([]snowflake.ID, error) {
	return s.listCandidates(ctx,
		`SELECT user_id
		 FROM subscriptions
		 WHERE cancel_at_period_end = true AND current_period_end IS NOT NULL AND current_period_end <= ?
		   AND status IN ('active', 'trialing')
		 ORDER BY current_period_end ASC
		 LIMIT ?`,
		limit,
	)
}

func (s *Service) ListExpiringGraceCandidates(ctx context.Context, within time.Duration, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.clock.Now()
	var userIDs []snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT user_id
		 FROM subscriptions
		 WHERE downgrade_scheduled = true AND grace_period_end IS NOT NULL
		   AND grace_period_end > ? AND grace_period_end <= ?
		 ORDER BY grace_period_end ASC
		 LIMIT ?`,
		now, now.Add(within), limit,
	).Scan(&userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (s *Service) listCandidates(ctx context.Context, query string, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 100
	}
	var userIDs []snowflake.ID
	err := s.db.WithContext(ctx).Raw(query, s.clock.Now(), limit).Scan(&userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (s *Service) ensureTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	now := s.clock.Now()
	return tx.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (user_id, tier, status, cancel_at_period_end, downgrade_scheduled, created_at, updated_at)
		 VALUES (?, ?, ?, false, false, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		tier.TierFree,
		subscriptiondomain.StatusCanceled,
		now,
		now,
	).Error
}
