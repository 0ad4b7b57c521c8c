package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionService exposes the subscription state machine. Every
// transition is a single conditional update so concurrent signals and
// overlapping sweeps cannot corrupt a record.
type SubscriptionService interface {
	// Get returns the user's record, or the implicit free/canceled record
	// when the user never subscribed.
	Get(ctx context.Context, userID snowflake.ID) (Subscription, error)

	// StartTrial and Activate are driven by external checkout signals and
	// leave the user on premium.
	StartTrial(ctx context.Context, userID snowflake.ID, periodEnd time.Time) error
	Activate(ctx context.Context, userID snowflake.ID, periodEnd time.Time) error

	// MarkPaymentFailed moves active/trialing to past_due and arms the
	// grace deadline. A repeated signal while already past_due does not
	// extend the deadline unless the configured policy says so. Reports
	// whether the record changed.
	MarkPaymentFailed(ctx context.Context, userID snowflake.ID) (bool, error)

	// ClearPaymentFailure moves past_due (or trialing, on first charge)
	// back to active and disarms the pending downgrade. Safe no-op when no
	// failure is in progress.
	ClearPaymentFailure(ctx context.Context, userID snowflake.ID) (bool, error)

	// ScheduleCancellation and Reactivate toggle cancel-at-period-end;
	// premium access is retained until CurrentPeriodEnd either way.
	ScheduleCancellation(ctx context.Context, userID snowflake.ID) error
	Reactivate(ctx context.Context, userID snowflake.ID) error

	// DowngradeToFree performs the armed downgrade: tier=free,
	// status=canceled, credits reset to free defaults, all in one
	// transaction guarded on downgrade_scheduled so overlapping sweeps are
	// no-ops. Reports whether this call performed the downgrade.
	DowngradeToFree(ctx context.Context, userID snowflake.ID) (bool, error)

	// ExpireCancellation cancels a subscription whose period ended with
	// cancel-at-period-end set. Same idempotency shape as DowngradeToFree.
	ExpireCancellation(ctx context.Context, userID snowflake.ID) (bool, error)

	// ListDowngradeCandidates returns users whose grace deadline has
	// passed with a downgrade still armed.
	ListDowngradeCandidates(ctx context.Context, limit int) ([]snowflake.ID, error)

	// ListCancellationCandidates returns users whose period ended with
	// cancel-at-period-end set.
	ListCancellationCandidates(ctx context.Context, limit int) ([]snowflake.ID, error)

	// ListExpiringGraceCandidates returns users whose armed grace deadline
	// falls within the given window from now.
	ListExpiringGraceCandidates(ctx context.Context, within time.Duration, limit int) ([]snowflake.ID, error)
}

// Service is the package alias for SubscriptionService.
type Service = SubscriptionService

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidPeriodEnd = errors.New("invalid_period_end")
)
