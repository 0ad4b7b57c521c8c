// Package grace tracks the window between a payment failure and the
// downgrade that ends premium access.
package grace

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/shareprep/shareprep/internal/audit/domain"
	"github.com/shareprep/shareprep/internal/clock"
	"github.com/shareprep/shareprep/internal/notification"
	"github.com/shareprep/shareprep/internal/observability/metrics"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
)

// Status describes where a user stands inside the grace window.
type Status struct {
	InGracePeriod  bool       `json:"in_grace_period"`
	GracePeriodEnd *time.Time `json:"grace_period_end,omitempty"`
	DaysRemaining  int        `json:"days_remaining"`
	HasExpired     bool       `json:"has_expired"`
}

// SweepResult summarizes one sweep pass. A failed record never aborts
// the pass; its error is collected and the sweep moves on.
type SweepResult struct {
	ProcessedCount int
	Errors         []error
}

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	Outbox          *notification.Outbox
	AuditSvc        auditdomain.Service
}

type Controller struct {
	log             *zap.Logger
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	outbox          *notification.Outbox
	auditSvc        auditdomain.Service
}

func NewController(p Params) *Controller {
	return &Controller{
		log:             p.Log.Named("grace.controller"),
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		outbox:          p.Outbox,
		auditSvc:        p.AuditSvc,
	}
}

// GetStatus reports the user's grace window. Users with no failure in
// progress get the zero status.
func (c *Controller) GetStatus(ctx context.Context, userID snowflake.ID) (Status, error) {
	sub, err := c.subscriptionSvc.Get(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if sub.Status != subscriptiondomain.StatusPastDue || sub.GracePeriodEnd == nil {
		return Status{}, nil
	}

	now := c.clock.Now()
	end := *sub.GracePeriodEnd
	status := Status{
		GracePeriodEnd: &end,
		DaysRemaining:  daysRemaining(end, now),
		HasExpired:     !end.After(now),
	}
	status.InGracePeriod = !status.HasExpired
	return status, nil
}

// HandlePaymentFailed reacts to an invoice failure signal. The state
// transition is delegated; this layer adds the user-facing warning.
func (c *Controller) HandlePaymentFailed(ctx context.Context, userID snowflake.ID) error {
	changed, err := c.subscriptionSvc.MarkPaymentFailed(ctx, userID)
	if err != nil {
		return err
	}
	if !changed {
		// Retried webhook or a user who was never premium.
		return nil
	}

	sub, err := c.subscriptionSvc.Get(ctx, userID)
	if err != nil {
		return err
	}
	if sub.GracePeriodEnd == nil {
		return nil
	}

	end := *sub.GracePeriodEnd
	remaining := daysRemaining(end, c.clock.Now())
	c.log.Warn("payment failed, grace period armed",
		zap.String("user_id", userID.String()),
		zap.Time("grace_period_end", end),
		zap.Int("days_remaining", remaining),
	)

	return c.outbox.Publish(ctx, notification.Event{
		UserID: userID,
		Type:   notification.TypePaymentFailed,
		Payload: notification.PaymentFailedPayload{
			GracePeriodEnd: end.UTC().Format(time.RFC3339),
			DaysRemaining:  remaining,
		}.ToMap(),
		DedupeKey: "payment_failed:" + end.UTC().Format(time.RFC3339),
	})
}

// HandlePaymentSucceeded reacts to a successful charge. Recovers a
// past_due subscription and disarms the pending downgrade.
func (c *Controller) HandlePaymentSucceeded(ctx context.Context, userID snowflake.ID) error {
	// Capture the failure timestamp before recovery clears it; it keys
	// the recovered notification so webhook retries dedupe.
	sub, err := c.subscriptionSvc.Get(ctx, userID)
	if err != nil {
		return err
	}

	changed, err := c.subscriptionSvc.ClearPaymentFailure(ctx, userID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	dedupe := "payment_recovered"
	if sub.PaymentFailedAt != nil {
		dedupe = "payment_recovered:" + sub.PaymentFailedAt.UTC().Format(time.RFC3339)
	}
	c.log.Info("payment recovered", zap.String("user_id", userID.String()))

	return c.outbox.Publish(ctx, notification.Event{
		UserID:    userID,
		Type:      notification.TypePaymentRecovered,
		Payload:   map[string]any{"recovered_at": c.clock.Now().UTC().Format(time.RFC3339)},
		DedupeKey: dedupe,
	})
}

// SweepExpired downgrades every user whose grace deadline has passed and
// cancels subscriptions whose period ended with cancel-at-period-end
// set. Each record is its own guarded transition, so two sweeps racing
// over the same batch downgrade each user exactly once.
func (c *Controller) SweepExpired(ctx context.Context, limit int) SweepResult {
	var result SweepResult

	expired, err := c.subscriptionSvc.ListDowngradeCandidates(ctx, limit)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("list downgrade candidates: %w", err))
	}
	for _, userID := range expired {
		performed, err := c.subscriptionSvc.DowngradeToFree(ctx, userID)
		if err != nil {
			metrics.Core().IncSweepProcessed("error")
			result.Errors = append(result.Errors, fmt.Errorf("downgrade %s: %w", userID, err))
			continue
		}
		if !performed {
			metrics.Core().IncSweepProcessed("skipped")
			continue
		}
		metrics.Core().IncSweepProcessed("downgraded")
		result.ProcessedCount++
		c.notifyDowngrade(ctx, userID, "grace_expired")
	}

	ended, err := c.subscriptionSvc.ListCancellationCandidates(ctx, limit)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("list cancellation candidates: %w", err))
	}
	for _, userID := range ended {
		performed, err := c.subscriptionSvc.ExpireCancellation(ctx, userID)
		if err != nil {
			metrics.Core().IncSweepProcessed("error")
			result.Errors = append(result.Errors, fmt.Errorf("expire cancellation %s: %w", userID, err))
			continue
		}
		if !performed {
			metrics.Core().IncSweepProcessed("skipped")
			continue
		}
		metrics.Core().IncSweepProcessed("cancellation_expired")
		result.ProcessedCount++
		c.notifyDowngrade(ctx, userID, "period_ended")
	}

	return result
}

// expiringWarnWindow is how far ahead of the grace deadline the warning
// notification goes out.
const expiringWarnWindow = 48 * time.Hour

// NotifyExpiring warns users whose grace deadline lands within the warn
// window. The outbox dedupe key makes repeated passes emit one warning
// per grace window.
func (c *Controller) NotifyExpiring(ctx context.Context, limit int) error {
	userIDs, err := c.subscriptionSvc.ListExpiringGraceCandidates(ctx, expiringWarnWindow, limit)
	if err != nil {
		return fmt.Errorf("list expiring grace candidates: %w", err)
	}
	for _, userID := range userIDs {
		sub, err := c.subscriptionSvc.Get(ctx, userID)
		if err != nil || sub.GracePeriodEnd == nil {
			continue
		}
		end := *sub.GracePeriodEnd
		err = c.outbox.Publish(ctx, notification.Event{
			UserID: userID,
			Type:   notification.TypeGraceExpiring,
			Payload: notification.PaymentFailedPayload{
				GracePeriodEnd: end.UTC().Format(time.RFC3339),
				DaysRemaining:  daysRemaining(end, c.clock.Now()),
			}.ToMap(),
			DedupeKey: "grace_expiring:" + end.UTC().Format(time.RFC3339),
		})
		if err != nil {
			c.log.Warn("grace expiry warning failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// notifyDowngrade is best effort. The downgrade already committed; a
// lost notification or audit row must not roll it back.
func (c *Controller) notifyDowngrade(ctx context.Context, userID snowflake.ID, reason string) {
	action := auditdomain.ActionSubscriptionDowngraded
	if reason == "period_ended" {
		action = auditdomain.ActionCancellationExpired
	}
	if err := c.auditSvc.Record(ctx, auditdomain.Entry{
		UserID:     userID,
		ActorType:  auditdomain.ActorTypeSystem,
		Action:     action,
		TargetType: "subscription",
		TargetID:   userID.String(),
		Metadata:   map[string]any{"reason": reason},
	}); err != nil {
		c.log.Warn("downgrade audit write failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}

	err := c.outbox.Publish(ctx, notification.Event{
		UserID: userID,
		Type:   notification.TypeDowngradeCompleted,
		Payload: map[string]any{
			"reason":        reason,
			"downgraded_at": c.clock.Now().UTC().Format(time.RFC3339),
		},
		DedupeKey: "downgrade:" + reason + ":" + c.clock.Now().UTC().Format("2006-01-02"),
	})
	if err != nil {
		c.log.Warn("downgrade notification failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func daysRemaining(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	remaining := end.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
