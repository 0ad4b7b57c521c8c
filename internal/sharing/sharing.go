// Package sharing runs the spend-then-publish protocol for sharing
// content to the community library.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/shareprep/shareprep/internal/audit/domain"
	contentdomain "github.com/shareprep/shareprep/internal/content/domain"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/limiter"
	"github.com/shareprep/shareprep/internal/observability/metrics"
)

// ErrCompensationFailed means a debit could not be refunded after the
// share failed. The balance is off by one until someone reconciles it
// from the audit log.
var ErrCompensationFailed = errors.New("compensation_failed")

// PublishFunc is the side effect that makes the content visible. It
// runs after the debit and before the shared flag is set.
type PublishFunc func(ctx context.Context) error

const (
	compensationAttempts = 3
	compensationBackoff  = 100 * time.Millisecond
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Limiter    *limiter.Limiter
	LedgerSvc  ledgerdomain.Service
	ContentSvc contentdomain.Service
	AuditSvc   auditdomain.Service
}

type Orchestrator struct {
	log        *zap.Logger
	limiter    *limiter.Limiter
	ledgerSvc  ledgerdomain.Service
	contentSvc contentdomain.Service
	auditSvc   auditdomain.Service
}

func NewOrchestrator(p Params) *Orchestrator {
	return &Orchestrator{
		log:        p.Log.Named("sharing"),
		limiter:    p.Limiter,
		ledgerSvc:  p.LedgerSvc,
		contentSvc: p.ContentSvc,
		auditSvc:   p.AuditSvc,
	}
}

// Share spends one credit and publishes the item. The debit is the
// atomic gate; the limiter check in front of it only produces a nicer
// denial. When publishing fails the debit is refunded, with bounded
// retries; a refund that cannot land is escalated, not retried forever.
func (o *Orchestrator) Share(ctx context.Context, userID, contentID snowflake.ID, publish PublishFunc) error {
	item, err := o.contentSvc.Get(ctx, contentID)
	if err != nil {
		return err
	}
	if item.OwnerUserID != userID || item.DeletedAt != nil {
		return contentdomain.ErrContentNotFound
	}
	if item.Shared {
		return contentdomain.ErrAlreadyShared
	}

	action := limiter.ActionShareExam
	if item.ContentType == ledgerdomain.CreditTypePractice {
		action = limiter.ActionSharePractice
	}
	decision, err := o.limiter.CanPerform(ctx, userID, action)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return ledgerdomain.ErrInsufficientCredit
	}

	if _, err := o.ledgerSvc.Debit(ctx, userID, item.ContentType, 1); err != nil {
		return err
	}

	if err := o.runSideEffects(ctx, userID, item, publish); err != nil {
		if compErr := o.compensate(ctx, userID, item); compErr != nil {
			return fmt.Errorf("share failed (%v), refund failed: %w", err, ErrCompensationFailed)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) runSideEffects(ctx context.Context, userID snowflake.ID, item contentdomain.ContentItem, publish PublishFunc) error {
	if publish != nil {
		if err := publish(ctx); err != nil {
			return err
		}
	}
	return o.contentSvc.MarkShared(ctx, item.ID, userID)
}

func (o *Orchestrator) compensate(ctx context.Context, userID snowflake.ID, item contentdomain.ContentItem) error {
	var lastErr error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		_, lastErr = o.ledgerSvc.Credit(ctx, userID, item.ContentType, 1, ledgerdomain.CreditSourceCompensation)
		if lastErr == nil {
			o.log.Info("share refunded",
				zap.String("user_id", userID.String()),
				zap.String("content_id", item.ID.String()),
			)
			return nil
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = compensationAttempts
		case <-time.After(time.Duration(attempt) * compensationBackoff):
		}
	}

	metrics.Core().IncCompensationFailure()
	o.log.Error("share refund failed, balance off by one",
		zap.String("user_id", userID.String()),
		zap.String("content_id", item.ID.String()),
		zap.String("credit_type", string(item.ContentType)),
		zap.Error(lastErr),
	)
	if auditErr := o.auditSvc.Record(ctx, auditdomain.Entry{
		UserID:     userID,
		ActorType:  auditdomain.ActorTypeSystem,
		Action:     auditdomain.ActionCompensationFailed,
		TargetType: "content",
		TargetID:   item.ID.String(),
		Metadata: map[string]any{
			"credit_type": string(item.ContentType),
			"error":       lastErr.Error(),
		},
	}); auditErr != nil {
		o.log.Error("audit write for failed refund also failed", zap.Error(auditErr))
	}
	return lastErr
}
