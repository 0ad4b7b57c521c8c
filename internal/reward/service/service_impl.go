package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/clock"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/notification"
	"github.com/shareprep/shareprep/internal/observability/metrics"
	rewarddomain "github.com/shareprep/shareprep/internal/reward/domain"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	LedgerSvc ledgerdomain.Service
	Outbox    *notification.Outbox
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service
	outbox    *notification.Outbox
}

func NewService(p Params) rewarddomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("reward.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
		outbox:    p.Outbox,
	}
}

func (s *Service) Grant(ctx context.Context, event rewarddomain.CompletionEvent) (rewarddomain.GrantResult, error) {
	completionID := strings.TrimSpace(event.CompletionID)
	if completionID == "" {
		return rewarddomain.GrantResult{}, rewarddomain.ErrInvalidCompletionID
	}
	if event.PostOwnerID == 0 {
		return rewarddomain.GrantResult{}, rewarddomain.ErrInvalidOwner
	}
	if event.CompletingUserID == 0 {
		return rewarddomain.GrantResult{}, rewarddomain.ErrInvalidCompleter
	}
	if !event.ContentType.Valid() {
		return rewarddomain.GrantResult{}, rewarddomain.ErrInvalidContentType
	}

	// Completing your own content never earns a reward. Silent no-op so a
	// misrouted event does not surface as a user-visible failure.
	if event.CompletingUserID == event.PostOwnerID {
		metrics.Core().IncGrant("self")
		return rewarddomain.GrantResult{}, nil
	}

	granted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The idempotency record goes in before the credit; the unique
		// constraint on source_completion_id is the sole cross-process
		// coordination point for duplicate deliveries.
		result := tx.WithContext(ctx).Exec(
			`INSERT INTO reward_transactions (id, owner_user_id, credit_type, amount, source_completion_id, created_at)
			 VALUES (?, ?, ?, 1, ?, ?)
			 ON CONFLICT (source_completion_id) DO NOTHING`,
			s.genID.Generate(),
			event.PostOwnerID,
			event.ContentType,
			completionID,
			s.clock.Now(),
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		granted = true

		if err := s.ledgerSvc.CreditTx(ctx, tx, event.PostOwnerID, event.ContentType, 1, ledgerdomain.CreditSourceReward); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, notification.Event{
			UserID: event.PostOwnerID,
			Type:   notification.TypeRewardGranted,
			Payload: notification.RewardGrantedPayload{
				CompletionID: completionID,
				CreditType:   string(event.ContentType),
			}.ToMap(),
			DedupeKey: "reward:" + completionID,
		})
	})
	if err != nil {
		metrics.Core().IncGrant("error")
		return rewarddomain.GrantResult{}, err
	}

	if !granted {
		metrics.Core().IncGrant("duplicate")
		return rewarddomain.GrantResult{AlreadyGranted: true}, nil
	}

	metrics.Core().IncGrant("granted")
	s.log.Info("reward granted",
		zap.String("owner_id", event.PostOwnerID.String()),
		zap.String("completion_id", completionID),
		zap.String("credit_type", string(event.ContentType)),
	)
	return rewarddomain.GrantResult{Granted: true}, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID snowflake.ID, limit int) ([]rewarddomain.RewardTransaction, error) {
	if ownerID == 0 {
		return nil, rewarddomain.ErrInvalidOwner
	}
	if limit <= 0 {
		limit = 50
	}
	var rewards []rewarddomain.RewardTransaction
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, owner_user_id, credit_type, amount, source_completion_id, created_at
		 FROM reward_transactions
		 WHERE owner_user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		ownerID,
		limit,
	).Scan(&rewards).Error
	if err != nil {
		return nil, err
	}
	return rewards, nil
}
