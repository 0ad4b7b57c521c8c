package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/clock"
	"github.com/shareprep/shareprep/internal/grace"
	paymentdomain "github.com/shareprep/shareprep/internal/payment/domain"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
)

// defaultTrialDays applies when a trial signal carries no period end.
const defaultTrialDays = 14

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Adapter         paymentdomain.Adapter
	SubscriptionSvc subscriptiondomain.Service
	GraceCtrl       *grace.Controller
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	adapter         paymentdomain.Adapter
	subscriptionSvc subscriptiondomain.Service
	graceCtrl       *grace.Controller
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		adapter:         p.Adapter,
		subscriptionSvc: p.SubscriptionSvc,
		graceCtrl:       p.GraceCtrl,
	}
}

// IngestWebhook verifies, records, and dispatches one delivery. A
// replayed event id short-circuits before any state machine runs; a
// dispatch failure leaves the record unprocessed so the provider's
// retry gets another attempt.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	event, err := s.adapter.VerifyAndParse(payload, headers)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("ignoring webhook event", zap.String("provider_event_id", event.ProviderEventID))
			return nil
		}
		return err
	}

	fresh, err := s.recordEvent(ctx, event, payload)
	if err != nil {
		return err
	}
	if !fresh {
		processed, err := s.eventProcessed(ctx, event.ProviderEventID)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}
		// A prior delivery recorded the event but failed mid-dispatch.
	}

	if err := s.dispatch(ctx, event); err != nil {
		return fmt.Errorf("dispatch %s: %w", event.Type, err)
	}
	return s.markProcessed(ctx, event.ProviderEventID)
}

func (s *Service) dispatch(ctx context.Context, event paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventCheckoutCompleted:
		periodEnd := s.clock.Now().AddDate(0, 1, 0)
		if event.PeriodEnd != nil {
			periodEnd = *event.PeriodEnd
		}
		return s.subscriptionSvc.Activate(ctx, event.UserID, periodEnd)

	case paymentdomain.EventTrialStarted:
		periodEnd := s.clock.Now().AddDate(0, 0, defaultTrialDays)
		if event.PeriodEnd != nil {
			periodEnd = *event.PeriodEnd
		}
		return s.subscriptionSvc.StartTrial(ctx, event.UserID, periodEnd)

	case paymentdomain.EventPaymentFailed:
		return s.graceCtrl.HandlePaymentFailed(ctx, event.UserID)

	case paymentdomain.EventPaymentSucceeded:
		return s.graceCtrl.HandlePaymentSucceeded(ctx, event.UserID)

	case paymentdomain.EventCancellationArmed:
		return s.subscriptionSvc.ScheduleCancellation(ctx, event.UserID)

	case paymentdomain.EventCancellationDisarmed:
		return s.subscriptionSvc.Reactivate(ctx, event.UserID)

	default:
		return nil
	}
}

func (s *Service) recordEvent(ctx context.Context, event paymentdomain.PaymentEvent, payload []byte) (bool, error) {
	var userID any
	if event.UserID != 0 {
		userID = event.UserID
	}
	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (id, provider, provider_event_id, event_type, user_id, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		s.genID.Generate(),
		s.adapter.Provider(),
		event.ProviderEventID,
		event.Type,
		userID,
		datatypes.JSON(payload),
		s.clock.Now(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) eventProcessed(ctx context.Context, providerEventID string) (bool, error) {
	var processed bool
	err := s.db.WithContext(ctx).Raw(
		`SELECT processed_at IS NOT NULL
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?`,
		s.adapter.Provider(),
		providerEventID,
	).Scan(&processed).Error
	if err != nil {
		return false, err
	}
	return processed, nil
}

func (s *Service) markProcessed(ctx context.Context, providerEventID string) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE provider = ? AND provider_event_id = ? AND processed_at IS NULL`,
		s.clock.Now(),
		s.adapter.Provider(),
		providerEventID,
	).Error
}
