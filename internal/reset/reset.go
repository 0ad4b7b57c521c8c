// Package reset lazily refreshes credit allotments when a user first
// acts in a new calendar month.
package reset

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/clock"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/observability/metrics"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
	"github.com/shareprep/shareprep/internal/tier"
)

// Result reports whether a reset actually ran.
type Result struct {
	ResetPerformed bool
}

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Catalog         *tier.Catalog
	SubscriptionSvc subscriptiondomain.Service
	LedgerSvc       ledgerdomain.Service
}

// Protocol refreshes both credit buckets to the user's effective-tier
// allotment once per calendar month. There is no scheduled job; every
// read or spend path calls ResetIfDue first, and the period guard makes
// N concurrent callers perform exactly one reset.
type Protocol struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	catalog         *tier.Catalog
	subscriptionSvc subscriptiondomain.Service
	ledgerSvc       ledgerdomain.Service
}

func NewProtocol(p Params) *Protocol {
	return &Protocol{
		db:              p.DB,
		log:             p.Log.Named("reset.protocol"),
		clock:           p.Clock,
		catalog:         p.Catalog,
		subscriptionSvc: p.SubscriptionSvc,
		ledgerSvc:       p.LedgerSvc,
	}
}

// ResetIfDue compares the stored reset period against the current month
// and refreshes the allotment when they differ. Unspent credits do not
// carry over. Creation counters are derived from month-scoped row
// counts, so they roll over on their own.
func (p *Protocol) ResetIfDue(ctx context.Context, userID snowflake.ID) (Result, error) {
	if userID == 0 {
		return Result{}, ledgerdomain.ErrInvalidUser
	}

	balance, err := p.ledgerSvc.Read(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	period := ledgerdomain.PeriodOf(p.clock.Now())
	if balance.LastResetPeriod == period {
		return Result{}, nil
	}

	sub, err := p.subscriptionSvc.Get(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	limits := p.catalog.Limits(sub.EffectiveTier())

	performed := false
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		performed, txErr = p.ledgerSvc.ResetIfPeriodTx(ctx, tx, userID, balance.LastResetPeriod, period, limits)
		return txErr
	})
	if err != nil {
		return Result{}, err
	}
	if performed {
		metrics.Core().IncMonthlyReset()
		p.log.Info("monthly credit reset",
			zap.String("user_id", userID.String()),
			zap.String("period", period),
			zap.String("tier", string(sub.EffectiveTier())),
		)
	}
	return Result{ResetPerformed: performed}, nil
}
