// Package limiter answers "may this user do this right now" for every
// gated action.
package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/shareprep/shareprep/internal/cache"
	"github.com/shareprep/shareprep/internal/clock"
	contentdomain "github.com/shareprep/shareprep/internal/content/domain"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/reset"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
	"github.com/shareprep/shareprep/internal/tier"
)

// Action is one gated operation.
type Action string

const (
	ActionCreateExam     Action = "createExam"
	ActionCreatePractice Action = "createPractice"
	ActionShareExam      Action = "shareExam"
	ActionSharePractice  Action = "sharePractice"
	ActionAccessLibrary  Action = "accessLibrary"
)

// Decision is the limiter's answer. Remaining is -1 when the action has
// no cap for the user's tier. The two denial reasons are distinct so
// the product can message them differently.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
}

const (
	ReasonMonthlyLimitReached = "monthly_limit_reached"
	ReasonInsufficientCredit  = "insufficient_credit"
)

var (
	ErrUnknownAction = errors.New("unknown_action")
	ErrInvalidUser   = errors.New("invalid_user")
)

// subscriptionTTL bounds how stale a limit check's view of the
// subscription may be. The ledger debit stays the atomic gate, so a
// stale read can only briefly over- or under-warn, never over-spend.
const subscriptionTTL = 30 * time.Second

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	Catalog         *tier.Catalog
	SubscriptionSvc subscriptiondomain.Service
	LedgerSvc       ledgerdomain.Service
	ContentSvc      contentdomain.Service
	ResetProtocol   *reset.Protocol
	SubCache        cache.Cache[snowflake.ID, subscriptiondomain.Subscription] `optional:"true"`
}

type Limiter struct {
	log             *zap.Logger
	clock           clock.Clock
	catalog         *tier.Catalog
	subscriptionSvc subscriptiondomain.Service
	ledgerSvc       ledgerdomain.Service
	contentSvc      contentdomain.Service
	resetProtocol   *reset.Protocol
	subCache        cache.Cache[snowflake.ID, subscriptiondomain.Subscription]
}

func NewLimiter(p Params) *Limiter {
	subCache := p.SubCache
	if subCache == nil {
		subCache = cache.NewTTLCache[snowflake.ID, subscriptiondomain.Subscription]()
	}
	return &Limiter{
		log:             p.Log.Named("limiter"),
		clock:           p.Clock,
		catalog:         p.Catalog,
		subscriptionSvc: p.SubscriptionSvc,
		ledgerSvc:       p.LedgerSvc,
		contentSvc:      p.ContentSvc,
		resetProtocol:   p.ResetProtocol,
		subCache:        subCache,
	}
}

// CanPerform evaluates one action against the user's effective tier.
// Existing over-limit usage is never revoked; it only blocks new
// actions of the same kind.
func (l *Limiter) CanPerform(ctx context.Context, userID snowflake.ID, action Action) (Decision, error) {
	if userID == 0 {
		return Decision{}, ErrInvalidUser
	}

	sub, err := l.subscription(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	limits := l.catalog.Limits(sub.EffectiveTier())

	switch action {
	case ActionCreateExam:
		return l.creationDecision(ctx, userID, ledgerdomain.CreditTypeExam, limits.ExamsPerMonth)
	case ActionCreatePractice:
		return l.creationDecision(ctx, userID, ledgerdomain.CreditTypePractice, limits.PracticesPerMonth)
	case ActionShareExam:
		return l.shareDecision(ctx, userID, ledgerdomain.CreditTypeExam)
	case ActionSharePractice:
		return l.shareDecision(ctx, userID, ledgerdomain.CreditTypePractice)
	case ActionAccessLibrary:
		return l.libraryDecision(ctx, userID, limits.LibraryAccessPerMonth)
	default:
		return Decision{}, ErrUnknownAction
	}
}

func (l *Limiter) subscription(ctx context.Context, userID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if sub, ok := l.subCache.Get(userID); ok {
		return sub, nil
	}
	sub, err := l.subscriptionSvc.Get(ctx, userID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	l.subCache.Set(userID, sub, subscriptionTTL)
	return sub, nil
}

func (l *Limiter) creationDecision(ctx context.Context, userID snowflake.ID, contentType ledgerdomain.CreditType, limit int) (Decision, error) {
	if tier.IsUnlimited(limit) {
		return Decision{Allowed: true, Remaining: tier.Unlimited}, nil
	}
	used, err := l.contentSvc.CountCreatedInMonth(ctx, userID, contentType, l.clock.Now())
	if err != nil {
		return Decision{}, err
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	if used >= limit {
		return Decision{Reason: ReasonMonthlyLimitReached, Remaining: remaining}, nil
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

func (l *Limiter) shareDecision(ctx context.Context, userID snowflake.ID, creditType ledgerdomain.CreditType) (Decision, error) {
	// A new month refreshes the allotment before the balance is judged.
	if _, err := l.resetProtocol.ResetIfDue(ctx, userID); err != nil {
		return Decision{}, err
	}
	balance, err := l.ledgerSvc.Read(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	credits := balance.Credits(creditType)
	if credits <= 0 {
		return Decision{Reason: ReasonInsufficientCredit, Remaining: 0}, nil
	}
	return Decision{Allowed: true, Remaining: credits}, nil
}

func (l *Limiter) libraryDecision(ctx context.Context, userID snowflake.ID, limit int) (Decision, error) {
	if tier.IsUnlimited(limit) {
		return Decision{Allowed: true, Remaining: tier.Unlimited}, nil
	}
	used, err := l.contentSvc.CountLibraryAccessInMonth(ctx, userID, l.clock.Now())
	if err != nil {
		return Decision{}, err
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	if used >= limit {
		return Decision{Reason: ReasonMonthlyLimitReached, Remaining: remaining}, nil
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// ParseAction maps a wire value to an Action.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionCreateExam, ActionCreatePractice, ActionShareExam, ActionSharePractice, ActionAccessLibrary:
		return Action(raw), nil
	default:
		return "", ErrUnknownAction
	}
}
