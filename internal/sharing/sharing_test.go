package sharing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditservice "github.com/shareprep/shareprep/internal/audit/service"
	"github.com/shareprep/shareprep/internal/cache"
	"github.com/shareprep/shareprep/internal/clock"
	"github.com/shareprep/shareprep/internal/config"
	contentdomain "github.com/shareprep/shareprep/internal/content/domain"
	contentservice "github.com/shareprep/shareprep/internal/content/service"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	ledgerservice "github.com/shareprep/shareprep/internal/ledger/service"
	"github.com/shareprep/shareprep/internal/limiter"
	"github.com/shareprep/shareprep/internal/reset"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
	subscriptionservice "github.com/shareprep/shareprep/internal/subscription/service"
	"github.com/shareprep/shareprep/internal/tier"
)

var testDBSeq atomic.Int64

func setupSharingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:sharing_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			user_id BIGINT PRIMARY KEY,
			tier TEXT NOT NULL DEFAULT 'free',
			status TEXT NOT NULL DEFAULT 'canceled',
			current_period_end DATETIME,
			cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
			payment_failed_at DATETIME,
			grace_period_end DATETIME,
			downgrade_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credit_balances (
			user_id BIGINT PRIMARY KEY,
			exam_share_credits INTEGER NOT NULL DEFAULT 0 CHECK (exam_share_credits >= 0),
			practice_share_credits INTEGER NOT NULL DEFAULT 0 CHECK (practice_share_credits >= 0),
			last_reset_period TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS content_items (
			id BIGINT PRIMARY KEY,
			owner_user_id BIGINT NOT NULL,
			content_type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			shared BOOLEAN NOT NULL DEFAULT FALSE,
			shared_at DATETIME,
			deleted_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS library_accesses (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			content_id BIGINT,
			accessed_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGINT PRIMARY KEY,
			user_id BIGINT,
			actor_type TEXT NOT NULL,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

type sharingFixture struct {
	orchestrator *Orchestrator
	contentSvc   contentdomain.Service
	ledgerSvc    ledgerdomain.Service
}

func newSharingFixture(t *testing.T, db *gorm.DB) sharingFixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new snowflake node: %v", err)
	}
	clk := clock.Fixed{At: time.Date(2026, time.June, 5, 10, 0, 0, 0, time.UTC)}
	catalog := tier.DefaultCatalog()
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Catalog: catalog,
		Clock:   clk,
	})
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Cfg:       config.Config{GracePeriodDays: 7},
		Catalog:   catalog,
		Clock:     clk,
		LedgerSvc: ledgerSvc,
	})
	contentSvc := contentservice.NewService(contentservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	resetProtocol := reset.NewProtocol(reset.Params{
		DB:              db,
		Log:             zap.NewNop(),
		Clock:           clk,
		Catalog:         catalog,
		SubscriptionSvc: subscriptionSvc,
		LedgerSvc:       ledgerSvc,
	})
	lim := limiter.NewLimiter(limiter.Params{
		Log:             zap.NewNop(),
		Clock:           clk,
		Catalog:         catalog,
		SubscriptionSvc: subscriptionSvc,
		LedgerSvc:       ledgerSvc,
		ContentSvc:      contentSvc,
		ResetProtocol:   resetProtocol,
		SubCache:        cache.NoopCache[snowflake.ID, subscriptiondomain.Subscription]{},
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	orchestrator := NewOrchestrator(Params{
		Log:        zap.NewNop(),
		Limiter:    lim,
		LedgerSvc:  ledgerSvc,
		ContentSvc: contentSvc,
		AuditSvc:   auditSvc,
	})
	return sharingFixture{orchestrator: orchestrator, contentSvc: contentSvc, ledgerSvc: ledgerSvc}
}

func examCredits(t *testing.T, db *gorm.DB, userID snowflake.ID) int {
	t.Helper()
	var credits int
	if err := db.Raw(`SELECT exam_share_credits FROM credit_balances WHERE user_id = ?`, userID).Scan(&credits).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return credits
}

func TestShareSpendsOneCredit(t *testing.T) {
	db := setupSharingTestDB(t)
	fx := newSharingFixture(t, db)
	ctx := context.Background()

	item, err := fx.contentSvc.Create(ctx, 1, ledgerdomain.CreditTypeExam, "Algebra")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	published := false
	err = fx.orchestrator.Share(ctx, 1, item.ID, func(ctx context.Context) error {
		published = true
		return nil
	})
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if !published {
		t.Fatalf("publish side effect did not run")
	}

	got, err := fx.contentSvc.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Shared {
		t.Fatalf("item should be marked shared")
	}

	free := tier.DefaultCatalog().Limits(tier.TierFree)
	if credits := examCredits(t, db, 1); credits != free.ExamShareCredits-1 {
		t.Fatalf("expected %d credits after share, got %d", free.ExamShareCredits-1, credits)
	}
}

func TestShareDeniedWhenOutOfCredits(t *testing.T) {
	db := setupSharingTestDB(t)
	fx := newSharingFixture(t, db)
	ctx := context.Background()

	first, err := fx.contentSvc.Create(ctx, 2, ledgerdomain.CreditTypeExam, "One")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := fx.contentSvc.Create(ctx, 2, ledgerdomain.CreditTypeExam, "Two")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	// Free tier ships one exam share credit; the second share must fail
	// before any side effect runs.
	if err := fx.orchestrator.Share(ctx, 2, first.ID, nil); err != nil {
		t.Fatalf("first share: %v", err)
	}
	err = fx.orchestrator.Share(ctx, 2, second.ID, func(ctx context.Context) error {
		t.Fatal("publish must not run without credit")
		return nil
	})
	if !errors.Is(err, ledgerdomain.ErrInsufficientCredit) {
		t.Fatalf("expected insufficient credit, got %v", err)
	}

	got, err := fx.contentSvc.Get(ctx, second.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Shared {
		t.Fatalf("denied share must not mark the item")
	}
}

func TestShareRefundsOnPublishFailure(t *testing.T) {
	db := setupSharingTestDB(t)
	fx := newSharingFixture(t, db)
	ctx := context.Background()

	item, err := fx.contentSvc.Create(ctx, 3, ledgerdomain.CreditTypePractice, "Drills")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	publishErr := errors.New("library unavailable")
	err = fx.orchestrator.Share(ctx, 3, item.ID, func(ctx context.Context) error {
		return publishErr
	})
	if !errors.Is(err, publishErr) {
		t.Fatalf("expected publish error, got %v", err)
	}

	// Credit refunded, item untouched, user can try again.
	free := tier.DefaultCatalog().Limits(tier.TierFree)
	var credits int
	if err := db.Raw(`SELECT practice_share_credits FROM credit_balances WHERE user_id = ?`, 3).Scan(&credits).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	if credits != free.PracticeShareCredits {
		t.Fatalf("expected refunded balance %d, got %d", free.PracticeShareCredits, credits)
	}
	got, err := fx.contentSvc.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Shared {
		t.Fatalf("failed share must not mark the item")
	}

	if err := fx.orchestrator.Share(ctx, 3, item.ID, nil); err != nil {
		t.Fatalf("retry share: %v", err)
	}
}

func TestShareEscalatesFailedRefund(t *testing.T) {
	db := setupSharingTestDB(t)
	fx := newSharingFixture(t, db)
	ctx := context.Background()

	item, err := fx.contentSvc.Create(ctx, 4, ledgerdomain.CreditTypeExam, "Exam")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The publish callback takes the balance table down, so both the
	// share and every refund attempt fail.
	err = fx.orchestrator.Share(ctx, 4, item.ID, func(ctx context.Context) error {
		if dropErr := db.Exec(`DROP TABLE credit_balances`).Error; dropErr != nil {
			t.Fatalf("drop table: %v", dropErr)
		}
		return errors.New("publish exploded")
	})
	if !errors.Is(err, ErrCompensationFailed) {
		t.Fatalf("expected compensation failure, got %v", err)
	}

	var auditRows int
	if err := db.Raw(`SELECT COUNT(1) FROM audit_logs WHERE action = ?`, "ledger.compensation_failed").Scan(&auditRows).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if auditRows != 1 {
		t.Fatalf("expected 1 audit row, got %d", auditRows)
	}
}

func TestShareRejectsForeignDeletedAndShared(t *testing.T) {
	db := setupSharingTestDB(t)
	fx := newSharingFixture(t, db)
	ctx := context.Background()

	item, err := fx.contentSvc.Create(ctx, 5, ledgerdomain.CreditTypeExam, "Mine")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := fx.orchestrator.Share(ctx, 6, item.ID, nil); !errors.Is(err, contentdomain.ErrContentNotFound) {
		t.Fatalf("foreign share should fail, got %v", err)
	}

	if err := fx.orchestrator.Share(ctx, 5, item.ID, nil); err != nil {
		t.Fatalf("share: %v", err)
	}
	if err := fx.orchestrator.Share(ctx, 5, item.ID, nil); !errors.Is(err, contentdomain.ErrAlreadyShared) {
		t.Fatalf("second share should report already shared, got %v", err)
	}

	deleted, err := fx.contentSvc.Create(ctx, 5, ledgerdomain.CreditTypePractice, "Gone")
	if err != nil {
		t.Fatalf("create deleted: %v", err)
	}
	if err := fx.contentSvc.SoftDelete(ctx, deleted.ID, 5); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := fx.orchestrator.Share(ctx, 5, deleted.ID, nil); !errors.Is(err, contentdomain.ErrContentNotFound) {
		t.Fatalf("deleted share should fail, got %v", err)
	}
}
