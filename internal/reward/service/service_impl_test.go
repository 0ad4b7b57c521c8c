package service

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

	"github.com/shareprep/shareprep/internal/clock"
	contentservice "github.com/shareprep/shareprep/internal/content/service"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	ledgerservice "github.com/shareprep/shareprep/internal/ledger/service"
	"github.com/shareprep/shareprep/internal/notification"
	rewarddomain "github.com/shareprep/shareprep/internal/reward/domain"
	"github.com/shareprep/shareprep/internal/tier"
)

var testDBSeq atomic.Int64

func setupRewardTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:reward_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS reward_transactions (
			id BIGINT PRIMARY KEY,
			owner_user_id BIGINT NOT NULL,
			credit_type TEXT NOT NULL,
			amount INTEGER NOT NULL DEFAULT 1,
			source_completion_id TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credit_balances (
			user_id BIGINT PRIMARY KEY,
			exam_share_credits INTEGER NOT NULL DEFAULT 0 CHECK (exam_share_credits >= 0),
			practice_share_credits INTEGER NOT NULL DEFAULT 0 CHECK (practice_share_credits >= 0),
			last_reset_period TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			notification_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			dedupe_key TEXT,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			UNIQUE (user_id, dedupe_key)
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
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

func newRewardService(t *testing.T, db *gorm.DB) rewarddomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new snowflake node: %v", err)
	}
	clk := clock.Fixed{At: time.Date(2026, time.July, 4, 10, 0, 0, 0, time.UTC)}
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Catalog: tier.DefaultCatalog(),
		Clock:   clk,
	})
	return NewService(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		LedgerSvc: ledgerSvc,
		Outbox:    notification.NewOutbox(db, node),
	})
}

func examBalance(t *testing.T, db *gorm.DB, userID int64) int {
	t.Helper()
	var credits int
	if err := db.Raw(`SELECT exam_share_credits FROM credit_balances WHERE user_id = ?`, userID).Scan(&credits).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return credits
}

func rewardCount(t *testing.T, db *gorm.DB, ownerID int64) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM reward_transactions WHERE owner_user_id = ?`, ownerID).Scan(&count).Error; err != nil {
		t.Fatalf("count rewards: %v", err)
	}
	return count
}

func TestGrantCreditsOwnerOnce(t *testing.T) {
	db := setupRewardTestDB(t)
	svc := newRewardService(t, db)
	ctx := context.Background()

	event := rewarddomain.CompletionEvent{
		CompletionID:     "comp-100",
		PostOwnerID:      1,
		CompletingUserID: 2,
		ContentType:      ledgerdomain.CreditTypeExam,
	}

	result, err := svc.Grant(ctx, event)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !result.Granted || result.AlreadyGranted {
		t.Fatalf("expected fresh grant, got %+v", result)
	}

	free := tier.DefaultCatalog().Limits(tier.TierFree)
	if got := examBalance(t, db, 1); got != free.ExamShareCredits+1 {
		t.Fatalf("expected balance %d, got %d", free.ExamShareCredits+1, got)
	}
	if got := rewardCount(t, db, 1); got != 1 {
		t.Fatalf("expected 1 reward transaction, got %d", got)
	}

	// Replayed delivery of the same completion: no credit, no second row.
	result, err = svc.Grant(ctx, event)
	if err != nil {
		t.Fatalf("replay grant: %v", err)
	}
	if result.Granted || !result.AlreadyGranted {
		t.Fatalf("expected already-granted, got %+v", result)
	}
	if got := examBalance(t, db, 1); got != free.ExamShareCredits+1 {
		t.Fatalf("replay must not credit again, balance %d", got)
	}
	if got := rewardCount(t, db, 1); got != 1 {
		t.Fatalf("replay must not add a row, got %d", got)
	}
}

func TestGrantSelfCompletionIsNoOp(t *testing.T) {
	db := setupRewardTestDB(t)
	svc := newRewardService(t, db)

	result, err := svc.Grant(context.Background(), rewarddomain.CompletionEvent{
		CompletionID:     "comp-200",
		PostOwnerID:      3,
		CompletingUserID: 3,
		ContentType:      ledgerdomain.CreditTypePractice,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if result.Granted || result.AlreadyGranted {
		t.Fatalf("expected silent rejection, got %+v", result)
	}
	if got := rewardCount(t, db, 3); got != 0 {
		t.Fatalf("self-completion must not create a transaction, got %d", got)
	}

	var balances int
	if err := db.Raw(`SELECT COUNT(1) FROM credit_balances`).Scan(&balances).Error; err != nil {
		t.Fatalf("count balances: %v", err)
	}
	if balances != 0 {
		t.Fatalf("self-completion must not touch any balance, got %d rows", balances)
	}
}

func TestDistinctCompletionsAllGrant(t *testing.T) {
	db := setupRewardTestDB(t)
	svc := newRewardService(t, db)
	ctx := context.Background()

	const n = 8
	for i := 0; i < n; i++ {
		result, err := svc.Grant(ctx, rewarddomain.CompletionEvent{
			CompletionID:     fmt.Sprintf("comp-%d", 300+i),
			PostOwnerID:      4,
			CompletingUserID: snowflake.ID(100 + i),
			ContentType:      ledgerdomain.CreditTypeExam,
		})
		if err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
		if !result.Granted {
			t.Fatalf("grant %d not applied: %+v", i, result)
		}
	}

	free := tier.DefaultCatalog().Limits(tier.TierFree)
	if got := examBalance(t, db, 4); got != free.ExamShareCredits+n {
		t.Fatalf("expected balance %d, got %d", free.ExamShareCredits+n, got)
	}
	if got := rewardCount(t, db, 4); got != n {
		t.Fatalf("expected %d reward transactions, got %d", n, got)
	}
}

func TestGrantPublishesNotification(t *testing.T) {
	db := setupRewardTestDB(t)
	svc := newRewardService(t, db)

	if _, err := svc.Grant(context.Background(), rewarddomain.CompletionEvent{
		CompletionID:     "comp-400",
		PostOwnerID:      5,
		CompletingUserID: 6,
		ContentType:      ledgerdomain.CreditTypeExam,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	var count int
	if err := db.Raw(
		`SELECT COUNT(1) FROM notifications WHERE user_id = ? AND notification_type = ?`,
		5, notification.TypeRewardGranted,
	).Scan(&count).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 notification, got %d", count)
	}
}

func TestDeletingSourceContentKeepsReward(t *testing.T) {
	db := setupRewardTestDB(t)
	svc := newRewardService(t, db)
	ctx := context.Background()

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new snowflake node: %v", err)
	}
	contentSvc := contentservice.NewService(contentservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.Fixed{At: time.Date(2026, time.July, 4, 10, 0, 0, 0, time.UTC)},
	})

	item, err := contentSvc.Create(ctx, 100, ledgerdomain.CreditTypeExam, "Calculus")
	if err != nil {
		t.Fatalf("create content: %v", err)
	}
	if _, err := svc.Grant(ctx, rewarddomain.CompletionEvent{
		CompletionID:     "comp-450",
		PostOwnerID:      100,
		CompletingUserID: 101,
		ContentType:      item.ContentType,
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	free := tier.DefaultCatalog().Limits(tier.TierFree)
	if got := examBalance(t, db, 100); got != free.ExamShareCredits+1 {
		t.Fatalf("expected balance %d before delete, got %d", free.ExamShareCredits+1, got)
	}

	// Removing the source content must not claw back the earned reward.
	if err := contentSvc.SoftDelete(ctx, item.ID, 100); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if got := examBalance(t, db, 100); got != free.ExamShareCredits+1 {
		t.Fatalf("deletion changed the balance to %d", got)
	}
	if got := rewardCount(t, db, 100); got != 1 {
		t.Fatalf("deletion changed reward rows to %d", got)
	}
}

func TestGrantValidation(t *testing.T) {
	db := setupRewardTestDB(t)
	svc := newRewardService(t, db)
	ctx := context.Background()

	cases := []struct {
		name  string
		event rewarddomain.CompletionEvent
		want  error
	}{
		{"missing completion id", rewarddomain.CompletionEvent{PostOwnerID: 1, CompletingUserID: 2, ContentType: ledgerdomain.CreditTypeExam}, rewarddomain.ErrInvalidCompletionID},
		{"missing owner", rewarddomain.CompletionEvent{CompletionID: "c", CompletingUserID: 2, ContentType: ledgerdomain.CreditTypeExam}, rewarddomain.ErrInvalidOwner},
		{"missing completer", rewarddomain.CompletionEvent{CompletionID: "c", PostOwnerID: 1, ContentType: ledgerdomain.CreditTypeExam}, rewarddomain.ErrInvalidCompleter},
		{"bad content type", rewarddomain.CompletionEvent{CompletionID: "c", PostOwnerID: 1, CompletingUserID: 2, ContentType: "video"}, rewarddomain.ErrInvalidContentType},
	}
	for _, tc := range cases {
		if _, err := svc.Grant(ctx, tc.event); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestListByOwnerNewestFirst(t *testing.T) {
	db := setupRewardTestDB(t)
	svc := newRewardService(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Grant(ctx, rewarddomain.CompletionEvent{
			CompletionID:     fmt.Sprintf("comp-%d", 500+i),
			PostOwnerID:      7,
			CompletingUserID: 8,
			ContentType:      ledgerdomain.CreditTypePractice,
		}); err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
	}

	rewards, err := svc.ListByOwner(ctx, 7, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rewards) != 3 {
		t.Fatalf("expected 3 rewards, got %d", len(rewards))
	}
	for _, reward := range rewards {
		if reward.OwnerUserID != 7 || reward.Amount != 1 {
			t.Fatalf("unexpected reward row %+v", reward)
		}
	}
}
