package notification

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:outbox_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.Exec(`CREATE TABLE IF NOT EXISTS notifications (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		notification_type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		dedupe_key TEXT,
		published BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		UNIQUE (user_id, dedupe_key)
	)`).Error
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func newOutbox(t *testing.T, db *gorm.DB) *Outbox {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new snowflake node: %v", err)
	}
	return NewOutbox(db, node)
}

func countNotifications(t *testing.T, db *gorm.DB, userID snowflake.ID) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(*) FROM notifications WHERE user_id = ?`, userID).Scan(&count).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return count
}

func TestPublishDedupesOnKey(t *testing.T) {
	db := setupOutboxTestDB(t)
	outbox := newOutbox(t, db)
	ctx := context.Background()

	event := Event{
		UserID:    1,
		Type:      TypePaymentFailed,
		Payload:   map[string]any{"days_remaining": 7},
		DedupeKey: "payment_failed:2026-06-12T10:00:00Z",
	}
	for i := 0; i < 3; i++ {
		if err := outbox.Publish(ctx, event); err != nil {
			t.Fatalf("publish %d: %v", i+1, err)
		}
	}

	if got := countNotifications(t, db, 1); got != 1 {
		t.Fatalf("expected 1 notification after replays, got %d", got)
	}
}

func TestPublishDistinctKeysAllLand(t *testing.T) {
	db := setupOutboxTestDB(t)
	outbox := newOutbox(t, db)
	ctx := context.Background()

	for day := 1; day <= 3; day++ {
		err := outbox.Publish(ctx, Event{
			UserID:    2,
			Type:      TypeDowngradeCompleted,
			DedupeKey: fmt.Sprintf("downgrade:grace_expired:2026-06-%02d", day),
		})
		if err != nil {
			t.Fatalf("publish day %d: %v", day, err)
		}
	}

	if got := countNotifications(t, db, 2); got != 3 {
		t.Fatalf("expected 3 notifications, got %d", got)
	}
}

func TestPublishValidation(t *testing.T) {
	db := setupOutboxTestDB(t)
	outbox := newOutbox(t, db)
	ctx := context.Background()

	if err := outbox.Publish(ctx, Event{Type: TypePaymentFailed}); err == nil {
		t.Fatalf("expected error for missing user")
	}
	if err := outbox.Publish(ctx, Event{UserID: 3, Type: "  "}); err == nil {
		t.Fatalf("expected error for blank type")
	}
	if err := outbox.PublishTx(ctx, nil, Event{UserID: 3, Type: TypePaymentFailed}); err == nil {
		t.Fatalf("expected error for nil transaction")
	}
}
