// Package seed bootstraps demo data for local development.
package seed

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// demoUserID is a stable id so repeated startups reuse the same row.
const demoUserID = 1

// EnsureDemoUser seeds one free-tier subscription and its starting
// balance so a fresh development database has something to poke at.
// Safe to run on every startup.
func EnsureDemoUser(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	now := time.Now().UTC()
	period := now.Format("2006-01")

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO subscriptions (user_id, tier, status, created_at, updated_at)
			 VALUES (?, 'free', 'canceled', ?, ?)
			 ON CONFLICT (user_id) DO NOTHING`,
			demoUserID, now, now,
		).Error; err != nil {
			return err
		}
		return tx.Exec(
			`INSERT INTO credit_balances (user_id, exam_share_credits, practice_share_credits, last_reset_period, created_at, updated_at)
			 VALUES (?, 1, 1, ?, ?, ?)
			 ON CONFLICT (user_id) DO NOTHING`,
			demoUserID, period, now, now,
		).Error
	})
}
