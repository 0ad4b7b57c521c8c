// Package domain contains the minimal content records the platform
// counts and shares.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
)

// ContentItem is one created exam or practice set. Deletion is a soft
// mark so earned rewards and historical usage stay intact.
type ContentItem struct {
	ID          snowflake.ID            `gorm:"primaryKey" json:"id"`
	OwnerUserID snowflake.ID            `gorm:"not null;index" json:"owner_user_id"`
	ContentType ledgerdomain.CreditType `gorm:"type:text;not null" json:"content_type"`
	Title       string                  `gorm:"type:text;not null;default:''" json:"title"`
	Shared      bool                    `gorm:"not null;default:false" json:"shared"`
	SharedAt    *time.Time              `json:"shared_at,omitempty"`
	DeletedAt   *time.Time              `json:"deleted_at,omitempty"`
	CreatedAt   time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ContentItem) TableName() string { return "content_items" }

// LibraryAccess records one visit to someone else's shared content.
type LibraryAccess struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID `gorm:"not null;index" json:"user_id"`
	ContentID  snowflake.ID `json:"content_id,omitempty"`
	AccessedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"accessed_at"`
}

// TableName sets the database table name.
func (LibraryAccess) TableName() string { return "library_accesses" }
