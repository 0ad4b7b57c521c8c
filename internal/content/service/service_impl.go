package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/clock"
	contentdomain "github.com/shareprep/shareprep/internal/content/domain"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) contentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("content.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, ownerID snowflake.ID, contentType ledgerdomain.CreditType, title string) (contentdomain.ContentItem, error) {
	if ownerID == 0 {
		return contentdomain.ContentItem{}, contentdomain.ErrInvalidOwner
	}
	if !contentType.Valid() {
		return contentdomain.ContentItem{}, contentdomain.ErrInvalidContentType
	}

	item := contentdomain.ContentItem{
		ID:          s.genID.Generate(),
		OwnerUserID: ownerID,
		ContentType: contentType,
		Title:       strings.TrimSpace(title),
		CreatedAt:   s.clock.Now(),
	}
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO content_items (id, owner_user_id, content_type, title, shared, created_at)
		 VALUES (?, ?, ?, ?, false, ?)`,
		item.ID,
		item.OwnerUserID,
		item.ContentType,
		item.Title,
		item.CreatedAt,
	).Error
	if err != nil {
		return contentdomain.ContentItem{}, err
	}
	return item, nil
}

func (s *Service) Get(ctx context.Context, contentID snowflake.ID) (contentdomain.ContentItem, error) {
	if contentID == 0 {
		return contentdomain.ContentItem{}, contentdomain.ErrContentNotFound
	}
	var item contentdomain.ContentItem
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, owner_user_id, content_type, title, shared, shared_at, deleted_at, created_at
		 FROM content_items
		 WHERE id = ?`,
		contentID,
	).Scan(&item).Error
	if err != nil {
		return contentdomain.ContentItem{}, err
	}
	if item.ID == 0 {
		return contentdomain.ContentItem{}, contentdomain.ErrContentNotFound
	}
	return item, nil
}

func (s *Service) MarkShared(ctx context.Context, contentID, ownerID snowflake.ID) error {
	if contentID == 0 || ownerID == 0 {
		return contentdomain.ErrContentNotFound
	}
	result := s.db.WithContext(ctx).Exec(
		`UPDATE content_items
		 SET shared = true, shared_at = ?
		 WHERE id = ? AND owner_user_id = ? AND deleted_at IS NULL AND shared = false`,
		s.clock.Now(),
		contentID,
		ownerID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Distinguish "no such item" from "already shared" for the caller.
	item, err := s.Get(ctx, contentID)
	if err != nil {
		return err
	}
	if item.OwnerUserID != ownerID || item.DeletedAt != nil {
		return contentdomain.ErrContentNotFound
	}
	if item.Shared {
		return contentdomain.ErrAlreadyShared
	}
	return errors.New("mark_shared_conflict")
}

func (s *Service) SoftDelete(ctx context.Context, contentID, ownerID snowflake.ID) error {
	if contentID == 0 || ownerID == 0 {
		return contentdomain.ErrContentNotFound
	}
	result := s.db.WithContext(ctx).Exec(
		`UPDATE content_items
		 SET deleted_at = ?
		 WHERE id = ? AND owner_user_id = ? AND deleted_at IS NULL`,
		s.clock.Now(),
		contentID,
		ownerID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contentdomain.ErrContentNotFound
	}
	return nil
}

func (s *Service) CountCreatedInMonth(ctx context.Context, ownerID snowflake.ID, contentType ledgerdomain.CreditType, at time.Time) (int, error) {
	if ownerID == 0 {
		return 0, contentdomain.ErrInvalidOwner
	}
	if !contentType.Valid() {
		return 0, contentdomain.ErrInvalidContentType
	}
	start := ledgerdomain.MonthStart(at)
	end := start.AddDate(0, 1, 0)

	var count int
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM content_items
		 WHERE owner_user_id = ? AND content_type = ? AND created_at >= ? AND created_at < ?`,
		ownerID,
		contentType,
		start,
		end,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Service) RecordLibraryAccess(ctx context.Context, userID, contentID snowflake.ID) error {
	if userID == 0 {
		return contentdomain.ErrInvalidOwner
	}
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO library_accesses (id, user_id, content_id, accessed_at)
		 VALUES (?, ?, ?, ?)`,
		s.genID.Generate(),
		userID,
		contentID,
		s.clock.Now(),
	).Error
}

func (s *Service) CountLibraryAccessInMonth(ctx context.Context, userID snowflake.ID, at time.Time) (int, error) {
	if userID == 0 {
		return 0, contentdomain.ErrInvalidOwner
	}
	start := ledgerdomain.MonthStart(at)
	end := start.AddDate(0, 1, 0)

	var count int
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM library_accesses
		 WHERE user_id = ? AND accessed_at >= ? AND accessed_at < ?`,
		userID,
		start,
		end,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
