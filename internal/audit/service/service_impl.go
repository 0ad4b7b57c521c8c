package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/shareprep/shareprep/internal/audit/domain"
	"github.com/shareprep/shareprep/internal/clock"
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

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	actorType := entry.ActorType
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	metadata := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		metadata[key] = value
	}

	var userID any
	if entry.UserID != 0 {
		userID = entry.UserID
	}
	var targetID any
	if strings.TrimSpace(entry.TargetID) != "" {
		targetID = strings.TrimSpace(entry.TargetID)
	}

	return s.db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (id, user_id, actor_type, action, target_type, target_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		userID,
		string(actorType),
		action,
		strings.TrimSpace(entry.TargetType),
		targetID,
		metadata,
		s.clock.Now(),
	).Error
}

func (s *Service) List(ctx context.Context, filter auditdomain.ListFilter) ([]auditdomain.AuditLog, error) {
	query := `SELECT id, user_id, actor_type, action, target_type, target_id, metadata, created_at
	          FROM audit_logs
	          WHERE 1=1`
	var args []any

	if filter.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query += ` AND action = ?`
		args = append(args, action)
	}
	if actorType := strings.TrimSpace(filter.ActorType); actorType != "" {
		query += ` AND actor_type = ?`
		args = append(args, actorType)
	}
	if filter.StartAt != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.StartAt)
	}
	if filter.EndAt != nil {
		query += ` AND created_at < ?`
		args = append(args, *filter.EndAt)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var logs []auditdomain.AuditLog
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
