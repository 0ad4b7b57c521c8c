package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/shareprep/shareprep/internal/audit"
	"github.com/shareprep/shareprep/internal/clock"
	"github.com/shareprep/shareprep/internal/config"
	"github.com/shareprep/shareprep/internal/content"
	"github.com/shareprep/shareprep/internal/grace"
	"github.com/shareprep/shareprep/internal/ledger"
	"github.com/shareprep/shareprep/internal/limiter"
	"github.com/shareprep/shareprep/internal/migration"
	"github.com/shareprep/shareprep/internal/notification"
	"github.com/shareprep/shareprep/internal/observability/logger"
	"github.com/shareprep/shareprep/internal/observability/metrics"
	"github.com/shareprep/shareprep/internal/observability/tracing"
	"github.com/shareprep/shareprep/internal/payment"
	"github.com/shareprep/shareprep/internal/reset"
	"github.com/shareprep/shareprep/internal/reward"
	"github.com/shareprep/shareprep/internal/seed"
	"github.com/shareprep/shareprep/internal/server"
	"github.com/shareprep/shareprep/internal/sharing"
	"github.com/shareprep/shareprep/internal/subscription"
	"github.com/shareprep/shareprep/internal/tier"
	"github.com/shareprep/shareprep/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		tracing.Module,
		metrics.Module,
		clock.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if !cfg.IsProduction() {
				return seed.EnsureDemoUser(conn)
			}
			return nil
		}),
		tier.Module,
		notification.Module,
		ledger.Module,
		subscription.Module,
		content.Module,
		audit.Module,
		reward.Module,
		reset.Module,
		limiter.Module,
		grace.Module,
		payment.Module,
		sharing.Module,
		server.Module,
	)
	app.Run()
}
