// Package server exposes the HTTP surface: webhook intake, completion
// grants, content operations, and per-user lifecycle reads.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/shareprep/shareprep/internal/audit/domain"
	"github.com/shareprep/shareprep/internal/config"
	contentdomain "github.com/shareprep/shareprep/internal/content/domain"
	"github.com/shareprep/shareprep/internal/grace"
	ledgerdomain "github.com/shareprep/shareprep/internal/ledger/domain"
	"github.com/shareprep/shareprep/internal/limiter"
	"github.com/shareprep/shareprep/internal/observability/logger"
	"github.com/shareprep/shareprep/internal/observability/metrics"
	"github.com/shareprep/shareprep/internal/observability/tracing"
	paymentdomain "github.com/shareprep/shareprep/internal/payment/domain"
	"github.com/shareprep/shareprep/internal/reset"
	rewarddomain "github.com/shareprep/shareprep/internal/reward/domain"
	"github.com/shareprep/shareprep/internal/sharing"
	subscriptiondomain "github.com/shareprep/shareprep/internal/subscription/domain"
)

const (
	webhookRateLimit  = 120
	webhookRateWindow = time.Minute
)

type Params struct {
	fx.In

	Cfg             config.Config
	Log             *zap.Logger
	DB              *gorm.DB
	LedgerSvc       ledgerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	RewardSvc       rewarddomain.Service
	ContentSvc      contentdomain.Service
	PaymentSvc      paymentdomain.Service
	AuditSvc        auditdomain.Service
	GraceCtrl       *grace.Controller
	Limiter         *limiter.Limiter
	Sharing         *sharing.Orchestrator
	ResetProtocol   *reset.Protocol
	HTTPMetrics     *metrics.HTTPMetrics `optional:"true"`
}

type Server struct {
	cfg             config.Config
	log             *zap.Logger
	db              *gorm.DB
	ledgerSvc       ledgerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	rewardSvc       rewarddomain.Service
	contentSvc      contentdomain.Service
	paymentSvc      paymentdomain.Service
	auditSvc        auditdomain.Service
	graceCtrl       *grace.Controller
	limiter         *limiter.Limiter
	sharing         *sharing.Orchestrator
	resetProtocol   *reset.Protocol
	httpMetrics     *metrics.HTTPMetrics
	webhookLimiter  *rateLimiter
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		db:              p.DB,
		ledgerSvc:       p.LedgerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		rewardSvc:       p.RewardSvc,
		contentSvc:      p.ContentSvc,
		paymentSvc:      p.PaymentSvc,
		auditSvc:        p.AuditSvc,
		graceCtrl:       p.GraceCtrl,
		limiter:         p.Limiter,
		sharing:         p.Sharing,
		resetProtocol:   p.ResetProtocol,
		httpMetrics:     p.HTTPMetrics,
		webhookLimiter:  newRateLimiter(webhookRateLimit, webhookRateWindow),
	}
}

// Router assembles middleware and routes.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	router.Use(tracing.GinMiddleware())
	if s.httpMetrics != nil {
		router.Use(metrics.GinMiddleware(s.httpMetrics))
	}

	router.GET("/healthz", s.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/stripe", s.StripeWebhook)

	v1 := router.Group("/v1")
	{
		v1.POST("/completions", s.IngestCompletion)

		v1.POST("/content", s.CreateContent)
		v1.POST("/content/:id/share", s.ShareContent)
		v1.DELETE("/content/:id", s.DeleteContent)

		v1.POST("/library-access", s.RecordLibraryAccess)

		users := v1.Group("/users/:id")
		{
			users.GET("/credits", s.GetCredits)
			users.GET("/subscription", s.GetSubscription)
			users.GET("/grace", s.GetGraceStatus)
			users.GET("/limits/:action", s.GetLimit)
			users.GET("/rewards", s.ListRewards)
		}
	}

	internal := router.Group("/internal")
	{
		internal.POST("/sweep", s.TriggerSweep)
	}

	return router
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(runServer),
)

func runServer(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
