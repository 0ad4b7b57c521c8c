package grace

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/shareprep/shareprep/internal/config"
)

// WorkerConfig bounds the sweep loop.
type WorkerConfig struct {
	SweepInterval time.Duration
	BatchSize     int
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// NewWorkerConfig derives the sweep settings from runtime configuration.
func NewWorkerConfig(cfg config.Config) WorkerConfig {
	return WorkerConfig{
		SweepInterval: cfg.SweepInterval,
		BatchSize:     cfg.SweepBatchSize,
	}.withDefaults()
}

type WorkerParams struct {
	fx.In

	Log        *zap.Logger
	Controller *Controller
	Config     WorkerConfig `optional:"true"`
}

// Worker periodically sweeps expired grace periods and ended
// cancellation windows.
type Worker struct {
	log        *zap.Logger
	controller *Controller
	cfg        WorkerConfig
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		log:        p.Log.Named("grace.worker"),
		controller: p.Controller,
		cfg:        p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	result := w.controller.SweepExpired(runCtx, w.cfg.BatchSize)
	for _, err := range result.Errors {
		w.log.Warn("grace sweep error", zap.Error(err))
	}
	if result.ProcessedCount > 0 {
		w.log.Info("grace sweep completed", zap.Int("processed", result.ProcessedCount))
	}

	if err := w.controller.NotifyExpiring(runCtx, w.cfg.BatchSize); err != nil {
		w.log.Warn("grace expiry warnings failed", zap.Error(err))
	}
}
