package logger

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/shareprep/shareprep/internal/config"
)

// Module provides the process-wide zap logger and installs it as the global.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
	fx.Invoke(func(log *zap.Logger) {
		zap.ReplaceGlobals(log)
	}),
)

// NewLogger builds the process logger. Production gets sampled JSON output,
// everything else gets the development console encoder.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// FromContext returns the global logger enriched with the active trace and
// span identifiers when a recorded span is present on the context.
func FromContext(ctx context.Context) *zap.Logger {
	log := zap.L()
	if ctx == nil {
		return log
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// Named returns a child of the global logger, mirroring zap's Named semantics
// but tolerating empty segments.
func Named(segments ...string) *zap.Logger {
	log := zap.L()
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		log = log.Named(segment)
	}
	return log
}
