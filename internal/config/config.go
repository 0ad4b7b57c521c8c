package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration sourced from the environment.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string

	// GracePeriodDays bounds how long premium access survives a payment failure.
	GracePeriodDays int
	// ExtendGraceOnRepeatFailure controls whether a second payment-failed
	// signal while already past_due pushes the grace deadline out again.
	// Payment processors retry webhooks, so the default keeps the original
	// deadline.
	ExtendGraceOnRepeatFailure bool

	SweepInterval  time.Duration
	SweepBatchSize int

	StripeWebhookSecret string

	Tracing TracingConfig
}

// TracingConfig configures the OTLP exporter.
type TracingConfig struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Environment: getString("SHAREPREP_ENV", "development"),
		HTTPAddr:    getString("SHAREPREP_HTTP_ADDR", ":8080"),
		DatabaseDSN: getString("SHAREPREP_DATABASE_DSN", ""),

		GracePeriodDays:            getInt("SHAREPREP_GRACE_PERIOD_DAYS", 7),
		ExtendGraceOnRepeatFailure: getBool("SHAREPREP_EXTEND_GRACE_ON_REPEAT_FAILURE", false),

		SweepInterval:  getDuration("SHAREPREP_SWEEP_INTERVAL", time.Hour),
		SweepBatchSize: getInt("SHAREPREP_SWEEP_BATCH_SIZE", 100),

		StripeWebhookSecret: getString("SHAREPREP_STRIPE_WEBHOOK_SECRET", ""),

		Tracing: TracingConfig{
			Enabled:          getBool("SHAREPREP_TRACING_ENABLED", false),
			ServiceName:      getString("OTEL_SERVICE_NAME", "shareprep"),
			ServiceVersion:   getString("SHAREPREP_VERSION", "dev"),
			ExporterEndpoint: getString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ExporterProtocol: getString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			SamplingRatio:    getFloat("SHAREPREP_TRACING_SAMPLING_RATIO", 1.0),
		},
	}
}

// IsProduction reports whether the process runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
