package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config identifies the service in metric const labels.
type Config struct {
	ServiceName string
	Environment string
}

// CoreMetrics captures the ledger, grant, and sweep counters that back the
// platform's reconciliation alerts.
type CoreMetrics struct {
	debits               *prometheus.CounterVec
	credits              *prometheus.CounterVec
	grants               *prometheus.CounterVec
	sweepProcessed       *prometheus.CounterVec
	monthlyResets        prometheus.Counter
	compensationFailures prometheus.Counter
}

var (
	coreMetricsOnce sync.Once
	coreMetrics     *CoreMetrics
)

// Core returns the process-wide core metrics, registering them on first use.
func Core() *CoreMetrics {
	return CoreWithConfig(Config{})
}

func CoreWithConfig(cfg Config) *CoreMetrics {
	coreMetricsOnce.Do(func() {
		coreMetrics = newCoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return coreMetrics
}

func ResetCoreMetricsForTest() {
	coreMetricsOnce = sync.Once{}
	coreMetrics = nil
}

func newCoreMetrics(registerer prometheus.Registerer, cfg Config) *CoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "shareprep"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	debits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "shareprep_ledger_debits_total",
			Help:        "Share-credit debit attempts by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"credit_type", "result"}, // success | insufficient | error
	)

	credits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "shareprep_ledger_credits_total",
			Help:        "Share-credit increments by source.",
			ConstLabels: constLabels,
		},
		[]string{"credit_type", "source"}, // reward | compensation | reset
	)

	grants := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "shareprep_reward_grants_total",
			Help:        "Reward grant attempts by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // granted | duplicate | self | error
	)

	sweepProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "shareprep_grace_sweep_processed_total",
			Help:        "Grace-period sweep downgrade attempts by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"result"}, // downgraded | skipped | failed
	)

	monthlyResets := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "shareprep_monthly_resets_total",
			Help:        "Monthly credit resets performed.",
			ConstLabels: constLabels,
		},
	)

	compensationFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "shareprep_compensation_failures_total",
			Help:        "Credit-back compensations that failed after a share attempt. Any increase needs manual reconciliation.",
			ConstLabels: constLabels,
		},
	)

	registerer.MustRegister(
		debits,
		credits,
		grants,
		sweepProcessed,
		monthlyResets,
		compensationFailures,
	)

	return &CoreMetrics{
		debits:               debits,
		credits:              credits,
		grants:               grants,
		sweepProcessed:       sweepProcessed,
		monthlyResets:        monthlyResets,
		compensationFailures: compensationFailures,
	}
}

func (m *CoreMetrics) IncDebit(creditType, result string) {
	if m == nil {
		return
	}
	m.debits.WithLabelValues(creditType, result).Inc()
}

func (m *CoreMetrics) IncCredit(creditType, source string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(creditType, source).Inc()
}

func (m *CoreMetrics) IncGrant(result string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(result).Inc()
}

func (m *CoreMetrics) IncSweepProcessed(result string) {
	if m == nil {
		return
	}
	m.sweepProcessed.WithLabelValues(result).Inc()
}

func (m *CoreMetrics) IncMonthlyReset() {
	if m == nil {
		return
	}
	m.monthlyResets.Inc()
}

func (m *CoreMetrics) IncCompensationFailure() {
	if m == nil {
		return
	}
	m.compensationFailures.Inc()
}
