package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "cookbook"

// Metrics holds the LLM transport collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	RetryDelay      *prometheus.HistogramVec
	Calls           *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Physical provider attempts by classified result",
		}, []string{"provider", "result"}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "attempt_duration_seconds",
			Help:      "Latency of a single provider attempt",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
		RetryDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "retry_delay_seconds",
			Help:      "Backoff slept before a retry",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8},
		}, []string{"provider"}),
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Logical facade calls by operation and outcome",
		}, []string{"provider", "operation", "outcome"}),
	}

	for _, c := range []prometheus.Collector{m.Attempts, m.AttemptDuration, m.RetryDelay, m.Calls} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// ObserveAttempt records one physical attempt.
func (m *Metrics) ObserveAttempt(provider, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(provider, result).Inc()
	m.AttemptDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRetryDelay records a backoff sleep.
func (m *Metrics) ObserveRetryDelay(provider string, delay time.Duration) {
	if m == nil {
		return
	}
	m.RetryDelay.WithLabelValues(provider).Observe(delay.Seconds())
}

// ObserveCall records the outcome of one logical call.
func (m *Metrics) ObserveCall(provider, operation, outcome string) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(provider, operation, outcome).Inc()
}
