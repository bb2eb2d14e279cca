package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds prometheus metrics for rate limiting.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	checkDuration prometheus.Histogram
	emptyKeys     prometheus.Counter
}

// NewMetrics creates rate limiter metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_checks_total",
				Help:      "Total number of rate limit checks by outcome",
			},
			[]string{"outcome"},
		),
		checkDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ratelimit_check_duration_seconds",
				Help:      "Duration of rate limit store calls in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),
		emptyKeys: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_empty_keys_total",
				Help:      "Total number of requests whose resolver produced no routing key",
			},
		),
	}
}

// RecordCheck records a rate limit check outcome (allowed, denied, degraded).
func (m *Metrics) RecordCheck(outcome string, d time.Duration) {
	m.checksTotal.WithLabelValues(outcome).Inc()
	m.checkDuration.Observe(d.Seconds())
}

// RecordEmptyKey records a request with no resolvable routing key.
func (m *Metrics) RecordEmptyKey() {
	m.emptyKeys.Inc()
}
