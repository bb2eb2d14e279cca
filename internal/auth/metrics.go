package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds prometheus metrics for credential verification.
type Metrics struct {
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram
}

// NewMetrics creates verification metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		validationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_validations_total",
				Help:      "Total number of credential validations",
			},
			[]string{"status", "reason"},
		),
		validationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "credential_validation_duration_seconds",
				Help:      "Duration of credential validations in seconds",
				Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
		),
	}
}

// RecordValidation records a validation outcome.
func (m *Metrics) RecordValidation(status, reason string, d time.Duration) {
	m.validationsTotal.WithLabelValues(status, reason).Inc()
	m.validationDuration.Observe(d.Seconds())
}
