package keys

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds prometheus metrics for the key registry.
type Metrics struct {
	lookupsTotal   *prometheus.CounterVec
	reloadsTotal   *prometheus.CounterVec
	reloadDuration prometheus.Histogram
	cacheSize      prometheus.Gauge
	pollingActive  prometheus.Gauge
}

// NewMetrics creates key registry metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		lookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_cache_lookups_total",
				Help:      "Total number of key cache lookups",
			},
			[]string{"result"},
		),
		reloadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_reloads_total",
				Help:      "Total number of key source reloads",
			},
			[]string{"kind", "status"},
		),
		reloadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "key_reload_duration_seconds",
				Help:      "Duration of key source reloads in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		cacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "key_cache_size",
				Help:      "Number of keys currently cached",
			},
		),
		pollingActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "key_refresh_polling_active",
				Help:      "Whether the polling fallback is active (1) or refresh is event-driven (0)",
			},
		),
	}
}

// RecordLookup records a cache lookup outcome.
func (m *Metrics) RecordLookup(hit bool) {
	if hit {
		m.lookupsTotal.WithLabelValues("hit").Inc()
	} else {
		m.lookupsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordReload records a reload attempt.
func (m *Metrics) RecordReload(kind, status string, seconds float64) {
	m.reloadsTotal.WithLabelValues(kind, status).Inc()
	m.reloadDuration.Observe(seconds)
}

// SetCacheSize updates the cache size gauge.
func (m *Metrics) SetCacheSize(n int) {
	m.cacheSize.Set(float64(n))
}

// SetPollingActive updates the polling fallback gauge.
func (m *Metrics) SetPollingActive(active bool) {
	if active {
		m.pollingActive.Set(1)
	} else {
		m.pollingActive.Set(0)
	}
}
