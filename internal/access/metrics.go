package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds prometheus metrics for the access rule engine.
type Metrics struct {
	configLookupsTotal *prometheus.CounterVec
	reloadsTotal       *prometheus.CounterVec
	invalidationsTotal prometheus.Counter
	decisionsTotal     *prometheus.CounterVec
	identityRejects    prometheus.Counter
	configCount        prometheus.Gauge
}

// NewMetrics creates access engine metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		configLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "client_config_lookups_total",
				Help:      "Total number of client config cache lookups",
			},
			[]string{"result"},
		),
		reloadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "client_config_reloads_total",
				Help:      "Total number of client config merges",
			},
			[]string{"status"},
		),
		invalidationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "client_config_invalidations_total",
				Help:      "Total number of client config entries invalidated by change events",
			},
		),
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_decisions_total",
				Help:      "Total number of access rule decisions",
			},
			[]string{"decision"},
		),
		identityRejects: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identity_validation_rejects_total",
				Help:      "Total number of identities rejected by input validation",
			},
		),
		configCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "client_configs_cached",
				Help:      "Number of client configurations currently cached",
			},
		),
	}
}

// RecordConfigLookup records a config cache lookup outcome.
func (m *Metrics) RecordConfigLookup(hit bool) {
	if hit {
		m.configLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		m.configLookupsTotal.WithLabelValues("miss").Inc()
	}
}

// RecordReload records a merge attempt.
func (m *Metrics) RecordReload(status string) {
	m.reloadsTotal.WithLabelValues(status).Inc()
}

// RecordInvalidation records targeted invalidations.
func (m *Metrics) RecordInvalidation(n int) {
	m.invalidationsTotal.Add(float64(n))
}

// RecordDecision records an allow/deny rule decision.
func (m *Metrics) RecordDecision(allowed bool) {
	if allowed {
		m.decisionsTotal.WithLabelValues("allow").Inc()
	} else {
		m.decisionsTotal.WithLabelValues("deny").Inc()
	}
}

// RecordIdentityReject records an identity failing input validation.
func (m *Metrics) RecordIdentityReject() {
	m.identityRejects.Inc()
}

// SetConfigCount updates the cached-config gauge.
func (m *Metrics) SetConfigCount(n int) {
	m.configCount.Set(float64(n))
}
