package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds prometheus metrics for the change-notification channel.
type Metrics struct {
	eventsTotal *prometheus.CounterVec
}

// NewMetrics creates bus metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_events_total",
				Help:      "Total number of change-notification events by kind",
			},
			[]string{"kind"},
		),
	}
}

// RecordEvent records a consumed event.
func (m *Metrics) RecordEvent(kind string) {
	m.eventsTotal.WithLabelValues(kind).Inc()
}
