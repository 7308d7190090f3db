package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventMetrics counts moderation events handed to the event channel.
type EventMetrics struct {
	Published *prometheus.CounterVec
}

func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	m := &EventMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of moderation events published, by kind and result.",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(m.Published)
	return m
}
