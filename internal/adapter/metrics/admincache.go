package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdminCacheMetrics holds Prometheus metrics for the admin status cache
// and the upstream lookups behind it.
type AdminCacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Lookups       *prometheus.CounterVec
	LookupLatency prometheus.Histogram
}

// NewAdminCacheMetrics creates and registers admin cache metrics on the given registry.
func NewAdminCacheMetrics(reg prometheus.Registerer) *AdminCacheMetrics {
	m := &AdminCacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin_cache",
			Name:      "hits_total",
			Help:      "Total number of admin status cache hits.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin_cache",
			Name:      "misses_total",
			Help:      "Total number of admin status cache misses.",
		}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin_lookup",
			Name:      "requests_total",
			Help:      "Total number of upstream admin lookups, by result.",
		}, []string{"result"}),
		LookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin_lookup",
			Name:      "duration_seconds",
			Help:      "Duration of upstream admin lookups.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Lookups, m.LookupLatency)
	return m
}
