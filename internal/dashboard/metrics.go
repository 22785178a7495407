package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks dashboard cache effectiveness.
type Metrics struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paflow_dashboard_cache_hits_total",
			Help: "Dashboard stats served from the Redis cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paflow_dashboard_cache_misses_total",
			Help: "Dashboard stats computed from the database",
		}),
	}
}

// RecordCacheHit is nil-safe so the service can run without metrics in tests.
func (m *Metrics) RecordCacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) RecordCacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}
