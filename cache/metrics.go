package cache

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sentinel/metric"
)

// storeMetrics holds Prometheus metrics for store operations.
type storeMetrics struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	sets    prometheus.Counter
	deletes prometheus.Counter
	size    prometheus.Gauge
}

// newStoreMetrics creates and registers store metrics with the provided registry.
func newStoreMetrics(registry *metric.MetricsRegistry, backend string) (*storeMetrics, error) {
	labels := prometheus.Labels{"backend": backend}
	m := &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sentinel",
			Subsystem:   "cache",
			Name:        "hits_total",
			ConstLabels: labels,
			Help:        "Total number of cache hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sentinel",
			Subsystem:   "cache",
			Name:        "misses_total",
			ConstLabels: labels,
			Help:        "Total number of cache misses",
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sentinel",
			Subsystem:   "cache",
			Name:        "sets_total",
			ConstLabels: labels,
			Help:        "Total number of cache set operations",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "sentinel",
			Subsystem:   "cache",
			Name:        "deletes_total",
			ConstLabels: labels,
			Help:        "Total number of cache delete operations",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "sentinel",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of entries in the store",
		}),
	}

	if err := registry.RegisterCounter(backend, "cache_hits", m.hits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(backend, "cache_misses", m.misses); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(backend, "cache_sets", m.sets); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(backend, "cache_deletes", m.deletes); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(backend, "cache_size", m.size); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *storeMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *storeMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *storeMetrics) recordSet() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *storeMetrics) recordDelete() {
	if m != nil {
		m.deletes.Inc()
	}
}

func (m *storeMetrics) updateSize(size int64) {
	if m != nil {
		m.size.Set(float64(size))
	}
}
