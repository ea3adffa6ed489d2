package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sentinel/metric"
)

// limiterMetrics holds Prometheus metrics for admission verdicts.
type limiterMetrics struct {
	allowed  *prometheus.CounterVec
	rejected *prometheus.CounterVec
	failopen *prometheus.CounterVec
}

// newLimiterMetrics creates and registers limiter metrics.
func newLimiterMetrics(registry *metric.MetricsRegistry) (*limiterMetrics, error) {
	m := &limiterMetrics{
		allowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "ratelimit",
			Name:      "allowed_total",
			Help:      "Requests admitted within their window per route",
		}, []string{"route"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected for exceeding their window per route",
		}, []string{"route"}),
		failopen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "ratelimit",
			Name:      "failopen_total",
			Help:      "Verdicts produced while the backing store was unreachable per route",
		}, []string{"route"}),
	}

	if err := registry.RegisterCounterVec("ratelimit", "allowed", m.allowed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("ratelimit", "rejected", m.rejected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("ratelimit", "failopen", m.failopen); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *limiterMetrics) recordAllowed(route string) {
	if m != nil {
		m.allowed.WithLabelValues(route).Inc()
	}
}

func (m *limiterMetrics) recordRejected(route string) {
	if m != nil {
		m.rejected.WithLabelValues(route).Inc()
	}
}

func (m *limiterMetrics) recordFailOpen(route string) {
	if m != nil {
		m.failopen.WithLabelValues(route).Inc()
	}
}
