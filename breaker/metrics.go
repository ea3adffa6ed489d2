package breaker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sentinel/metric"
)

// breakerMetrics holds Prometheus metrics for circuit activity.
type breakerMetrics struct {
	state  *prometheus.GaugeVec // 0=closed, 1=half_open, 2=open
	trips  *prometheus.CounterVec
	probes *prometheus.CounterVec
}

// newBreakerMetrics creates and registers breaker metrics.
func newBreakerMetrics(registry *metric.MetricsRegistry) (*breakerMetrics, error) {
	m := &breakerMetrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Subsystem: "breaker",
			Name:      "circuit_state",
			Help:      "Circuit state per provider (0=closed, 1=half_open, 2=open)",
		}, []string{"provider"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total number of circuit open transitions per provider",
		}, []string{"provider"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "breaker",
			Name:      "probes_total",
			Help:      "Total number of recovery probes granted per provider",
		}, []string{"provider"}),
	}

	if err := registry.RegisterGaugeVec("breaker", "circuit_state", m.state); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("breaker", "trips", m.trips); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("breaker", "probes", m.probes); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *breakerMetrics) recordState(provider string, status Status) {
	if m == nil {
		return
	}
	var v float64
	switch status {
	case StatusHalfOpen:
		v = 1
	case StatusOpen:
		v = 2
	}
	m.state.WithLabelValues(provider).Set(v)
}

func (m *breakerMetrics) recordTrip(provider string) {
	if m != nil {
		m.trips.WithLabelValues(provider).Inc()
	}
}

func (m *breakerMetrics) recordProbe(provider string) {
	if m != nil {
		m.probes.WithLabelValues(provider).Inc()
	}
}
