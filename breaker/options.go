package breaker

import (
	"log/slog"
	"time"

	"github.com/c360/sentinel/metric"
)

// Option configures breaker behavior using the functional options pattern.
type Option func(*breakerOptions)

type breakerOptions struct {
	logger     *slog.Logger
	now        func() time.Time
	metricsReg *metric.MetricsRegistry
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *breakerOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithClock overrides the time source. Used by tests to drive the lazy
// open to half_open transition without sleeping.
func WithClock(now func() time.Time) Option {
	return func(opts *breakerOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// WithMetrics enables Prometheus metrics export.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(opts *breakerOptions) {
		if registry != nil {
			opts.metricsReg = registry
		}
	}
}

func applyOptions(options ...Option) *breakerOptions {
	opts := &breakerOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
