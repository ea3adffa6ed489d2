package ratelimit

import (
	"log/slog"
	"time"

	"github.com/c360/sentinel/metric"
)

type limiterOptions struct {
	logger     *slog.Logger
	now        func() time.Time
	metricsReg *metric.MetricsRegistry
}

// Option configures a Limiter
type Option func(*limiterOptions)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *limiterOptions) {
		o.logger = logger
	}
}

// WithClock sets the time source, used by tests to control window boundaries
func WithClock(now func() time.Time) Option {
	return func(o *limiterOptions) {
		o.now = now
	}
}

// WithMetrics enables Prometheus metrics on the given registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *limiterOptions) {
		o.metricsReg = registry
	}
}

func applyOptions(options ...Option) limiterOptions {
	opts := limiterOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	return opts
}
