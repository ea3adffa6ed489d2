package cache

import (
	"log/slog"
	"time"

	"github.com/c360/sentinel/metric"
)

// Option configures store behavior using the functional options pattern.
type Option func(*storeOptions)

// storeOptions holds internal configuration for store instances.
// Statistics are ALWAYS collected; Prometheus export is optional.
type storeOptions struct {
	metricsReg      *metric.MetricsRegistry
	logger          *slog.Logger
	cleanupInterval time.Duration
}

// WithMetrics enables Prometheus metrics export for store statistics.
// If registry is nil, this option is ignored.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(opts *storeOptions) {
		if registry != nil {
			opts.metricsReg = registry
		}
	}
}

// WithLogger sets the structured logger used for fail-open warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *storeOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithCleanupInterval sets how often the in-memory backend sweeps expired
// entries. Only relevant for the memory store. If interval is <= 0, this
// option is ignored.
func WithCleanupInterval(interval time.Duration) Option {
	return func(opts *storeOptions) {
		if interval > 0 {
			opts.cleanupInterval = interval
		}
	}
}

// applyOptions applies functional options to create final store configuration.
func applyOptions(options ...Option) *storeOptions {
	opts := &storeOptions{
		logger:          slog.Default(),
		cleanupInterval: 30 * time.Second,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
