package idempotency

import (
	"log/slog"
	"time"
)

type gateOptions struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Gate
type Option func(*gateOptions)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *gateOptions) {
		o.logger = logger
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(o *gateOptions) {
		o.now = now
	}
}

func applyOptions(options ...Option) gateOptions {
	opts := gateOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	return opts
}
