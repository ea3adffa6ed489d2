// Package ratelimit implements a fixed-window request rate limiter over the
// shared cache store. Each identity+route pair gets its own counter window;
// the limiter reports the verdict and window bookkeeping, and the caller
// makes the policy decision (reject, queue, degrade).
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/sentinel/cache"
	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/pkg/failsafe"
)

// Options configures one Check call. Zero values fall back to the limiter's
// defaults.
type Options struct {
	// Window is the fixed window length
	Window time.Duration

	// MaxRequests is the number of requests admitted per window
	MaxRequests int
}

// Result is the verdict for one request
type Result struct {
	// Allowed reports whether the request fits in the current window
	Allowed bool

	// Limit echoes the window's request budget
	Limit int

	// Remaining is how many requests are left in the window after this one
	Remaining int

	// Count is the raw number of requests seen in the window including this
	// one; past the limit it keeps growing while Remaining stays 0
	Count int

	// ResetAt is when the current window ends
	ResetAt time.Time

	// FailedOpen marks a verdict produced while the backing store was
	// unreachable; such verdicts always allow
	FailedOpen bool
}

// windowState is the persisted per-key counter record
type windowState struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"reset_at"` // unix millis
}

// Limiter tracks request counts per identity+route in fixed windows
type Limiter struct {
	store    cache.Store
	defaults Options
	logger   *slog.Logger
	now      func() time.Time
	metrics  *limiterMetrics
}

// New creates a limiter over the given store. The store must be a namespaced
// view dedicated to rate limit counters.
func New(store cache.Store, defaults Options, options ...Option) (*Limiter, error) {
	if defaults.Window <= 0 {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "ratelimit", "New", "window must be positive")
	}
	if defaults.MaxRequests <= 0 {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "ratelimit", "New", "max requests must be positive")
	}

	opts := applyOptions(options...)

	var metrics *limiterMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newLimiterMetrics(opts.metricsReg)
		if err != nil {
			return nil, err
		}
	}

	return &Limiter{
		store:    store,
		defaults: defaults,
		logger:   opts.logger,
		now:      opts.now,
		metrics:  metrics,
	}, nil
}

func counterKey(identity, route string) string {
	return identity + ":" + route
}

// Check counts one request against the identity+route window and reports the
// verdict. A request that lands in an elapsed window starts a fresh one.
// Counter updates are read-modify-write; concurrent racers on the same key
// may undercount by a few requests within one window.
//
// A storage failure produces an allowing verdict with FailedOpen set.
func (l *Limiter) Check(ctx context.Context, identity, route string, opts Options) Result {
	if opts.Window <= 0 {
		opts.Window = l.defaults.Window
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = l.defaults.MaxRequests
	}

	now := l.now()
	key := counterKey(identity, route)

	open := Result{
		Allowed:    true,
		Limit:      opts.MaxRequests,
		Remaining:  opts.MaxRequests,
		ResetAt:    now.Add(opts.Window),
		FailedOpen: true,
	}

	result, degraded := failsafe.Value(l.logger, "ratelimit.Check", open, func() (Result, error) {
		state, found, err := cache.GetJSON[windowState](ctx, l.store, key)
		if err != nil {
			return open, err
		}

		resetAt := time.UnixMilli(state.ResetAt)
		if !found || !now.Before(resetAt) {
			// Fresh window
			state = windowState{Count: 1, ResetAt: now.Add(opts.Window).UnixMilli()}
			resetAt = time.UnixMilli(state.ResetAt)
		} else {
			state.Count++
		}

		if err := cache.SetJSON(ctx, l.store, key, state, resetAt.Sub(now)); err != nil {
			return open, err
		}

		remaining := opts.MaxRequests - state.Count
		if remaining < 0 {
			remaining = 0
		}

		return Result{
			Allowed:   state.Count <= opts.MaxRequests,
			Limit:     opts.MaxRequests,
			Remaining: remaining,
			Count:     state.Count,
			ResetAt:   resetAt,
		}, nil
	})

	if degraded {
		l.metrics.recordFailOpen(route)
		return result
	}

	if result.Allowed {
		l.metrics.recordAllowed(route)
	} else {
		l.metrics.recordRejected(route)
		l.logger.Debug("rate limit exceeded",
			"identity", identity, "route", route, "limit", result.Limit)
	}
	return result
}
