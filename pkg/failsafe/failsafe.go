// Package failsafe implements the layer's fail-open policy as a single
// reusable helper. Every storage and RPC call site that must degrade to a
// default instead of failing the request goes through this package, so the
// safety property stays consistent and auditable.
package failsafe

import (
	"log/slog"
)

// Value runs fn and returns its result. If fn returns an error, the error is
// logged as a warning and the fallback value is returned along with
// degraded=true so callers can surface "allowed because the guard failed
// open" distinctly from a healthy allow.
func Value[T any](logger *slog.Logger, op string, fallback T, fn func() (T, error)) (result T, degraded bool) {
	v, err := fn()
	if err != nil {
		if logger != nil {
			logger.Warn("failing open", "op", op, "error", err)
		}
		return fallback, true
	}
	return v, false
}

// Do runs fn. If fn returns an error, the error is logged as a warning and
// degraded=true is returned; the error is never propagated.
func Do(logger *slog.Logger, op string, fn func() error) (degraded bool) {
	if err := fn(); err != nil {
		if logger != nil {
			logger.Warn("failing open", "op", op, "error", err)
		}
		return true
	}
	return false
}
