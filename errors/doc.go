// Package errors provides standardized error handling patterns for Sentinel components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// the admission control layer: Transient (temporary, retryable), Invalid
// (bad input or contract violation, non-retryable), and Fatal (unrecoverable,
// stop processing).
//
// Classification is what drives the layer's fail-open policy: transient
// infrastructure errors (storage unreachable, RPC timeout) degrade to the
// documented allow-by-default result instead of propagating, while invalid
// errors (an idempotency key reused with a different payload) surface as
// explicit client-facing responses.
//
// # Error Classification
//
//   - Transient: storage or connection issues, timeouts (fail open, log warning)
//   - Invalid: contract violations, bad configuration values (surface to client)
//   - Fatal: missing required configuration (fail construction, never a request)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Return standard error variables for known conditions:
//
//	if count > plan.IncludedRequests {
//	    return errors.ErrQuotaExceeded
//	}
//
// Wrap errors with component context:
//
//	if err := store.Set(ctx, key, value, ttl); err != nil {
//	    return errors.WrapTransient(err, "RateLimiter", "Check", "counter write")
//	}
//
// Check classification when deciding whether to fail open:
//
//	if errors.IsTransient(err) {
//	    return defaultAllow
//	}
package errors
