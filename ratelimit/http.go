package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
)

// IdentityFromRequest resolves the caller identity used for rate limit
// bucketing. Precedence: API key header, first hop of X-Forwarded-For,
// remote address, then "unknown".
func IdentityFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// SetHeaders writes the standard rate limit response headers from a verdict.
func SetHeaders(w http.ResponseWriter, result Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// Middleware enforces the limiter's defaults on every request, keyed by
// resolved identity and method+path. Rejected requests get a 429 with the
// rate limit headers set.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromRequest(r)
		route := r.Method + " " + r.URL.Path

		result := l.Check(r.Context(), identity, route, Options{})
		SetHeaders(w, result)

		if !result.Allowed {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
