// Package sentinel assembles the admission control layer: rate limiting,
// idempotent request dedup, usage quota admission, and per-provider circuit
// breaking, all over one pluggable state store. Every decision fails open:
// an unreachable store degrades protection, never availability.
package sentinel

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/c360/sentinel/breaker"
	"github.com/c360/sentinel/cache"
	"github.com/c360/sentinel/config"
	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/health"
	"github.com/c360/sentinel/idempotency"
	"github.com/c360/sentinel/metric"
	"github.com/c360/sentinel/natsclient"
	"github.com/c360/sentinel/ratelimit"
	"github.com/c360/sentinel/usage"
)

// Store namespaces. Each primitive gets its own keyspace view so keys can
// never collide across concerns.
const (
	nsCircuit   = "circuit"
	nsRateLimit = "ratelimit"
	nsIdem      = "idem"
)

// Deps are the injected collaborators for a Layer. Logger and Metrics are
// optional; Resolver and Quota are optional together and disable the usage
// guard when absent.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metric.MetricsRegistry
	Resolver usage.SubscriptionResolver
	Quota    usage.QuotaChecker

	// NATS supplies an existing connection for the nats backend. When nil
	// and the backend is nats, the layer connects itself and owns the
	// connection lifecycle.
	NATS *natsclient.Client
}

// Layer is the assembled admission control stack
type Layer struct {
	Store       cache.Store
	Breaker     *breaker.Breaker
	RateLimiter *ratelimit.Limiter
	Idempotency *idempotency.Gate
	Usage       *usage.Guard
	Health      *health.Monitor

	logger   *slog.Logger
	nats     *natsclient.Client
	ownsNATS bool
}

// New assembles a layer from configuration and injected collaborators.
func New(ctx context.Context, cfg config.Config, deps Deps) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Layer{
		Health: health.NewMonitor(),
		logger: logger,
	}

	store, err := l.buildStore(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	l.Store = store

	brOpts := []breaker.Option{breaker.WithLogger(logger)}
	rlOpts := []ratelimit.Option{ratelimit.WithLogger(logger)}
	if deps.Metrics != nil {
		brOpts = append(brOpts, breaker.WithMetrics(deps.Metrics))
		rlOpts = append(rlOpts, ratelimit.WithMetrics(deps.Metrics))
	}

	l.Breaker, err = breaker.New(cache.Namespaced(store, nsCircuit), cfg.Breaker, brOpts...)
	if err != nil {
		return nil, err
	}

	l.RateLimiter, err = ratelimit.New(cache.Namespaced(store, nsRateLimit), ratelimit.Options{
		Window:      cfg.RateLimit.Window,
		MaxRequests: cfg.RateLimit.MaxRequests,
	}, rlOpts...)
	if err != nil {
		return nil, err
	}

	l.Idempotency, err = idempotency.New(cache.Namespaced(store, nsIdem),
		cfg.Idempotency.Retention, idempotency.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if deps.Resolver != nil && deps.Quota != nil {
		l.Usage, err = usage.New(deps.Resolver, deps.Quota, usage.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	}

	l.Health.UpdateHealthy("store", "backend "+store.Stats().Backend)
	return l, nil
}

// buildStore creates the backing store for the resolved backend.
func (l *Layer) buildStore(ctx context.Context, cfg config.Config, deps Deps) (cache.Store, error) {
	storeOpts := []cache.Option{cache.WithLogger(l.logger)}
	if deps.Metrics != nil {
		storeOpts = append(storeOpts, cache.WithMetrics(deps.Metrics))
	}

	switch cfg.ResolvedBackend() {
	case config.BackendMemory:
		return cache.NewMemory(ctx, storeOpts...)

	case config.BackendNATS:
		client := deps.NATS
		if client == nil {
			var err error
			client, err = natsclient.Connect(ctx, cfg.NATS.URL, natsclient.WithLogger(l.logger))
			if err != nil {
				return nil, err
			}
			l.nats = client
			l.ownsNATS = true
		}
		kv, err := client.EnsureBucket(ctx, cfg.NATS.Bucket)
		if err != nil {
			if l.ownsNATS {
				_ = l.nats.Close()
			}
			return nil, err
		}
		return cache.NewNATS(kv, storeOpts...)

	default:
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "sentinel", "buildStore",
			"unknown backend "+cfg.ResolvedBackend())
	}
}

// Close releases the store and any owned connections.
func (l *Layer) Close() error {
	err := l.Store.Close()
	if l.ownsNATS {
		if cerr := l.nats.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// RefreshProviderHealth folds current circuit states into the health monitor.
func (l *Layer) RefreshProviderHealth(ctx context.Context) {
	for _, ps := range l.Breaker.GetProviderStatuses(ctx) {
		l.Health.RecordProviderStatus(ps)
	}
}

// GuardRequest describes one inbound request to admit
type GuardRequest struct {
	// Identity buckets the rate limit, resolved by the caller or
	// ratelimit.IdentityFromRequest
	Identity string

	// Route buckets the rate limit, typically method + path
	Route string

	// Principal resolves the billing subscription; empty skips the usage
	// guard
	Principal string

	// Provider is the upstream this request will call; empty skips the
	// breaker
	Provider string

	// IdempotencyKey and Body drive dedup for mutating requests; an empty
	// key skips the gate
	IdempotencyKey string
	Body           []byte
}

// GuardDecision is the combined admission verdict
type GuardDecision struct {
	// Allowed reports whether the request may proceed
	Allowed bool

	// StatusCode is the HTTP status to return when not allowed
	StatusCode int

	// Reason explains a denial
	Reason string

	// Degraded reports that at least one check failed open
	Degraded bool

	RateLimit   ratelimit.Result
	Idempotency idempotency.Outcome
	Usage       usage.UsageCheckResult
	Breaker     breaker.Decision
}

// Guard runs the admission pipeline: rate limit, idempotency, usage quota,
// then circuit breaker. The first denial wins; later checks are skipped so a
// denied request never consumes quota or claims an idempotency slot it will
// not use.
func (l *Layer) Guard(ctx context.Context, req GuardRequest) GuardDecision {
	decision := GuardDecision{Allowed: true, Breaker: breaker.DecisionAllowed}

	decision.RateLimit = l.RateLimiter.Check(ctx, req.Identity, req.Route, ratelimit.Options{})
	decision.Degraded = decision.Degraded || decision.RateLimit.FailedOpen
	if !decision.RateLimit.Allowed {
		decision.Allowed = false
		decision.StatusCode = http.StatusTooManyRequests
		decision.Reason = "rate limit exceeded"
		return decision
	}

	if req.IdempotencyKey != "" {
		decision.Idempotency = l.Idempotency.Check(ctx, req.IdempotencyKey, req.Body)
		decision.Degraded = decision.Degraded || decision.Idempotency.FailedOpen
		switch decision.Idempotency.Kind {
		case idempotency.OutcomeConflict:
			decision.Allowed = false
			decision.StatusCode = http.StatusConflict
			decision.Reason = "idempotency key was used with a different request body"
			return decision
		case idempotency.OutcomeInFlight:
			decision.Allowed = false
			decision.StatusCode = http.StatusConflict
			decision.Reason = "a request with this idempotency key is still processing"
			return decision
		case idempotency.OutcomeReplay:
			// Replay is an allow: the caller serves the snapshot without
			// touching quota or the upstream
			return decision
		}
	}

	if l.Usage != nil && req.Principal != "" {
		decision.Usage = l.Usage.Check(ctx, req.Principal)
		decision.Degraded = decision.Degraded || decision.Usage.FailedOpen
		if !decision.Usage.Allowed {
			decision.Allowed = false
			decision.StatusCode = http.StatusPaymentRequired
			decision.Reason = decision.Usage.Reason
			l.releaseClaim(ctx, req, decision.Idempotency)
			return decision
		}
	}

	if req.Provider != "" {
		decision.Breaker = l.Breaker.CanMakeRequest(ctx, req.Provider)
		if decision.Breaker == breaker.DecisionBlocked {
			decision.Allowed = false
			decision.StatusCode = http.StatusServiceUnavailable
			decision.Reason = "provider circuit open"
			l.releaseClaim(ctx, req, decision.Idempotency)
			return decision
		}
	}

	return decision
}

// releaseClaim frees an idempotency slot taken earlier in the pipeline when
// a later check denies the request. Only a claim this request actually took
// may be released: a failed-open verdict took none, and deleting the key
// then would drop a claim legitimately held by another request.
func (l *Layer) releaseClaim(ctx context.Context, req GuardRequest, outcome idempotency.Outcome) {
	if req.IdempotencyKey == "" || outcome.FailedOpen || outcome.Kind != idempotency.OutcomeProceed {
		return
	}
	l.Idempotency.Release(ctx, req.IdempotencyKey)
}

// Finish records the outcome of an admitted request: the upstream result
// feeds the circuit breaker, and a successful response is snapshotted for
// idempotent replay. Callers pass the decision Guard returned and the
// snapshot only for keyed requests that produced a replayable success.
// When the admission check failed open this request holds no claim, so
// nothing is recorded or released for its key.
func (l *Layer) Finish(ctx context.Context, req GuardRequest, decision GuardDecision, callErr error, snapshot *idempotency.Snapshot) {
	if req.Provider != "" {
		if callErr != nil {
			l.Breaker.RecordFailure(ctx, req.Provider, breaker.CodeForError(callErr))
		} else {
			l.Breaker.RecordSuccess(ctx, req.Provider)
		}
	}

	if req.IdempotencyKey == "" || decision.Idempotency.FailedOpen {
		return
	}
	if snapshot != nil {
		l.Idempotency.RecordResponse(ctx, req.IdempotencyKey, *snapshot)
	} else {
		l.Idempotency.Release(ctx, req.IdempotencyKey)
	}
}
