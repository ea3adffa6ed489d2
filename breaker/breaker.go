// Package breaker implements a per-provider circuit breaker whose state
// lives in the shared cache store, so every process observes the same
// circuit. State transitions are lazy: open circuits are observed as
// half-open once the reset timeout elapses, with no background timer. The
// probe lock, an atomic create-if-absent key with a short TTL, guarantees
// that at most one caller treats a half-open circuit as a recovery test.
package breaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/sentinel/cache"
	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/pkg/failsafe"
)

// Status is the circuit state machine position
type Status string

// Circuit states
const (
	StatusClosed   Status = "closed"
	StatusOpen     Status = "open"
	StatusHalfOpen Status = "half_open"
)

// Decision is the admission verdict for one outbound call
type Decision int

const (
	// DecisionAllowed means the circuit is closed and the call may proceed
	DecisionAllowed Decision = iota
	// DecisionBlocked means the circuit is open (or another probe is in flight)
	DecisionBlocked
	// DecisionProbe means the caller holds the probe lock and must treat
	// this one call as the recovery test
	DecisionProbe
)

// String returns the string representation of Decision
func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionBlocked:
		return "blocked"
	case DecisionProbe:
		return "probe"
	default:
		return "unknown"
	}
}

// Config holds the tunable knobs of the breaker
type Config struct {
	// FailureThreshold is the number of infra-class failures that opens a
	// closed circuit
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long an open circuit stays open before reads
	// observe half_open
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// StateTTL bounds how long circuit state survives without traffic;
	// absence of state reads as closed
	StateTTL time.Duration `yaml:"state_ttl"`

	// ProbeLockTTL bounds how long a probe lock can be held, so a stuck
	// prober cannot pin a circuit in half_open forever
	ProbeLockTTL time.Duration `yaml:"probe_lock_ttl"`

	// ProbeTimeout bounds how long an active health probe may run before it
	// is recorded as a failure
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// Providers is the fixed roster used by the aggregate health reads
	Providers []string `yaml:"providers"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		StateTTL:         5 * time.Minute,
		ProbeLockTTL:     10 * time.Second,
		ProbeTimeout:     8 * time.Second,
	}
}

// Validate checks the configuration for programming errors
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "breaker", "Validate", "failure threshold must be positive")
	}
	if c.ResetTimeout <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "breaker", "Validate", "reset timeout must be positive")
	}
	if c.ProbeLockTTL <= 0 {
		return errors.WrapFatal(errors.ErrInvalidConfig, "breaker", "Validate", "probe lock ttl must be positive")
	}
	return nil
}

// circuitState is the persisted per-provider record. Absence reads as a
// closed circuit with zero failures.
type circuitState struct {
	Status        Status `json:"status"`
	Failures      int    `json:"failures"`
	LastFailureAt int64  `json:"last_failure_at,omitempty"` // unix millis
	LastSuccessAt int64  `json:"last_success_at,omitempty"`
	OpenedAt      int64  `json:"opened_at,omitempty"`
}

// Breaker decides whether outbound calls to a provider may proceed
type Breaker struct {
	store   cache.Store
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	metrics *breakerMetrics
}

// New creates a breaker over the given store. The store must be a namespaced
// view dedicated to circuit state.
func New(store cache.Store, cfg Config, options ...Option) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := applyOptions(options...)

	var metrics *breakerMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBreakerMetrics(opts.metricsReg)
		if err != nil {
			return nil, err
		}
	}

	return &Breaker{
		store:   store,
		cfg:     cfg,
		logger:  opts.logger,
		now:     opts.now,
		metrics: metrics,
	}, nil
}

func stateKey(provider string) string { return "state:" + provider }
func probeKey(provider string) string { return "probe:" + provider }

// readState loads the provider's circuit state, computing the lazy
// open to half_open transition at read time. Two readers at the exact reset
// boundary may disagree for one tick; the probe lock is the correctness
// mechanism, not the transition instant.
func (b *Breaker) readState(ctx context.Context, provider string) (circuitState, bool) {
	state, degraded := failsafe.Value(b.logger, "breaker.readState", circuitState{Status: StatusClosed},
		func() (circuitState, error) {
			s, found, err := cache.GetJSON[circuitState](ctx, b.store, stateKey(provider))
			if err != nil {
				return circuitState{Status: StatusClosed}, err
			}
			if !found {
				return circuitState{Status: StatusClosed}, nil
			}
			return s, nil
		})

	if state.Status == StatusOpen {
		openedAt := time.UnixMilli(state.OpenedAt)
		if b.now().Sub(openedAt) >= b.cfg.ResetTimeout {
			state.Status = StatusHalfOpen
		}
	}

	return state, degraded
}

// writeState persists the provider's circuit state with the state TTL.
func (b *Breaker) writeState(ctx context.Context, provider string, state circuitState) {
	failsafe.Do(b.logger, "breaker.writeState", func() error {
		return cache.SetJSON(ctx, b.store, stateKey(provider), state, b.cfg.StateTTL)
	})
	b.metrics.recordState(provider, state.Status)
}

// releaseProbeLock removes the provider's probe lock.
func (b *Breaker) releaseProbeLock(ctx context.Context, provider string) {
	failsafe.Do(b.logger, "breaker.releaseProbeLock", func() error {
		return b.store.Delete(ctx, probeKey(provider))
	})
}

// CanMakeRequest decides whether an outbound call to provider may proceed.
// A closed circuit allows, an open circuit blocks, and a half-open circuit
// grants DecisionProbe to exactly one caller, blocking the rest until the
// prober records a result or the probe lock expires.
func (b *Breaker) CanMakeRequest(ctx context.Context, provider string) Decision {
	state, _ := b.readState(ctx, provider)

	switch state.Status {
	case StatusClosed:
		return DecisionAllowed

	case StatusOpen:
		return DecisionBlocked

	case StatusHalfOpen:
		// Owner token recorded for diagnostics; the lock's existence is
		// what gates the probe
		owner := uuid.NewString()
		won, _ := failsafe.Value(b.logger, "breaker.probeLock", false, func() (bool, error) {
			return b.store.SetIfAbsent(ctx, probeKey(provider), []byte(owner), b.cfg.ProbeLockTTL)
		})
		if won {
			b.logger.Debug("granted recovery probe", "provider", provider, "owner", owner)
			b.metrics.recordProbe(provider)
			return DecisionProbe
		}
		return DecisionBlocked

	default:
		return DecisionAllowed
	}
}

// RecordSuccess unconditionally resets the provider's circuit to closed and
// releases the probe lock.
func (b *Breaker) RecordSuccess(ctx context.Context, provider string) {
	b.writeState(ctx, provider, circuitState{
		Status:        StatusClosed,
		Failures:      0,
		LastSuccessAt: b.now().UnixMilli(),
	})
	b.releaseProbeLock(ctx, provider)
}

// RecordFailure feeds one failed call into the circuit. Only infra-class
// error codes count; anything else is invisible to the breaker. A failure
// during half_open immediately reopens the circuit and releases the probe
// lock, so a failed probe never lingers.
func (b *Breaker) RecordFailure(ctx context.Context, provider string, errorCode string) {
	if !ShouldTrip(errorCode) {
		return
	}

	now := b.now()
	state, _ := b.readState(ctx, provider)
	state.Failures++
	state.LastFailureAt = now.UnixMilli()

	switch state.Status {
	case StatusHalfOpen:
		state.Status = StatusOpen
		state.OpenedAt = now.UnixMilli()
		b.writeState(ctx, provider, state)
		b.releaseProbeLock(ctx, provider)
		b.logger.Warn("recovery probe failed, circuit reopened", "provider", provider, "code", errorCode)
		b.metrics.recordTrip(provider)

	default:
		if state.Failures >= b.cfg.FailureThreshold && state.Status != StatusOpen {
			state.Status = StatusOpen
			state.OpenedAt = now.UnixMilli()
			b.logger.Warn("failure threshold reached, circuit opened",
				"provider", provider, "failures", state.Failures, "code", errorCode)
			b.metrics.recordTrip(provider)
		}
		b.writeState(ctx, provider, state)
	}
}
