// Package usage implements quota admission for metered requests. The guard
// consults the caller's subscription and an atomic server-side quota counter,
// and always fails open: a billing outage must never take request serving
// down with it.
package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/sentinel/errors"
)

// Denial reasons surfaced to callers
const (
	ReasonQuotaExhausted = "plan quota exhausted"
	ReasonSpendingCapHit = "spending cap reached"
)

// Plan describes the billing plan limits relevant to admission
type Plan struct {
	Name             string
	IncludedRequests int
	PayAsYouGo       bool
	SpendingCap      float64
}

// Subscription is the resolved billing context for one principal
type Subscription struct {
	OrganizationID     string
	Plan               Plan
	BillingPeriodStart time.Time
	BYOKKeyCount       int
}

// SubscriptionResolver looks up the billing context for a principal.
// Implemented by the billing service client.
type SubscriptionResolver interface {
	Resolve(ctx context.Context, principal string) (Subscription, error)
}

// QuotaChecker atomically checks and reserves one unit of usage.
// Implemented against server-side counters so concurrent requests cannot
// both consume the last unit.
type QuotaChecker interface {
	CheckAndReserve(ctx context.Context, orgID string, periodStart time.Time, included int, payAsYouGo bool, spendingCap float64) (allowed bool, isIncluded bool, currentCount int, err error)
}

// UsageCheckResult is the admission verdict for one metered request
type UsageCheckResult struct {
	Allowed        bool
	IsIncluded     bool
	CurrentCount   int
	OrganizationID string
	Plan           string
	IsBYOK         bool
	Reason         string
	FailedOpen     bool
}

// Guard admits or denies metered requests against the caller's quota
type Guard struct {
	resolver SubscriptionResolver
	quota    QuotaChecker
	logger   *slog.Logger

	// defaultPlan names the plan assumed when no subscription resolves
	defaultPlan string
}

// Option configures a Guard
type Option func(*Guard)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithDefaultPlan sets the plan name assumed for principals with no
// resolvable subscription
func WithDefaultPlan(name string) Option {
	return func(g *Guard) {
		g.defaultPlan = name
	}
}

// New creates a usage guard over the given collaborators.
func New(resolver SubscriptionResolver, quota QuotaChecker, options ...Option) (*Guard, error) {
	if resolver == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "usage", "New", "subscription resolver is required")
	}
	if quota == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "usage", "New", "quota checker is required")
	}

	g := &Guard{
		resolver:    resolver,
		quota:       quota,
		logger:      slog.Default(),
		defaultPlan: "free",
	}
	for _, option := range options {
		option(g)
	}
	return g, nil
}

// Check admits or denies one metered request for principal. A principal
// with no resolvable subscription is admitted on the default plan. BYOK
// subscriptions with at least one credential bypass metering entirely.
// Any collaborator failure produces an allowing verdict with FailedOpen set.
func (g *Guard) Check(ctx context.Context, principal string) UsageCheckResult {
	sub, err := g.resolver.Resolve(ctx, principal)
	if err != nil {
		g.logger.Warn("subscription lookup failed, admitting request",
			"principal", principal, "error", err)
		return UsageCheckResult{Allowed: true, Plan: g.defaultPlan, FailedOpen: true}
	}

	if sub.OrganizationID == "" {
		return UsageCheckResult{Allowed: true, Plan: g.defaultPlan, FailedOpen: true}
	}

	if sub.Plan.PayAsYouGo && sub.BYOKKeyCount > 0 {
		// Caller brings their own upstream credentials; nothing to meter
		return UsageCheckResult{
			Allowed:        true,
			OrganizationID: sub.OrganizationID,
			Plan:           sub.Plan.Name,
			IsBYOK:         true,
		}
	}

	allowed, isIncluded, count, err := g.quota.CheckAndReserve(ctx,
		sub.OrganizationID, sub.BillingPeriodStart,
		sub.Plan.IncludedRequests, sub.Plan.PayAsYouGo, sub.Plan.SpendingCap)
	if err != nil {
		g.logger.Warn("quota check failed, admitting request",
			"org_id", sub.OrganizationID, "error", err)
		return UsageCheckResult{
			Allowed:        true,
			OrganizationID: sub.OrganizationID,
			Plan:           sub.Plan.Name,
			FailedOpen:     true,
		}
	}

	result := UsageCheckResult{
		Allowed:        allowed,
		IsIncluded:     isIncluded,
		CurrentCount:   count,
		OrganizationID: sub.OrganizationID,
		Plan:           sub.Plan.Name,
	}

	if !allowed {
		if sub.Plan.PayAsYouGo {
			result.Reason = ReasonSpendingCapHit
		} else {
			result.Reason = ReasonQuotaExhausted
		}
		g.logger.Info("request denied by usage guard",
			"org_id", sub.OrganizationID, "plan", sub.Plan.Name,
			"reason", result.Reason, "count", count)
	}
	return result
}
