package breaker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Availability is the user-facing health label derived from circuit state
type Availability string

// Availability labels surfaced on health endpoints
const (
	AvailabilityOperational Availability = "operational"
	AvailabilityDegraded    Availability = "degraded"
	AvailabilityUnavailable Availability = "unavailable"
)

// ProviderStatus is one provider's entry in the aggregate health surface
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        Status       `json:"status"`
	Availability  Availability `json:"availability"`
	Failures      int          `json:"failures"`
	LastFailureAt time.Time    `json:"last_failure_at,omitempty"`
	OpenedAt      time.Time    `json:"opened_at,omitempty"`
}

// availabilityFor maps circuit state onto the health label: half_open is
// surfaced as degraded, open as unavailable.
func availabilityFor(status Status) Availability {
	switch status {
	case StatusOpen:
		return AvailabilityUnavailable
	case StatusHalfOpen:
		return AvailabilityDegraded
	default:
		return AvailabilityOperational
	}
}

// GetProviderStatuses reads the circuit state of every provider in the
// configured roster concurrently.
func (b *Breaker) GetProviderStatuses(ctx context.Context) []ProviderStatus {
	statuses := make([]ProviderStatus, len(b.cfg.Providers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, provider := range b.cfg.Providers {
		i, provider := i, provider
		g.Go(func() error {
			state, _ := b.readState(gctx, provider)
			status := ProviderStatus{
				Provider:     provider,
				Status:       state.Status,
				Availability: availabilityFor(state.Status),
				Failures:     state.Failures,
			}
			if state.LastFailureAt > 0 {
				status.LastFailureAt = time.UnixMilli(state.LastFailureAt)
			}
			if state.OpenedAt > 0 {
				status.OpenedAt = time.UnixMilli(state.OpenedAt)
			}
			// Each goroutine writes a distinct index
			statuses[i] = status
			return nil
		})
	}

	// Reads never return errors (they fail open), so Wait cannot fail
	_ = g.Wait()
	return statuses
}

// AreAllProvidersDown reports whether every provider in the roster has an
// open circuit. An empty roster reports false.
func (b *Breaker) AreAllProvidersDown(ctx context.Context) bool {
	if len(b.cfg.Providers) == 0 {
		return false
	}
	for _, status := range b.GetProviderStatuses(ctx) {
		if status.Status != StatusOpen {
			return false
		}
	}
	return true
}
