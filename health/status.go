// Package health tracks component health for the admission layer and serves
// an aggregated JSON health surface.
package health

import (
	"time"
)

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate combines component statuses into one system status. Any
// unhealthy component makes the system unhealthy; otherwise any degraded
// component makes it degraded.
func Aggregate(systemName string, statuses []Status) Status {
	result := NewHealthy(systemName, "all components healthy")
	result.SubStatuses = statuses

	degraded := 0
	for _, s := range statuses {
		switch {
		case s.IsUnhealthy():
			result.Healthy = false
			result.Status = "unhealthy"
			result.Message = s.Component + " is unhealthy"
			return result
		case s.IsDegraded():
			degraded++
		}
	}

	if degraded > 0 {
		result.Healthy = false
		result.Status = "degraded"
		result.Message = "some components degraded"
	}
	return result
}
