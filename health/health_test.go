package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/breaker"
)

func TestStatusPredicates(t *testing.T) {
	assert.True(t, NewHealthy("db", "ok").IsHealthy())
	assert.True(t, NewDegraded("cache", "slow").IsDegraded())
	assert.True(t, NewUnhealthy("api", "down").IsUnhealthy())
	assert.False(t, NewDegraded("cache", "slow").Healthy)
}

func TestAggregate(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		result := Aggregate("system", []Status{
			NewHealthy("a", ""),
			NewHealthy("b", ""),
		})
		assert.True(t, result.IsHealthy())
		assert.Len(t, result.SubStatuses, 2)
	})

	t.Run("degraded wins over healthy", func(t *testing.T) {
		result := Aggregate("system", []Status{
			NewHealthy("a", ""),
			NewDegraded("b", ""),
		})
		assert.True(t, result.IsDegraded())
	})

	t.Run("unhealthy wins over degraded", func(t *testing.T) {
		result := Aggregate("system", []Status{
			NewDegraded("a", ""),
			NewUnhealthy("b", ""),
		})
		assert.True(t, result.IsUnhealthy())
		assert.Contains(t, result.Message, "b")
	})

	t.Run("empty is healthy", func(t *testing.T) {
		assert.True(t, Aggregate("system", nil).IsHealthy())
	})
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("store", "connected")
	m.UpdateDegraded("breaker", "one circuit half-open")

	status, exists := m.Get("store")
	require.True(t, exists)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "store", status.Component)
	assert.False(t, status.Timestamp.IsZero())

	all := m.GetAll()
	assert.Len(t, all, 2)

	agg := m.AggregateHealth("sentinel")
	assert.True(t, agg.IsDegraded())
}

func TestMonitor_RecordProviderStatus(t *testing.T) {
	m := NewMonitor()

	m.RecordProviderStatus(breaker.ProviderStatus{
		Provider: "anthropic", Availability: breaker.AvailabilityUnavailable,
	})
	m.RecordProviderStatus(breaker.ProviderStatus{
		Provider: "openai", Availability: breaker.AvailabilityOperational,
	})

	status, exists := m.Get("provider:anthropic")
	require.True(t, exists)
	assert.True(t, status.IsUnhealthy())

	status, exists = m.Get("provider:openai")
	require.True(t, exists)
	assert.True(t, status.IsHealthy())
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("store", "connected")

	w := httptest.NewRecorder()
	m.Handler("sentinel").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "sentinel", status.Component)
	assert.True(t, status.Healthy)

	m.UpdateUnhealthy("store", "connection lost")
	w = httptest.NewRecorder()
	m.Handler("sentinel").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
