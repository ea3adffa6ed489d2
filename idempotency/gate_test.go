package idempotency

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/cache"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()

	store, err := cache.NewMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	g, err := New(cache.Namespaced(store, "idem"), 24*time.Hour)
	require.NoError(t, err)
	return g
}

func TestCheck_FirstUseProceeds(t *testing.T) {
	g := newTestGate(t)

	outcome := g.Check(context.Background(), "key-1", []byte(`{"model":"claude"}`))
	assert.Equal(t, OutcomeProceed, outcome.Kind)
	assert.False(t, outcome.FailedOpen)
}

func TestCheck_InFlight(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)
	body := []byte(`{"model":"claude"}`)

	require.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", body).Kind)

	// Same key + same body while the first request is still executing
	assert.Equal(t, OutcomeInFlight, g.Check(ctx, "key-1", body).Kind)
}

func TestCheck_BodyMismatchConflict(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)

	require.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", []byte(`{"a":1}`)).Kind)

	// Different body with the same key conflicts, both in flight and done
	assert.Equal(t, OutcomeConflict, g.Check(ctx, "key-1", []byte(`{"a":2}`)).Kind)

	g.RecordResponse(ctx, "key-1", Snapshot{StatusCode: 200, Body: []byte("ok")})
	assert.Equal(t, OutcomeConflict, g.Check(ctx, "key-1", []byte(`{"a":2}`)).Kind)
}

func TestCheck_Replay(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)
	body := []byte(`{"model":"claude"}`)

	require.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", body).Kind)

	snapshot := Snapshot{
		StatusCode: 201,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"id":"msg_123"}`),
	}
	g.RecordResponse(ctx, "key-1", snapshot)

	outcome := g.Check(ctx, "key-1", body)
	require.Equal(t, OutcomeReplay, outcome.Kind)
	require.NotNil(t, outcome.Snapshot)
	assert.Equal(t, 201, outcome.Snapshot.StatusCode)
	assert.Equal(t, []byte(`{"id":"msg_123"}`), outcome.Snapshot.Body)
	assert.Equal(t, "application/json", outcome.Snapshot.Headers.Get("Content-Type"))
}

func TestCheck_ExpiredSnapshotReExecutes(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)
	body := []byte(`{"model":"claude"}`)

	require.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", body).Kind)
	g.RecordResponse(ctx, "key-1", Snapshot{StatusCode: 200, Body: []byte("ok")})

	// Simulate the snapshot expiring while the record survives
	require.NoError(t, g.store.Delete(ctx, snapshotKey("key-1")))

	assert.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", body).Kind)
}

func TestRelease_AllowsRetry(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)
	body := []byte(`{"model":"claude"}`)

	require.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", body).Kind)
	g.Release(ctx, "key-1")

	assert.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", body).Kind)
}

func TestCheck_IndependentKeys(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(t)
	body := []byte(`{"model":"claude"}`)

	require.Equal(t, OutcomeProceed, g.Check(ctx, "key-1", body).Kind)
	assert.Equal(t, OutcomeProceed, g.Check(ctx, "key-2", body).Kind)
}

type failingStore struct{}

func (f *failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, fmt.Errorf("storage unavailable")
}
func (f *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return fmt.Errorf("storage unavailable")
}
func (f *failingStore) SetIfAbsent(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, fmt.Errorf("storage unavailable")
}
func (f *failingStore) Delete(context.Context, string) error { return fmt.Errorf("storage unavailable") }
func (f *failingStore) InvalidatePrefix(context.Context, string) error {
	return fmt.Errorf("storage unavailable")
}
func (f *failingStore) Stats() cache.Stats { return cache.Stats{Backend: "failing"} }
func (f *failingStore) Close() error       { return nil }

func TestCheck_FailOpen(t *testing.T) {
	g, err := New(&failingStore{}, 24*time.Hour)
	require.NoError(t, err)

	outcome := g.Check(context.Background(), "key-1", []byte("body"))
	assert.Equal(t, OutcomeProceed, outcome.Kind)
	assert.True(t, outcome.FailedOpen)
}

func TestNew_Validation(t *testing.T) {
	store, err := cache.NewMemory(context.Background())
	require.NoError(t, err)
	defer store.Close()

	_, err = New(store, 0)
	assert.Error(t, err)
}
