package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sentinel/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, defaults Options) (*Limiter, *fakeClock) {
	t.Helper()

	store, err := cache.NewMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := newFakeClock()
	l, err := New(cache.Namespaced(store, "ratelimit"), defaults, WithClock(clock.Now))
	require.NoError(t, err)
	return l, clock
}

func TestCheck_WindowExhaustion(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, Options{Window: time.Second, MaxRequests: 3})

	// 3 requests fit, with remaining counting down
	for i, want := range []int{2, 1, 0} {
		result := l.Check(ctx, "10.0.0.1", "POST /v1/chat", Options{})
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, result.Limit)
		assert.Equal(t, want, result.Remaining)
		assert.Equal(t, i+1, result.Count)
		assert.False(t, result.FailedOpen)
	}

	// 4th in the same window is rejected; the raw count keeps growing past
	// the limit while remaining stays clamped
	result := l.Check(ctx, "10.0.0.1", "POST /v1/chat", Options{})
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 4, result.Count)

	result = l.Check(ctx, "10.0.0.1", "POST /v1/chat", Options{})
	assert.False(t, result.Allowed)
	assert.Equal(t, 5, result.Count)

	// A fresh window admits again
	clock.Advance(1100 * time.Millisecond)
	result = l.Check(ctx, "10.0.0.1", "POST /v1/chat", Options{})
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)
	assert.Equal(t, 1, result.Count)
}

func TestCheck_IndependentKeys(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Options{Window: time.Second, MaxRequests: 1})

	assert.True(t, l.Check(ctx, "alice", "GET /v1/models", Options{}).Allowed)
	assert.False(t, l.Check(ctx, "alice", "GET /v1/models", Options{}).Allowed)

	// Different identity and different route both have their own budget
	assert.True(t, l.Check(ctx, "bob", "GET /v1/models", Options{}).Allowed)
	assert.True(t, l.Check(ctx, "alice", "POST /v1/chat", Options{}).Allowed)
}

func TestCheck_PerCallOverrides(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Options{Window: time.Second, MaxRequests: 1})

	result := l.Check(ctx, "alice", "POST /v1/batch", Options{MaxRequests: 5})
	assert.True(t, result.Allowed)
	assert.Equal(t, 5, result.Limit)
	assert.Equal(t, 4, result.Remaining)
}

func TestCheck_ResetAt(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, Options{Window: time.Minute, MaxRequests: 10})

	start := clock.Now()
	result := l.Check(ctx, "alice", "GET /v1/models", Options{})
	assert.Equal(t, start.Add(time.Minute), result.ResetAt)

	// ResetAt is pinned to the window start, not the request time
	clock.Advance(10 * time.Second)
	result = l.Check(ctx, "alice", "GET /v1/models", Options{})
	assert.Equal(t, start.Add(time.Minute), result.ResetAt)
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
	l, err := New(&failingStore{}, Options{Window: time.Second, MaxRequests: 3})
	require.NoError(t, err)

	result := l.Check(context.Background(), "alice", "POST /v1/chat", Options{})
	assert.True(t, result.Allowed)
	assert.True(t, result.FailedOpen)
	assert.Equal(t, 3, result.Remaining)
}

func TestNew_Validation(t *testing.T) {
	store, err := cache.NewMemory(context.Background())
	require.NoError(t, err)
	defer store.Close()

	_, err = New(store, Options{Window: 0, MaxRequests: 3})
	assert.Error(t, err)

	_, err = New(store, Options{Window: time.Second, MaxRequests: 0})
	assert.Error(t, err)
}

func TestIdentityFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"api key wins", "sk-abc123", "1.2.3.4", "10.0.0.1:1234", "sk-abc123"},
		{"forwarded first hop", "", "1.2.3.4, 5.6.7.8", "10.0.0.1:1234", "1.2.3.4"},
		{"forwarded single hop", "", "1.2.3.4", "10.0.0.1:1234", "1.2.3.4"},
		{"remote addr", "", "", "10.0.0.1:1234", "10.0.0.1:1234"},
		{"nothing", "", "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.apiKey != "" {
				r.Header.Set("X-API-Key", tt.apiKey)
			}
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, IdentityFromRequest(r))
		})
	}
}

func TestSetHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SetHeaders(w, Result{
		Limit:     100,
		Remaining: 42,
		ResetAt:   time.Unix(1700000060, 0),
	})

	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "42", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000060", w.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(t, Options{Window: time.Minute, MaxRequests: 2})

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		r.Header.Set("X-API-Key", "sk-abc123")
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	r.Header.Set("X-API-Key", "sk-abc123")
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}
