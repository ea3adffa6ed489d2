package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewMemory(context.Background(), WithCleanupInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error creating store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMemory_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Get on empty store
	if _, found, err := store.Get(ctx, "key1"); found || err != nil {
		t.Errorf("expected clean miss, got found=%v err=%v", found, err)
	}

	// Set and Get
	if err := store.Set(ctx, "key1", []byte("value1"), 0); err != nil {
		t.Fatalf("unexpected error setting key: %v", err)
	}
	value, found, err := store.Get(ctx, "key1")
	if err != nil || !found || string(value) != "value1" {
		t.Errorf("expected value1, got %q found=%v err=%v", value, found, err)
	}

	// Delete
	if err := store.Delete(ctx, "key1"); err != nil {
		t.Fatalf("unexpected error deleting key: %v", err)
	}
	if _, found, _ := store.Get(ctx, "key1"); found {
		t.Error("expected miss after deletion")
	}

	// Deleting an absent key is not an error
	if err := store.Delete(ctx, "key1"); err != nil {
		t.Errorf("unexpected error deleting absent key: %v", err)
	}
}

func TestMemory_EmptyKeyRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Set(ctx, "", []byte("v"), 0); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := store.SetIfAbsent(ctx, "", []byte("v"), 0); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Set(ctx, "ephemeral", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, found, _ := store.Get(ctx, "ephemeral"); !found {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(30 * time.Millisecond)

	// Expiry is enforced lazily on read
	if _, found, _ := store.Get(ctx, "ephemeral"); found {
		t.Error("expected miss after expiry")
	}
}

func TestMemory_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.SetIfAbsent(ctx, "lock", []byte("owner-a"), time.Minute)
	if err != nil || !created {
		t.Fatalf("expected first create to win, created=%v err=%v", created, err)
	}

	created, err = store.SetIfAbsent(ctx, "lock", []byte("owner-b"), time.Minute)
	if err != nil || created {
		t.Fatalf("expected second create to lose, created=%v err=%v", created, err)
	}

	// Holder value must be untouched
	value, _, _ := store.Get(ctx, "lock")
	if string(value) != "owner-a" {
		t.Errorf("expected owner-a, got %q", value)
	}
}

func TestMemory_SetIfAbsent_ExpiredHolder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.SetIfAbsent(ctx, "lock", []byte("owner-a"), 15*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	created, err := store.SetIfAbsent(ctx, "lock", []byte("owner-b"), time.Minute)
	if err != nil || !created {
		t.Fatalf("expected takeover of expired holder, created=%v err=%v", created, err)
	}
}

func TestMemory_SetIfAbsent_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const workers = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			created, err := store.SetIfAbsent(ctx, "lock", []byte(fmt.Sprintf("owner-%d", id)), time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if created {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

func TestMemory_InvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Set(ctx, "circuit:a", []byte("1"), 0)
	_ = store.Set(ctx, "circuit:b", []byte("2"), 0)
	_ = store.Set(ctx, "ratelimit:a", []byte("3"), 0)

	if err := store.InvalidatePrefix(ctx, "circuit:"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, found, _ := store.Get(ctx, "circuit:a"); found {
		t.Error("expected circuit:a to be invalidated")
	}
	if _, found, _ := store.Get(ctx, "circuit:b"); found {
		t.Error("expected circuit:b to be invalidated")
	}
	if _, found, _ := store.Get(ctx, "ratelimit:a"); !found {
		t.Error("expected ratelimit:a to survive")
	}
}

func TestMemory_BackgroundCleanup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 10; i++ {
		_ = store.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 10*time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)

	if size := store.Stats().Size; size != 0 {
		t.Errorf("expected cleanup to empty the store, size=%d", size)
	}
}

func TestMemory_Stats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Set(ctx, "k", []byte("v"), 0)
	_, _, _ = store.Get(ctx, "k")
	_, _, _ = store.Get(ctx, "absent")

	stats := store.Stats()
	if stats.Backend != "memory" {
		t.Errorf("expected backend memory, got %s", stats.Backend)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.Size != 1 {
		t.Errorf("expected size 1, got %d", stats.Size)
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				_ = store.Set(ctx, key, []byte("v"), time.Second)
				_, _, _ = store.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}
