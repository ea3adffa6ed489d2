package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// memoryEntry is a stored value with optional expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// isExpired checks whether the entry has expired.
func (e *memoryEntry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryStore is the per-process backend used for local and test execution.
// Expiry is enforced lazily on read, with a background sweep to keep the map
// from accumulating dead entries under write-heavy loads.
type memoryStore struct {
	mu      sync.RWMutex
	items   map[string]*memoryEntry
	stats   *Statistics   // ALWAYS initialized
	metrics *storeMetrics // Optional, if metrics enabled

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates an in-process store. The context bounds the lifetime of
// the background cleanup goroutine. Returns an error only if metrics
// registration fails when requested.
func NewMemory(ctx context.Context, options ...Option) (Store, error) {
	opts := applyOptions(options...)

	var metrics *storeMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newStoreMetrics(opts.metricsReg, "memory")
		if err != nil {
			return nil, err
		}
	}

	s := &memoryStore{
		items:    make(map[string]*memoryEntry),
		stats:    NewStatistics(),
		metrics:  metrics,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go s.cleanup(ctx, opts.cleanupInterval)

	return s, nil
}

// Get retrieves a value by key, enforcing expiry lazily.
func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := time.Now()

	s.mu.RLock()
	entry, exists := s.items[key]
	s.mu.RUnlock()

	if !exists {
		s.stats.Miss()
		s.metrics.recordMiss()
		return nil, false, nil
	}

	if entry.isExpired(now) {
		s.mu.Lock()
		// Double-check it's still there and still expired
		if current, stillExists := s.items[key]; stillExists && current.isExpired(now) {
			delete(s.items, key)
			s.stats.UpdateSize(int64(len(s.items)))
			s.metrics.updateSize(int64(len(s.items)))
		}
		s.mu.Unlock()

		s.stats.Miss()
		s.metrics.recordMiss()
		return nil, false, nil
	}

	s.stats.Hit()
	s.metrics.recordHit()
	return entry.value, true, nil
}

// Set stores a value with the given key and optional TTL.
func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = entry
	size := len(s.items)
	s.mu.Unlock()

	s.stats.Set()
	s.stats.UpdateSize(int64(size))
	s.metrics.recordSet()
	s.metrics.updateSize(int64(size))

	return nil
}

// SetIfAbsent atomically creates the key unless a live entry already exists.
func (s *memoryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	now := time.Now()
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	existing, exists := s.items[key]
	if exists && !existing.isExpired(now) {
		s.mu.Unlock()
		return false, nil
	}
	s.items[key] = entry
	size := len(s.items)
	s.mu.Unlock()

	s.stats.Set()
	s.stats.UpdateSize(int64(size))
	s.metrics.recordSet()
	s.metrics.updateSize(int64(size))

	return true, nil
}

// Delete removes an entry by key.
func (s *memoryStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	_, exists := s.items[key]
	if exists {
		delete(s.items, key)
	}
	size := len(s.items)
	s.mu.Unlock()

	if exists {
		s.stats.Delete()
		s.stats.UpdateSize(int64(size))
		s.metrics.recordDelete()
		s.metrics.updateSize(int64(size))
	}

	return nil
}

// InvalidatePrefix removes every entry whose key starts with prefix.
func (s *memoryStore) InvalidatePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	deleted := 0
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			delete(s.items, key)
			deleted++
		}
	}
	size := len(s.items)
	s.mu.Unlock()

	for i := 0; i < deleted; i++ {
		s.stats.Delete()
		s.metrics.recordDelete()
	}
	if deleted > 0 {
		s.stats.UpdateSize(int64(size))
		s.metrics.updateSize(int64(size))
	}

	return nil
}

// Stats returns a snapshot of store statistics.
func (s *memoryStore) Stats() Stats {
	return s.stats.Snapshot("memory")
}

// Close stops the background cleanup goroutine.
func (s *memoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.shutdown)
	})

	select {
	case <-s.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

// cleanup periodically removes expired entries.
func (s *memoryStore) cleanup(ctx context.Context, interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the store.
func (s *memoryStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	removed := 0
	for key, entry := range s.items {
		if entry.isExpired(now) {
			delete(s.items, key)
			removed++
		}
	}
	size := len(s.items)
	s.mu.Unlock()

	if removed > 0 {
		s.stats.UpdateSize(int64(size))
		s.metrics.updateSize(int64(size))
	}
}
