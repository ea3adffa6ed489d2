package cache

import (
	"sync/atomic"
)

// Statistics tracks store performance counters with atomic updates.
// Statistics are always collected - observability is not optional.
type Statistics struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	size    atomic.Int64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Hit records a cache hit
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a set operation
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records a delete operation
func (s *Statistics) Delete() { s.deletes.Add(1) }

// UpdateSize updates the current entry count
func (s *Statistics) UpdateSize(size int64) { s.size.Store(size) }

// Snapshot returns the current counters with the given backend label
func (s *Statistics) Snapshot(backend string) Stats {
	return Stats{
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Sets:    s.sets.Load(),
		Deletes: s.deletes.Load(),
		Size:    s.size.Load(),
		Backend: backend,
	}
}
