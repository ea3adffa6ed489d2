// Package cache provides the shared key-value store abstraction every
// admission primitive is built on: a per-process in-memory backend for local
// and test execution, and a NATS JetStream KV backend shared across
// processes. Consumers never use a raw store directly; each one constructs a
// namespaced view so keys cannot collide.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/sentinel/errors"
)

// Store is the uniform contract over a key space. Backends report
// infrastructure failures as transient errors together with a degraded
// default (a read error looks like a miss, a write error like a no-op), so
// callers can fail open without crashing and still observe that they did.
type Store interface {
	// Get retrieves a value by key. Absence is (nil, false, nil), not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent atomically creates the key only if it does not exist (or
	// only exists expired). Returns true if this caller created it. This is
	// the single mutual-exclusion primitive in the layer.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// InvalidatePrefix removes every key starting with prefix.
	InvalidatePrefix(ctx context.Context, prefix string) error

	// Stats returns a snapshot of store statistics.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Stats is a point-in-time snapshot of store statistics.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Sets    int64  `json:"sets"`
	Deletes int64  `json:"deletes"`
	Size    int64  `json:"size"`
	Backend string `json:"backend"`
}

// validateKey validates a cache key for basic requirements.
// Returns a classified error if the key is invalid.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(fmt.Errorf("empty key"), "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
