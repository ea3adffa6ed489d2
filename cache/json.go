package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/c360/sentinel/errors"
)

// GetJSON retrieves a key and unmarshals it into T. Absence is
// (zero, false, nil). An undecodable value is reported as invalid so callers
// can decide whether to drop or fail open.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var zero T

	data, found, err := store.Get(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, errors.WrapInvalid(err, "cache", "GetJSON", "decode "+key)
	}
	return value, true, nil
}

// SetJSON marshals value and stores it under key with optional TTL.
func SetJSON[T any](ctx context.Context, store Store, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "cache", "SetJSON", "encode "+key)
	}
	return store.Set(ctx, key, data, ttl)
}

// SetJSONIfAbsent marshals value and stores it only if key is absent,
// reporting whether this call created the entry.
func SetJSONIfAbsent[T any](ctx context.Context, store Store, key string, value T, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, errors.WrapInvalid(err, "cache", "SetJSONIfAbsent", "encode "+key)
	}
	return store.SetIfAbsent(ctx, key, data, ttl)
}
