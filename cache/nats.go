package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/natsclient"
)

// envelope is the wire form of a distributed entry. Expiry travels with the
// value and is enforced lazily on read, so every process observes the same
// lifetime regardless of which one wrote the entry.
type envelope struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"exp,omitempty"` // unix millis, 0 means no expiry
}

// expired checks whether the envelope has expired.
func (e *envelope) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && now.UnixMilli() > e.ExpiresAt
}

// natsStore is the JetStream KV backed store shared across processes.
// Every operation degrades on backend failure: a read error is reported as a
// miss and a write error as a no-op, each alongside a transient error so the
// caller can tell a healthy result from a degraded one.
type natsStore struct {
	kv      *natsclient.KVStore
	stats   *Statistics   // ALWAYS initialized
	metrics *storeMetrics // Optional, if metrics enabled
	logger  *slog.Logger
}

// NewNATS creates a distributed store over the given KV bucket. Returns an
// error only if metrics registration fails when requested.
func NewNATS(kv *natsclient.KVStore, options ...Option) (Store, error) {
	opts := applyOptions(options...)

	var metrics *storeMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newStoreMetrics(opts.metricsReg, "nats")
		if err != nil {
			return nil, err
		}
	}

	return &natsStore{
		kv:      kv,
		stats:   NewStatistics(),
		metrics: metrics,
		logger:  opts.logger,
	}, nil
}

const hexDigits = "0123456789abcdef"

// encodeKey maps arbitrary keys onto the NATS KV key alphabet. The mapping
// is injective, so distinct keys never collide in the bucket, and encodes
// byte by byte, so InvalidatePrefix keeps working on encoded keys.
// Namespace separators become '.', which cannot appear any other way; every
// other out-of-alphabet byte is hex-escaped behind '='.
func encodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '/':
			b.WriteByte(c)
		case c == ':':
			b.WriteByte('.')
		default:
			b.WriteByte('=')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}

// Get retrieves a value, enforcing envelope expiry lazily.
func (s *natsStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			s.stats.Miss()
			s.metrics.recordMiss()
			return nil, false, nil
		}
		s.stats.Miss()
		s.metrics.recordMiss()
		return nil, false, errors.WrapTransient(err, "natsStore", "Get", "kv read")
	}

	var env envelope
	if err := json.Unmarshal(entry.Value, &env); err != nil {
		// Corrupt entry: drop it and report a miss
		s.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		_ = s.kv.Delete(ctx, encodeKey(key))
		s.stats.Miss()
		s.metrics.recordMiss()
		return nil, false, nil
	}

	if env.expired(time.Now()) {
		// Best-effort removal; the next writer would overwrite it anyway
		_ = s.kv.Delete(ctx, encodeKey(key))
		s.stats.Miss()
		s.metrics.recordMiss()
		return nil, false, nil
	}

	s.stats.Hit()
	s.metrics.recordHit()
	return env.Value, true, nil
}

// Set stores a value with optional TTL.
func (s *natsStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(s.envelopeFor(value, ttl))
	if err != nil {
		return errors.WrapInvalid(err, "natsStore", "Set", "envelope encoding")
	}

	if _, err := s.kv.Put(ctx, encodeKey(key), data); err != nil {
		return errors.WrapTransient(err, "natsStore", "Set", "kv write")
	}

	s.stats.Set()
	s.metrics.recordSet()
	return nil
}

// SetIfAbsent atomically creates the key. An existing but expired envelope is
// taken over with a CAS update at its revision, which keeps the operation
// atomic: of N concurrent callers racing for an expired key, the revision
// check lets exactly one win.
func (s *natsStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	data, err := json.Marshal(s.envelopeFor(value, ttl))
	if err != nil {
		return false, errors.WrapInvalid(err, "natsStore", "SetIfAbsent", "envelope encoding")
	}

	encoded := encodeKey(key)
	if _, err := s.kv.Create(ctx, encoded, data); err == nil {
		s.stats.Set()
		s.metrics.recordSet()
		return true, nil
	} else if !natsclient.IsKVConflictError(err) {
		return false, errors.WrapTransient(err, "natsStore", "SetIfAbsent", "kv create")
	}

	// Key exists; check whether the holder expired
	existing, err := s.kv.Get(ctx, encoded)
	if err != nil {
		// Deleted between Create and Get means we lost the race
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "natsStore", "SetIfAbsent", "kv read")
	}

	var env envelope
	if err := json.Unmarshal(existing.Value, &env); err == nil && !env.expired(time.Now()) {
		return false, nil
	}

	// Expired (or undecodable) holder: take over at its revision
	if _, err := s.kv.Update(ctx, encoded, data, existing.Revision); err != nil {
		if natsclient.IsKVConflictError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "natsStore", "SetIfAbsent", "kv takeover")
	}

	s.stats.Set()
	s.metrics.recordSet()
	return true, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *natsStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := s.kv.Delete(ctx, encodeKey(key)); err != nil {
		return errors.WrapTransient(err, "natsStore", "Delete", "kv delete")
	}

	s.stats.Delete()
	s.metrics.recordDelete()
	return nil
}

// InvalidatePrefix scans bucket keys and deletes matches in bounded batches.
func (s *natsStore) InvalidatePrefix(ctx context.Context, prefix string) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return errors.WrapTransient(err, "natsStore", "InvalidatePrefix", "kv scan")
	}

	encoded := encodeKey(prefix)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, key := range keys {
		if !strings.HasPrefix(key, encoded) {
			continue
		}
		key := key
		g.Go(func() error {
			return s.kv.Delete(gctx, key)
		})
	}

	if err := g.Wait(); err != nil {
		return errors.WrapTransient(err, "natsStore", "InvalidatePrefix", "kv delete")
	}
	return nil
}

// Stats returns a snapshot of store statistics. Size is the approximate
// bucket value count, refreshed best-effort.
func (s *natsStore) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if count, err := s.kv.Count(ctx); err == nil {
		s.stats.UpdateSize(count)
		s.metrics.updateSize(count)
	}

	return s.stats.Snapshot("nats")
}

// Close is a no-op; the NATS connection is owned by the client that built
// the bucket.
func (s *natsStore) Close() error {
	return nil
}

// envelopeFor builds the wire envelope for a value with optional TTL.
func (s *natsStore) envelopeFor(value []byte, ttl time.Duration) envelope {
	env := envelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixMilli()
	}
	return env
}
