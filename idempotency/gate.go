// Package idempotency implements request deduplication keyed by a
// client-supplied Idempotency-Key header. A key claims a single-flight slot
// on first use; retries of the same request replay the recorded response,
// while reuse of the key with a different body is rejected.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/sentinel/cache"
	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/pkg/failsafe"
)

// Record statuses
const (
	statusProcessing = "processing"
	statusDone       = "done"
)

// record is the persisted per-key dedup entry
type record struct {
	BodyHash  string `json:"body_hash"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"` // unix millis
}

// Snapshot is a recorded handler response, replayed on retries
type Snapshot struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
}

// OutcomeKind classifies the verdict for one keyed request
type OutcomeKind int

const (
	// OutcomeProceed means the caller holds the claim and must execute the
	// request, then call RecordResponse or Release
	OutcomeProceed OutcomeKind = iota
	// OutcomeConflict means the key was reused with a different request body
	OutcomeConflict
	// OutcomeInFlight means the original request is still executing
	OutcomeInFlight
	// OutcomeReplay means a recorded response is available in Snapshot
	OutcomeReplay
)

// String returns the string representation of OutcomeKind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProceed:
		return "proceed"
	case OutcomeConflict:
		return "conflict"
	case OutcomeInFlight:
		return "in_flight"
	case OutcomeReplay:
		return "replay"
	default:
		return "unknown"
	}
}

// Outcome is the verdict for one keyed request
type Outcome struct {
	Kind OutcomeKind

	// Snapshot holds the recorded response when Kind is OutcomeReplay
	Snapshot *Snapshot

	// FailedOpen marks a verdict produced while the backing store was
	// unreachable; such verdicts always proceed
	FailedOpen bool
}

// Gate deduplicates requests by idempotency key and body hash
type Gate struct {
	store     cache.Store
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a gate over the given store. The store must be a namespaced
// view dedicated to idempotency records.
func New(store cache.Store, retention time.Duration, options ...Option) (*Gate, error) {
	if retention <= 0 {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "idempotency", "New", "retention must be positive")
	}

	opts := applyOptions(options...)

	return &Gate{
		store:     store,
		retention: retention,
		logger:    opts.logger,
		now:       opts.now,
	}, nil
}

func recordKey(key string) string   { return "rec:" + key }
func snapshotKey(key string) string { return "resp:" + key }

// bodyHash fingerprints the request body for key-reuse detection.
func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Check claims the single-flight slot for key, or reports why it cannot.
// The first caller for a key gets OutcomeProceed and owns the claim until it
// calls RecordResponse or Release. Retries with the same body get the
// recorded response once available. A key reused with a different body is a
// conflict regardless of the original request's progress.
//
// A storage failure produces OutcomeProceed with FailedOpen set; the request
// executes without dedup protection.
func (g *Gate) Check(ctx context.Context, key string, body []byte) Outcome {
	hash := bodyHash(body)
	rec := record{BodyHash: hash, Status: statusProcessing, CreatedAt: g.now().UnixMilli()}

	open := Outcome{Kind: OutcomeProceed, FailedOpen: true}

	outcome, _ := failsafe.Value(g.logger, "idempotency.Check", open, func() (Outcome, error) {
		won, err := cache.SetJSONIfAbsent(ctx, g.store, recordKey(key), rec, g.retention)
		if err != nil {
			return open, err
		}
		if won {
			return Outcome{Kind: OutcomeProceed}, nil
		}

		existing, found, err := cache.GetJSON[record](ctx, g.store, recordKey(key))
		if err != nil {
			return open, err
		}
		if !found {
			// Claim expired between SetIfAbsent and the read; treat as fresh
			return Outcome{Kind: OutcomeProceed}, nil
		}

		if existing.BodyHash != hash {
			return Outcome{Kind: OutcomeConflict}, nil
		}

		if existing.Status == statusProcessing {
			return Outcome{Kind: OutcomeInFlight}, nil
		}

		snapshot, found, err := cache.GetJSON[Snapshot](ctx, g.store, snapshotKey(key))
		if err != nil {
			return open, err
		}
		if !found {
			// Snapshot expired while the record survived; re-execute
			return Outcome{Kind: OutcomeProceed}, nil
		}
		return Outcome{Kind: OutcomeReplay, Snapshot: &snapshot}, nil
	})

	return outcome
}

// RecordResponse stores the handler response for replay and marks the key's
// record done. Both entries share the gate's retention.
func (g *Gate) RecordResponse(ctx context.Context, key string, snapshot Snapshot) {
	failsafe.Do(g.logger, "idempotency.RecordResponse", func() error {
		if err := cache.SetJSON(ctx, g.store, snapshotKey(key), snapshot, g.retention); err != nil {
			return err
		}
		rec := record{BodyHash: "", Status: statusDone, CreatedAt: g.now().UnixMilli()}
		// Preserve the original body hash so later retries still compare
		if existing, found, err := cache.GetJSON[record](ctx, g.store, recordKey(key)); err == nil && found {
			rec.BodyHash = existing.BodyHash
			rec.CreatedAt = existing.CreatedAt
		}
		return cache.SetJSON(ctx, g.store, recordKey(key), rec, g.retention)
	})
}

// Release abandons the claim for key, letting a retry execute the request
// again. Called when the handler did not produce a response worth replaying.
func (g *Gate) Release(ctx context.Context, key string) {
	failsafe.Do(g.logger, "idempotency.Release", func() error {
		return g.store.Delete(ctx, recordKey(key))
	})
}
