package idempotency

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// Header is the request header carrying the client-supplied key
const Header = "Idempotency-Key"

// ReplayHeader marks a response served from a recorded snapshot
const ReplayHeader = "X-Idempotent-Replay"

// Conflict response codes
const (
	CodeKeyReuse = "idempotency_key_reuse"
	CodeInFlight = "idempotency_in_flight"
)

type conflictResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeConflict(w http.ResponseWriter, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_ = json.NewEncoder(w).Encode(conflictResponse{Code: code, Error: msg})
}

// Middleware deduplicates requests carrying the Idempotency-Key header.
// Requests without the header pass through untouched. The handler response
// is snapshotted for replay only when it is a success (2xx); anything else
// releases the claim so the client can retry.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(Header)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		outcome := g.Check(r.Context(), key, body)
		switch outcome.Kind {
		case OutcomeConflict:
			writeConflict(w, CodeKeyReuse, "idempotency key was used with a different request body")
			return

		case OutcomeInFlight:
			writeConflict(w, CodeInFlight, "a request with this idempotency key is still processing")
			return

		case OutcomeReplay:
			for name, values := range outcome.Snapshot.Headers {
				for _, v := range values {
					w.Header().Add(name, v)
				}
			}
			w.Header().Set(ReplayHeader, "true")
			w.WriteHeader(outcome.Snapshot.StatusCode)
			_, _ = w.Write(outcome.Snapshot.Body)
			return
		}

		recorder := newResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		if outcome.FailedOpen {
			// No claim was taken; nothing to record or release
			return
		}

		if recorder.status >= 200 && recorder.status < 300 {
			g.RecordResponse(r.Context(), key, recorder.snapshot())
		} else {
			g.Release(r.Context(), key)
		}
	})
}
