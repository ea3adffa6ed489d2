package idempotency

import (
	"bytes"
	"net/http"
)

// responseRecorder tees the handler's response so the middleware can both
// serve it and snapshot it for replay.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	body    bytes.Buffer
	written bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.written {
		r.status = status
		r.written = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.written = true
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// snapshot copies the captured response into a replayable form.
func (r *responseRecorder) snapshot() Snapshot {
	return Snapshot{
		StatusCode: r.status,
		Headers:    r.Header().Clone(),
		Body:       append([]byte(nil), r.body.Bytes()...),
	}
}
