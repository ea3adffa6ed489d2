package breaker

import (
	"context"
	stderrors "errors"

	"github.com/c360/sentinel/errors"
)

// Error codes that feed the failure budget. Only infrastructure-class
// failures may trip a circuit; application-level errors (bad input, auth)
// must never influence circuit state.
const (
	CodeTimeout         = "TIMEOUT"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeProviderError   = "PROVIDER_ERROR"
)

// tripCodes is the fixed allow-list of codes that count toward the failure
// threshold.
var tripCodes = map[string]struct{}{
	CodeTimeout:         {},
	CodeConnectionError: {},
	CodeProviderError:   {},
}

// ShouldTrip reports whether an error code counts toward the failure budget.
func ShouldTrip(errorCode string) bool {
	_, ok := tripCodes[errorCode]
	return ok
}

// CodeForError maps an upstream call error onto a breaker error code.
// Returns "" for errors that should be invisible to the breaker.
func CodeForError(err error) string {
	if err == nil {
		return ""
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, errors.ErrConnectionTimeout) {
		return CodeTimeout
	}
	if errors.IsTransient(err) {
		return CodeConnectionError
	}
	return ""
}
