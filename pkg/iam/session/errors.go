package session

import "github.com/manifesto-gateway/core/pkg/errx"

var sessionErrors = errx.NewRegistry("SESSION")

var (
	codeNotFound        = sessionErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "session not found")
	codeMalformedRecord = sessionErrors.Register("MALFORMED_RECORD", errx.TypeInternal, 500, "session record failed to decode")
)

// ErrNotFound reports that a session id does not exist.
func ErrNotFound() *errx.Error { return sessionErrors.New(codeNotFound) }

// ErrMalformedRecord reports a structurally invalid cached session entry.
// A malformed entry is rejected outright — it is never evaluated as
// code, only decoded as JSON.
func ErrMalformedRecord(cause error) *errx.Error {
	return sessionErrors.NewWithCause(codeMalformedRecord, cause)
}
