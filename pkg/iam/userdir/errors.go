package userdir

import "github.com/manifesto-gateway/core/pkg/errx"

var userdirErrors = errx.NewRegistry("USERDIR")

var (
	notFoundCode    = userdirErrors.Register("USER_NOT_FOUND", errx.TypeNotFound, 404, "user not found")
	unreachableCode = userdirErrors.Register("UNREACHABLE", errx.TypeInternal, 502, "user directory is unreachable")
)

// ErrNotFound reports that no user matched the lookup. The orchestrator
// folds this into InvalidCredentials before returning anything to the
// client.
func ErrNotFound() *errx.Error { return userdirErrors.New(notFoundCode) }

// ErrUnreachable wraps a transport-level failure talking to the directory.
func ErrUnreachable(cause error) *errx.Error {
	return userdirErrors.NewWithCause(unreachableCode, cause)
}
