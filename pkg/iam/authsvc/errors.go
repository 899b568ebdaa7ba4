package authsvc

import "github.com/manifesto-gateway/core/pkg/errx"

var authErrors = errx.NewRegistry("AUTH")

var (
	invalidCredentialsCode = authErrors.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, 401, "invalid username or password")
	accountDisabledCode    = authErrors.Register("ACCOUNT_DISABLED", errx.TypeAuthorization, 403, "account is disabled")
	invalidTokenCode       = authErrors.Register("INVALID_TOKEN", errx.TypeAuthorization, 401, "invalid or expired token")
)

// ErrInvalidCredentials covers both "user not found" and "password
// mismatch" — the two are reported identically to avoid account
// enumeration.
func ErrInvalidCredentials() *errx.Error { return authErrors.New(invalidCredentialsCode) }

// ErrAccountDisabled reports a lookup that succeeded against an inactive account.
func ErrAccountDisabled() *errx.Error { return authErrors.New(accountDisabledCode) }

// ErrInvalidToken covers refresh failures: malformed, expired, revoked, or
// wrong-kind tokens are all reported identically at this layer.
func ErrInvalidToken() *errx.Error { return authErrors.New(invalidTokenCode) }
