package token

import "github.com/manifesto-gateway/core/pkg/errx"

var tokenErrors = errx.NewRegistry("TOKEN")

var (
	codeExpired      = tokenErrors.Register("EXPIRED", errx.TypeAuthorization, 401, "token has expired")
	codeBadSignature = tokenErrors.Register("BAD_SIGNATURE", errx.TypeAuthorization, 401, "token signature is invalid")
	codeMalformed    = tokenErrors.Register("MALFORMED", errx.TypeValidation, 400, "token is malformed")
	codeWrongKind    = tokenErrors.Register("WRONG_KIND", errx.TypeAuthorization, 401, "token kind does not match expectation")
	codeRevoked      = tokenErrors.Register("REVOKED", errx.TypeAuthorization, 401, "token has been revoked")
	codeInvalidToken = tokenErrors.Register("INVALID_TOKEN", errx.TypeAuthorization, 401, "token issuer or audience is not recognized")
	codeOther        = tokenErrors.Register("OTHER", errx.TypeInternal, 500, "token verification failed")
)

// ErrExpired reports an expired token.
func ErrExpired() *errx.Error { return tokenErrors.New(codeExpired) }

// ErrBadSignature reports a signature that does not verify under the
// configured key material.
func ErrBadSignature() *errx.Error { return tokenErrors.New(codeBadSignature) }

// ErrMalformed reports a token that does not parse as a JWT, is signed with
// an algorithm other than the configured one, or fails to parse for any
// reason other than a bad signature.
func ErrMalformed() *errx.Error { return tokenErrors.New(codeMalformed) }

// ErrWrongKind reports an access token presented as refresh or vice versa.
func ErrWrongKind() *errx.Error { return tokenErrors.New(codeWrongKind) }

// ErrRevoked reports a token whose jti is present in the blacklist.
func ErrRevoked() *errx.Error { return tokenErrors.New(codeRevoked) }

// ErrInvalidToken reports a token whose issuer or audience does not match
// this service's configuration — signed correctly, but not for us.
func ErrInvalidToken() *errx.Error { return tokenErrors.New(codeInvalidToken) }

// ErrOther wraps any verification failure not covered by the above kinds.
func ErrOther(cause error) *errx.Error { return tokenErrors.NewWithCause(codeOther, cause) }
