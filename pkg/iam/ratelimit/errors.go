package ratelimit

import "github.com/manifesto-gateway/core/pkg/errx"

var rateLimitErrors = errx.NewRegistry("RATE_LIMIT")

var codeExceeded = rateLimitErrors.Register("EXCEEDED", errx.TypeValidation, 429, "rate limit exceeded")

// ErrExceeded reports a denied admission, carrying the denying scope and
// retry horizon as details so the gateway can set Retry-After.
func ErrExceeded(d Decision) *errx.Error {
	return rateLimitErrors.New(codeExceeded).
		WithDetail("scope", string(d.DeniedScope)).
		WithDetail("retry_after_seconds", int(d.RetryAfter.Seconds()))
}
