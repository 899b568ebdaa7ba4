package credential

import "github.com/manifesto-gateway/core/pkg/errx"

var credentialErrors = errx.NewRegistry("CREDENTIAL")

var (
	noneAvailableCode   = credentialErrors.Register("NONE_AVAILABLE", errx.TypeNotFound, 404, "no credential available for the requested strategy and filters")
	unknownStrategyCode = credentialErrors.Register("UNKNOWN_STRATEGY", errx.TypeValidation, 400, "unrecognized selection strategy")
)

// ErrNoneAvailable reports that a tenant has no credential matching the
// selection filters (active/provider list).
func ErrNoneAvailable() *errx.Error { return credentialErrors.New(noneAvailableCode) }

// ErrUnknownStrategy reports an unrecognized Strategy value.
func ErrUnknownStrategy(s Strategy) *errx.Error {
	return credentialErrors.New(unknownStrategyCode).WithDetail("strategy", string(s))
}
