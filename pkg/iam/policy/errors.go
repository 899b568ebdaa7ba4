package policy

import "github.com/manifesto-gateway/core/pkg/errx"

var policyErrors = errx.NewRegistry("POLICY")

var (
	codeOutOfBounds  = policyErrors.Register("OUT_OF_BOUNDS", errx.TypeValidation, 400, "policy update value out of bounds")
	codeIPDenied     = policyErrors.Register("IP_DENIED", errx.TypeAuthorization, 403, "ip address denied by policy")
	codeAutoBanned   = policyErrors.Register("AUTO_BANNED", errx.TypeAuthorization, 403, "ip address is auto-banned")
)

// ErrOutOfBounds reports a Document.Update field outside its validated range.
func ErrOutOfBounds(field string) *errx.Error {
	return policyErrors.New(codeOutOfBounds).WithDetail("field", field)
}

// ErrIPDenied reports an IP rejected by the deny-list, by a miss on an
// exclusive allow-list, or because it could not be parsed.
func ErrIPDenied(ip string) *errx.Error { return policyErrors.New(codeIPDenied).WithDetail("ip", ip) }

// ErrAutoBanned reports an IP currently serving an auto-ban.
func ErrAutoBanned(ip string, until string) *errx.Error {
	return policyErrors.New(codeAutoBanned).WithDetail("ip", ip).WithDetail("until", until)
}
