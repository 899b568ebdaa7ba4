package secret

import "github.com/manifesto-gateway/core/pkg/errx"

var secretErrors = errx.NewRegistry("SECRET")

var (
	credentialNotFoundCode = secretErrors.Register("CREDENTIAL_NOT_FOUND", errx.TypeNotFound, 404, "credential not found")
	invalidProviderCode    = secretErrors.Register("INVALID_PROVIDER", errx.TypeValidation, 400, "unrecognized provider tag")
	missingTenantCode      = secretErrors.Register("MISSING_TENANT", errx.TypeValidation, 400, "tenant id is required")
	duplicateDisplayCode   = secretErrors.Register("DUPLICATE_DISPLAY_NAME", errx.TypeConflict, 409, "display name already in use for this tenant and provider")
)

// ErrCredentialNotFound reports that a credential id does not exist, or
// exists under a different tenant — the two cases are indistinguishable.
func ErrCredentialNotFound() *errx.Error { return secretErrors.New(credentialNotFoundCode) }

// ErrInvalidProvider reports an unrecognized provider tag.
func ErrInvalidProvider() *errx.Error { return secretErrors.New(invalidProviderCode) }

// ErrMissingTenant reports a call made without a tenant scope, which is a
// programming error per the store's tenant-join invariant.
func ErrMissingTenant() *errx.Error { return secretErrors.New(missingTenantCode) }

// ErrDuplicateDisplay reports a (tenant, provider, display_name) collision.
func ErrDuplicateDisplay() *errx.Error { return secretErrors.New(duplicateDisplayCode) }
