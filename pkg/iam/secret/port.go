package secret

import (
	"context"
	"time"

	"github.com/manifesto-gateway/core/pkg/kernel"
)

// CredentialRepository persists ProviderCredential records. Every read
// joins on tenant id; implementations must not expose a credential's
// existence to a caller scoped to a different tenant.
type CredentialRepository interface {
	Save(ctx context.Context, cred ProviderCredential) error
	FindByID(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) (*ProviderCredential, error)
	FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*ProviderCredential, error)
	FindByDisplayName(ctx context.Context, tenantID kernel.TenantID, provider Provider, displayName string) (*ProviderCredential, error)
	Delete(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) error

	// TouchLastUsed stamps now onto a credential's LastUsedAt, feeding the selector's
	// least_used selection strategy. Best-effort: callers must not fail a
	// selection because this write failed.
	TouchLastUsed(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID, now time.Time) error
}
