// Package secret implements the Secret Store: field-granular encryption of
// tenant-owned AI provider credentials and tenant-scoped reads that never
// leak existence across tenants.
package secret

import (
	"time"

	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Provider tags the upstream AI vendor a credential targets.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderDeepseek  Provider = "deepseek"
	ProviderAzure     Provider = "azure"
	ProviderCustom    Provider = "custom"
)

// Valid reports whether p is one of the recognized provider tags.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderDeepseek, ProviderAzure, ProviderCustom:
		return true
	default:
		return false
	}
}

// ProviderCredential is a tenant-owned, encrypted-at-rest API credential for
// one upstream AI provider. The plaintext secret is never stored; Ciphertext
// holds the AES-256-GCM sealed blob produced by Cipher.Encrypt.
type ProviderCredential struct {
	ID             kernel.CredentialID    `db:"id" json:"id"`
	TenantID       kernel.TenantID        `db:"tenant_id" json:"tenant_id"`
	Provider       Provider               `db:"provider" json:"provider"`
	DisplayName    string                 `db:"display_name" json:"display_name"`
	Ciphertext     []byte                 `db:"ciphertext" json:"-"`
	EndpointOverride *string              `db:"endpoint_override" json:"endpoint_override,omitempty"`
	ModelConfig    map[string]interface{} `db:"-" json:"model_config,omitempty"`
	IsActive       bool                   `db:"is_active" json:"is_active"`
	// LastUsedAt is nil until the first successful selection;
	// the least_used strategy orders by descending idle time since this.
	LastUsedAt     *time.Time             `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at" json:"updated_at"`
}

// StoreRequest is the input to Store. Plaintext is zeroed by the caller's
// responsibility after the call returns; this package never retains it.
type StoreRequest struct {
	TenantID         kernel.TenantID
	Provider         Provider
	DisplayName      string
	Plaintext        string
	EndpointOverride *string
	ModelConfig      map[string]interface{}
}

// ListOptions is passed to ListByTenant. IncludePlaintext is accepted but
// not acted on: ListByTenant never decrypts, and the returned records
// carry only the opaque Ciphertext. Plaintext is obtained per credential
// through DecryptByID.
type ListOptions struct {
	IncludePlaintext bool
}
