// Package secretsrv composes secret.CredentialRepository and secret.Cipher
// into the Secret Store's three operations: store, fetch-by-id, list-by-tenant.
package secretsrv

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

type SecretService struct {
	repo   secret.CredentialRepository
	cipher *secret.Cipher
}

func NewSecretService(repo secret.CredentialRepository, cipher *secret.Cipher) *SecretService {
	return &SecretService{repo: repo, cipher: cipher}
}

// Store encrypts req.Plaintext and persists a new ProviderCredential. The
// plaintext itself is never written to the returned record or the store.
func (s *SecretService) Store(ctx context.Context, req secret.StoreRequest) (*secret.ProviderCredential, error) {
	if req.TenantID.IsEmpty() {
		return nil, secret.ErrMissingTenant()
	}
	if !req.Provider.Valid() {
		return nil, secret.ErrInvalidProvider().WithDetail("provider", string(req.Provider))
	}

	existing, err := s.repo.FindByDisplayName(ctx, req.TenantID, req.Provider, req.DisplayName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, secret.ErrDuplicateDisplay().WithDetail("display_name", req.DisplayName)
	}

	ciphertext, err := s.cipher.Encrypt(req.Plaintext)
	if err != nil {
		return nil, errx.Wrap(err, "failed to encrypt credential secret", errx.TypeInternal)
	}

	now := time.Now().UTC()
	cred := secret.ProviderCredential{
		ID:               kernel.NewCredentialID(uuid.NewString()),
		TenantID:         req.TenantID,
		Provider:         req.Provider,
		DisplayName:      req.DisplayName,
		Ciphertext:       ciphertext,
		EndpointOverride: req.EndpointOverride,
		ModelConfig:      req.ModelConfig,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Save(ctx, cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// FetchByID returns the credential scoped to tenantID, or
// secret.ErrCredentialNotFound if it does not exist or belongs to a
// different tenant — the two cases are indistinguishable to the caller.
func (s *SecretService) FetchByID(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) (*secret.ProviderCredential, error) {
	if tenantID.IsEmpty() {
		return nil, secret.ErrMissingTenant()
	}
	cred, err := s.repo.FindByID(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, secret.ErrCredentialNotFound()
	}
	return cred, nil
}

// DecryptByID fetches and decrypts in one call, for the internal worker
// path; the plaintext exists only in the caller's memory.
func (s *SecretService) DecryptByID(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) (string, error) {
	cred, err := s.FetchByID(ctx, id, tenantID)
	if err != nil {
		return "", err
	}
	plaintext, err := s.cipher.Decrypt(cred.Ciphertext)
	if err != nil {
		return "", errx.Wrap(err, "failed to decrypt credential secret", errx.TypeInternal).
			WithDetail("credential_id", id.String())
	}
	return plaintext, nil
}

// ListByTenant lists every credential owned by tenantID. Plaintext secrets
// are never attached to the returned records regardless of opts — callers
// that need plaintext must go through DecryptByID one credential at a time.
func (s *SecretService) ListByTenant(ctx context.Context, tenantID kernel.TenantID, opts secret.ListOptions) ([]*secret.ProviderCredential, error) {
	if tenantID.IsEmpty() {
		return nil, secret.ErrMissingTenant()
	}
	return s.repo.FindByTenant(ctx, tenantID)
}

// TouchLastUsed stamps now onto a credential's last-used timestamp. Used
// by the selector's least_used strategy after a selection; failures are
// returned to the caller, which treats the write as best-effort.
func (s *SecretService) TouchLastUsed(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID, now time.Time) error {
	return s.repo.TouchLastUsed(ctx, id, tenantID, now)
}

// Delete removes a tenant-scoped credential.
func (s *SecretService) Delete(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) error {
	if tenantID.IsEmpty() {
		return secret.ErrMissingTenant()
	}
	return s.repo.Delete(ctx, id, tenantID)
}
