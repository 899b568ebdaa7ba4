package secretinfra

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// PostgresCredentialRepository is the PostgreSQL implementation of
// secret.CredentialRepository.
type PostgresCredentialRepository struct {
	db *sqlx.DB
}

// NewPostgresCredentialRepository builds a new repository.
func NewPostgresCredentialRepository(db *sqlx.DB) secret.CredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

// Save inserts or updates a ProviderCredential.
func (r *PostgresCredentialRepository) Save(ctx context.Context, cred secret.ProviderCredential) error {
	exists, err := r.credentialExists(ctx, cred.ID)
	if err != nil {
		return errx.Wrap(err, "failed to check credential existence", errx.TypeInternal)
	}
	if exists {
		return r.update(ctx, cred)
	}
	return r.create(ctx, cred)
}

func (r *PostgresCredentialRepository) create(ctx context.Context, cred secret.ProviderCredential) error {
	query := `
		INSERT INTO provider_credentials (
			id, tenant_id, provider, display_name, ciphertext,
			endpoint_override, model_config, is_active, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :provider, :display_name, :ciphertext,
			:endpoint_override, :model_config, :is_active, :created_at, :updated_at
		)`

	persisted, err := toPersistence(cred)
	if err != nil {
		return errx.Wrap(err, "failed to marshal model config", errx.TypeInternal)
	}

	_, err = r.db.NamedExecContext(ctx, query, persisted)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return secret.ErrDuplicateDisplay().WithDetail("display_name", cred.DisplayName)
		}
		return errx.Wrap(err, "failed to create credential", errx.TypeInternal).
			WithDetail("credential_id", cred.ID.String())
	}
	return nil
}

func (r *PostgresCredentialRepository) update(ctx context.Context, cred secret.ProviderCredential) error {
	query := `
		UPDATE provider_credentials SET
			display_name = :display_name,
			ciphertext = :ciphertext,
			endpoint_override = :endpoint_override,
			model_config = :model_config,
			is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`

	persisted, err := toPersistence(cred)
	if err != nil {
		return errx.Wrap(err, "failed to marshal model config", errx.TypeInternal)
	}

	result, err := r.db.NamedExecContext(ctx, query, persisted)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return secret.ErrDuplicateDisplay().WithDetail("display_name", cred.DisplayName)
		}
		return errx.Wrap(err, "failed to update credential", errx.TypeInternal).
			WithDetail("credential_id", cred.ID.String())
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on update", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return secret.ErrCredentialNotFound()
	}
	return nil
}

// FindByID returns nil, nil when the row exists under a different tenant —
// the caller must not be able to distinguish "not found" from "not yours".
func (r *PostgresCredentialRepository) FindByID(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) (*secret.ProviderCredential, error) {
	if tenantID.IsEmpty() {
		return nil, errx.Internal("tenant id must not be empty for a credential lookup")
	}
	var p credentialPersistence
	query := `SELECT * FROM provider_credentials WHERE id = $1 AND tenant_id = $2`
	err := r.db.GetContext(ctx, &p, query, id.String(), tenantID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find credential by id", errx.TypeInternal)
	}
	domain, err := toDomain(p)
	if err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal model config", errx.TypeInternal)
	}
	return &domain, nil
}

// FindByTenant lists every credential owned by tenantID, newest first.
func (r *PostgresCredentialRepository) FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*secret.ProviderCredential, error) {
	if tenantID.IsEmpty() {
		return nil, errx.Internal("tenant id must not be empty for a credential listing")
	}
	var rows []credentialPersistence
	query := `SELECT * FROM provider_credentials WHERE tenant_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, tenantID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find credentials by tenant", errx.TypeInternal)
	}
	return toDomainSlice(rows)
}

// FindByDisplayName looks up the (tenant, provider, display_name) uniqueness
// key used to pre-check before an insert that would otherwise 23505.
func (r *PostgresCredentialRepository) FindByDisplayName(ctx context.Context, tenantID kernel.TenantID, provider secret.Provider, displayName string) (*secret.ProviderCredential, error) {
	var p credentialPersistence
	query := `SELECT * FROM provider_credentials WHERE tenant_id = $1 AND provider = $2 AND display_name = $3`
	err := r.db.GetContext(ctx, &p, query, tenantID.String(), string(provider), displayName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to find credential by display name", errx.TypeInternal)
	}
	domain, err := toDomain(p)
	if err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal model config", errx.TypeInternal)
	}
	return &domain, nil
}

// Delete removes a credential scoped to tenantID.
func (r *PostgresCredentialRepository) Delete(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID) error {
	query := `DELETE FROM provider_credentials WHERE id = $1 AND tenant_id = $2`
	result, err := r.db.ExecContext(ctx, query, id.String(), tenantID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete credential", errx.TypeInternal)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on delete", errx.TypeInternal)
	}
	if rowsAffected == 0 {
		return secret.ErrCredentialNotFound()
	}
	return nil
}

// TouchLastUsed stamps now onto last_used_at for the least_used selection
// strategy. Best-effort: a failure here must never fail a selection, so
// errors are wrapped and returned, and credential.Selector discards them.
func (r *PostgresCredentialRepository) TouchLastUsed(ctx context.Context, id kernel.CredentialID, tenantID kernel.TenantID, now time.Time) error {
	query := `UPDATE provider_credentials SET last_used_at = $1 WHERE id = $2 AND tenant_id = $3`
	_, err := r.db.ExecContext(ctx, query, now, id.String(), tenantID.String())
	if err != nil {
		return errx.Wrap(err, "failed to touch credential last_used_at", errx.TypeInternal)
	}
	return nil
}

func (r *PostgresCredentialRepository) credentialExists(ctx context.Context, id kernel.CredentialID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM provider_credentials WHERE id = $1)`
	err := r.db.GetContext(ctx, &exists, query, id.String())
	if err != nil {
		return false, errx.Wrap(err, "failed to check credential existence", errx.TypeInternal)
	}
	return exists, nil
}

// credentialPersistence handles DB-specific column types the domain model
// keeps abstract (nullable endpoint override, JSON-encoded model config).
type credentialPersistence struct {
	ID               string         `db:"id"`
	TenantID         string         `db:"tenant_id"`
	Provider         string         `db:"provider"`
	DisplayName      string         `db:"display_name"`
	Ciphertext       []byte         `db:"ciphertext"`
	EndpointOverride sql.NullString `db:"endpoint_override"`
	ModelConfig      []byte         `db:"model_config"`
	IsActive         bool           `db:"is_active"`
	LastUsedAt       sql.NullTime   `db:"last_used_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toPersistence(cred secret.ProviderCredential) (credentialPersistence, error) {
	var modelConfigJSON []byte
	if cred.ModelConfig != nil {
		encoded, err := json.Marshal(cred.ModelConfig)
		if err != nil {
			return credentialPersistence{}, err
		}
		modelConfigJSON = encoded
	} else {
		modelConfigJSON = []byte("{}")
	}

	var endpoint sql.NullString
	if cred.EndpointOverride != nil {
		endpoint = sql.NullString{String: *cred.EndpointOverride, Valid: true}
	}

	var lastUsed sql.NullTime
	if cred.LastUsedAt != nil {
		lastUsed = sql.NullTime{Time: *cred.LastUsedAt, Valid: true}
	}

	return credentialPersistence{
		ID:               cred.ID.String(),
		TenantID:         cred.TenantID.String(),
		Provider:         string(cred.Provider),
		DisplayName:      cred.DisplayName,
		Ciphertext:       cred.Ciphertext,
		EndpointOverride: endpoint,
		ModelConfig:      modelConfigJSON,
		IsActive:         cred.IsActive,
		LastUsedAt:       lastUsed,
		CreatedAt:        cred.CreatedAt,
		UpdatedAt:        cred.UpdatedAt,
	}, nil
}

func toDomain(p credentialPersistence) (secret.ProviderCredential, error) {
	var modelConfig map[string]interface{}
	if len(p.ModelConfig) > 0 {
		if err := json.Unmarshal(p.ModelConfig, &modelConfig); err != nil {
			return secret.ProviderCredential{}, err
		}
	}

	var endpoint *string
	if p.EndpointOverride.Valid {
		endpoint = &p.EndpointOverride.String
	}

	var lastUsed *time.Time
	if p.LastUsedAt.Valid {
		lastUsed = &p.LastUsedAt.Time
	}

	return secret.ProviderCredential{
		ID:               kernel.NewCredentialID(p.ID),
		TenantID:         kernel.NewTenantID(p.TenantID),
		Provider:         secret.Provider(p.Provider),
		DisplayName:      p.DisplayName,
		Ciphertext:       p.Ciphertext,
		EndpointOverride: endpoint,
		ModelConfig:      modelConfig,
		IsActive:         p.IsActive,
		LastUsedAt:       lastUsed,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}, nil
}

func toDomainSlice(rows []credentialPersistence) ([]*secret.ProviderCredential, error) {
	out := make([]*secret.ProviderCredential, 0, len(rows))
	for _, p := range rows {
		d, err := toDomain(p)
		if err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}
