// Package userdirpg implements userdir.Directory over the platform's own
// relational store, for deployments that co-locate the user tables instead
// of running a separate directory service. Password verification uses
// bcrypt's constant-time comparison; the hash never leaves this package.
package userdirpg

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/userdir"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Directory implements userdir.Directory over a sqlx.DB.
type Directory struct {
	db *sqlx.DB
}

// NewDirectory builds a Directory.
func NewDirectory(db *sqlx.DB) *Directory {
	return &Directory{db: db}
}

type userRow struct {
	ID              string         `db:"id"`
	TenantID        string         `db:"tenant_id"`
	Email           string         `db:"email"`
	Username        string         `db:"username"`
	IsActive        bool           `db:"is_active"`
	RoleName        string         `db:"role_name"`
	RoleLabel       string         `db:"role_label"`
	RolePermissions pq.StringArray `db:"role_permissions"`
}

// Lookup resolves a username or email to a Profile, joining the user's role.
func (d *Directory) Lookup(ctx context.Context, usernameOrEmail string) (*userdir.Profile, error) {
	const query = `
		SELECT u.id, u.tenant_id, u.email, u.username, u.is_active,
		       r.name AS role_name, r.label AS role_label, r.permissions AS role_permissions
		FROM users u
		JOIN roles r ON r.name = u.role_name
		WHERE u.email = $1 OR u.username = $1`

	var row userRow
	if err := d.db.GetContext(ctx, &row, query, usernameOrEmail); err != nil {
		if err == sql.ErrNoRows {
			return nil, userdir.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to look up user", errx.TypeInternal)
	}

	return &userdir.Profile{
		UserID:   kernel.NewUserID(row.ID),
		TenantID: kernel.NewTenantID(row.TenantID),
		Email:    row.Email,
		Username: row.Username,
		Role: kernel.Role{
			Name:        row.RoleName,
			Label:       row.RoleLabel,
			Permissions: row.RolePermissions,
		},
		Active: row.IsActive,
	}, nil
}

// VerifyPassword compares candidate against the stored bcrypt hash. The
// comparison cost is bcrypt's own; a missing user burns an equivalent
// amount of work against a fixed dummy hash so timing does not reveal
// existence.
func (d *Directory) VerifyPassword(ctx context.Context, userID kernel.UserID, candidate string) (bool, error) {
	const query = `SELECT password_hash FROM users WHERE id = $1`

	var hash string
	err := d.db.GetContext(ctx, &hash, query, userID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(candidate))
			return false, nil
		}
		return false, errx.Wrap(err, "failed to fetch password hash", errx.TypeInternal)
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil, nil
}

// dummyHash is a bcrypt hash of an unguessable constant, compared against
// when the user does not exist to equalize timing.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("userdirpg-timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// HashPassword produces a bcrypt hash for user provisioning paths.
func HashPassword(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", errx.Wrap(err, "failed to hash password", errx.TypeInternal)
	}
	return string(h), nil
}

// UpdateLastLogin stamps last_login_at. Best-effort at the caller.
func (d *Directory) UpdateLastLogin(ctx context.Context, userID kernel.UserID, at time.Time) error {
	const query = `UPDATE users SET last_login_at = $1 WHERE id = $2`
	if _, err := d.db.ExecContext(ctx, query, at, userID.String()); err != nil {
		return errx.Wrap(err, "failed to update last_login_at", errx.TypeInternal)
	}
	return nil
}
