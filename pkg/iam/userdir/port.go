package userdir

import (
	"context"
	"time"

	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Directory is the collaborator the orchestrator drives for identity
// lookup and password verification. It deliberately has no method
// returning a raw password hash — a hash-returning variant of this
// contract is a leak risk, so only the constant-time check exists.
type Directory interface {
	// Lookup resolves a username or email to a Profile. Callers fold a
	// not-found result into their invalid-credentials error to avoid
	// account enumeration.
	Lookup(ctx context.Context, usernameOrEmail string) (*Profile, error)

	// VerifyPassword performs a constant-time, adaptive-cost comparison of
	// candidate against the stored hash for userID. The hash itself never
	// crosses this interface.
	VerifyPassword(ctx context.Context, userID kernel.UserID, candidate string) (bool, error)

	// UpdateLastLogin is best-effort; callers log failures and do not
	// fail the login on this call's error.
	UpdateLastLogin(ctx context.Context, userID kernel.UserID, at time.Time) error
}
