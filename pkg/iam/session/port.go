package session

import (
	"context"

	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Repository persists Session records, indexed by session id and by a
// per-user set of active session ids. Implementations must keep
// user-index membership equivalent to state=active.
type Repository interface {
	Save(ctx context.Context, s Session) error
	FindByID(ctx context.Context, id kernel.SessionID) (*Session, error)

	// ActiveForUser returns the active session ids for userID, oldest
	// first, used by the concurrency-cap eviction and SSO termination.
	ActiveForUser(ctx context.Context, userID kernel.UserID) ([]kernel.SessionID, error)

	// AddToUserIndex / RemoveFromUserIndex maintain the active-session set
	// for userID; callers keep these in lockstep with Session.State.
	AddToUserIndex(ctx context.Context, userID kernel.UserID, id kernel.SessionID) error
	RemoveFromUserIndex(ctx context.Context, userID kernel.UserID, id kernel.SessionID) error

	// AllActive iterates every session currently believed active, for the
	// periodic expiry sweep. Implementations may return a snapshot.
	AllActive(ctx context.Context) ([]kernel.SessionID, error)
}
