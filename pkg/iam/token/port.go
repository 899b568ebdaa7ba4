package token

import (
	"context"
	"time"
)

// Blacklist tracks revoked jtis with a TTL bounded by the token's own
// remaining lifetime. A jti absent from the blacklist is presumed valid.
type Blacklist interface {
	// Put revokes jti for ttl. ttl <= 0 is a no-op (the token has already
	// expired naturally; revoking it would add nothing).
	Put(ctx context.Context, jti string, reason string, ttl time.Duration) error

	// IsRevoked reports whether jti is present in the blacklist. On a
	// store-layer error it returns (false, err) — the caller, per the
	// fail-open policy, must treat that as "not revoked" while logging a
	// warning rather than rejecting the token.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// PutIfAbsent is the atomic single-use gate refresh rotation relies on:
	// it revokes jti only if it was not already present, reporting whether
	// this call was the one that inserted it. The second of two concurrent
	// callers observes inserted=false and must treat the token as already
	// revoked.
	PutIfAbsent(ctx context.Context, jti string, reason string, ttl time.Duration) (inserted bool, err error)
}
