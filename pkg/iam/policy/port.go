package policy

import (
	"context"
	"time"
)

// Store persists the single policy Document under a fixed key.
type Store interface {
	// Get returns the current document, or (nil, nil) if none has ever
	// been written — Engine.Get initializes it to defaults on that path.
	Get(ctx context.Context) (*Document, error)
	Put(ctx context.Context, doc Document) error
}

// AutoBanStore tracks per-IP failed-login counters and auto-ban entries.
type AutoBanStore interface {
	// IncrementFailedLogin increments ip's failed-login counter (TTL
	// counterTTL on first increment) and returns the post-increment count.
	IncrementFailedLogin(ctx context.Context, ip string, counterTTL time.Duration) (int, error)

	// ResetFailedLogin clears ip's counter (called on a successful login).
	ResetFailedLogin(ctx context.Context, ip string) error

	// Ban inserts an auto-ban entry for ip lasting duration.
	Ban(ctx context.Context, ip string, duration time.Duration) error

	// IsBanned reports whether ip currently serves an auto-ban, and until when.
	IsBanned(ctx context.Context, ip string) (banned bool, until time.Time, err error)
}
