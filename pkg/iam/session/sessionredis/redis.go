// Package sessionredis backs session.Repository with Redis: one JSON blob
// per session id plus a per-user set of active session ids. Entries are
// decoded with encoding/json only — a cache value is data, never code —
// and a malformed entry is rejected rather than silently skipped.
package sessionredis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/session"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Repository implements session.Repository over a redis.Client.
type Repository struct {
	rdb *redis.Client
	ttl time.Duration // key TTL, reset on every Save
}

// NewRepository builds a Repository. ttl bounds how long a session's Redis
// key survives past its own ExpiresAt, as a backstop against orphaned keys
// if the cleanup sweep is not running.
func NewRepository(rdb *redis.Client, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Repository{rdb: rdb, ttl: ttl}
}

func sessionKey(id kernel.SessionID) string { return fmt.Sprintf("session:record:%s", id.String()) }
func userIndexKey(userID kernel.UserID) string {
	return fmt.Sprintf("session:user_index:%s", userID.String())
}
func activeSetKey() string { return "session:active" }

// Save persists s as a JSON blob whose key expires ttl after this call.
func (r *Repository) Save(ctx context.Context, s session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errx.Wrap(err, "failed to encode session record", errx.TypeInternal)
	}

	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, r.ttl)
	if s.IsActive() {
		pipe.SAdd(ctx, activeSetKey(), s.ID.String())
	} else {
		pipe.SRem(ctx, activeSetKey(), s.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errx.Wrap(err, "failed to persist session record", errx.TypeInternal)
	}
	return nil
}

// FindByID decodes the JSON blob at sessionKey(id). A structurally invalid
// value — the only thing a malicious or corrupted cache entry could ever
// produce here, since this is JSON, never eval'd code — is rejected with
// session.ErrMalformedRecord rather than being unmarshalled partway.
func (r *Repository) FindByID(ctx context.Context, id kernel.SessionID) (*session.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to fetch session record", errx.TypeInternal)
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, session.ErrMalformedRecord(err)
	}
	return &s, nil
}

// ActiveForUser returns the user's active session ids, oldest-open-first.
// SMEMBERS has no stable order, so this loads each candidate record to sort
// by OpenedAt — acceptable since MaxConcurrent bounds the set to a handful.
func (r *Repository) ActiveForUser(ctx context.Context, userID kernel.UserID) ([]kernel.SessionID, error) {
	members, err := r.rdb.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, errx.Wrap(err, "failed to list user session index", errx.TypeInternal)
	}

	type withTime struct {
		id kernel.SessionID
		at time.Time
	}
	candidates := make([]withTime, 0, len(members))
	for _, m := range members {
		id := kernel.NewSessionID(m)
		s, err := r.FindByID(ctx, id)
		if err != nil || s == nil || !s.IsActive() {
			continue
		}
		candidates = append(candidates, withTime{id: id, at: s.OpenedAt})
	}
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].at.Before(candidates[j-1].at); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	out := make([]kernel.SessionID, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out, nil
}

// AddToUserIndex adds id to userID's active-session set.
func (r *Repository) AddToUserIndex(ctx context.Context, userID kernel.UserID, id kernel.SessionID) error {
	if err := r.rdb.SAdd(ctx, userIndexKey(userID), id.String()).Err(); err != nil {
		return errx.Wrap(err, "failed to add session to user index", errx.TypeInternal)
	}
	return nil
}

// RemoveFromUserIndex removes id from userID's active-session set.
func (r *Repository) RemoveFromUserIndex(ctx context.Context, userID kernel.UserID, id kernel.SessionID) error {
	if err := r.rdb.SRem(ctx, userIndexKey(userID), id.String()).Err(); err != nil {
		return errx.Wrap(err, "failed to remove session from user index", errx.TypeInternal)
	}
	return nil
}

// AllActive returns every session id in the global active set, for the
// periodic cleanup sweep.
func (r *Repository) AllActive(ctx context.Context) ([]kernel.SessionID, error) {
	members, err := r.rdb.SMembers(ctx, activeSetKey()).Result()
	if err != nil {
		return nil, errx.Wrap(err, "failed to list global active-session set", errx.TypeInternal)
	}
	out := make([]kernel.SessionID, len(members))
	for i, m := range members {
		out[i] = kernel.NewSessionID(m)
	}
	return out, nil
}
