// Package policyredis backs policy.Store and policy.AutoBanStore with
// Redis: the policy document lives under one fixed key, auto-ban counters
// use INCR+EXPIRE (mirroring wisbric-nightowl's login rate limiter), and
// ban entries are plain keys whose TTL doubles as the unban deadline.
package policyredis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/policy"
)

const documentKey = "policy:document"

func failedLoginKey(ip string) string { return "policy:failed_login:" + ip }
func autoBanKey(ip string) string     { return "policy:auto_ban:" + ip }

// Store implements policy.Store over a redis.Client.
type Store struct{ rdb *redis.Client }

// NewStore builds a Store.
func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Get returns (nil, nil) when no document has ever been written.
func (s *Store) Get(ctx context.Context) (*policy.Document, error) {
	data, err := s.rdb.Get(ctx, documentKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errx.Wrap(err, "failed to fetch policy document", errx.TypeInternal)
	}
	var doc policy.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errx.Wrap(err, "failed to decode policy document", errx.TypeInternal)
	}
	return &doc, nil
}

// Put persists doc under the fixed key, with no expiry.
func (s *Store) Put(ctx context.Context, doc policy.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errx.Wrap(err, "failed to encode policy document", errx.TypeInternal)
	}
	if err := s.rdb.Set(ctx, documentKey, data, 0).Err(); err != nil {
		return errx.Wrap(err, "failed to persist policy document", errx.TypeInternal)
	}
	return nil
}

// AutoBan implements policy.AutoBanStore over a redis.Client.
type AutoBan struct{ rdb *redis.Client }

// NewAutoBan builds an AutoBan store.
func NewAutoBan(rdb *redis.Client) *AutoBan { return &AutoBan{rdb: rdb} }

// IncrementFailedLogin mirrors wisbric-nightowl's RateLimiter.Record:
// INCR then EXPIRE-if-first, so the window resets counterTTL after the
// first failure rather than sliding on every failure.
func (a *AutoBan) IncrementFailedLogin(ctx context.Context, ip string, counterTTL time.Duration) (int, error) {
	key := failedLoginKey(ip)
	count, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, errx.Wrap(err, "failed to increment failed-login counter", errx.TypeInternal)
	}
	if count == 1 {
		a.rdb.Expire(ctx, key, counterTTL)
	}
	return int(count), nil
}

// ResetFailedLogin deletes ip's counter.
func (a *AutoBan) ResetFailedLogin(ctx context.Context, ip string) error {
	if err := a.rdb.Del(ctx, failedLoginKey(ip)).Err(); err != nil {
		return errx.Wrap(err, "failed to reset failed-login counter", errx.TypeInternal)
	}
	return nil
}

// Ban writes a ban marker whose TTL is the ban duration.
func (a *AutoBan) Ban(ctx context.Context, ip string, duration time.Duration) error {
	until := time.Now().UTC().Add(duration).Format(time.RFC3339)
	if err := a.rdb.Set(ctx, autoBanKey(ip), until, duration).Err(); err != nil {
		return errx.Wrap(err, "failed to insert auto-ban entry", errx.TypeInternal)
	}
	return nil
}

// IsBanned reports whether ip's ban marker is still present.
func (a *AutoBan) IsBanned(ctx context.Context, ip string) (bool, time.Time, error) {
	until, err := a.rdb.Get(ctx, autoBanKey(ip)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, errx.Wrap(err, "failed to check auto-ban entry", errx.TypeInternal)
	}
	parsed, parseErr := time.Parse(time.RFC3339, until)
	if parseErr != nil {
		return true, time.Time{}, nil
	}
	return true, parsed, nil
}
