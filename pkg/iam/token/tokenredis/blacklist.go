// Package tokenredis backs token.Blacklist with plain Redis string keys,
// one per revoked jti, TTL'd to the token's own remaining lifetime so a
// revocation never outlives the token it revokes.
package tokenredis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manifesto-gateway/core/pkg/errx"
)

const keyPrefix = "token:blacklist:"

// Blacklist implements token.Blacklist over a redis.Client.
type Blacklist struct {
	rdb *redis.Client
}

// NewBlacklist builds a Blacklist.
func NewBlacklist(rdb *redis.Client) *Blacklist {
	return &Blacklist{rdb: rdb}
}

func (b *Blacklist) Put(ctx context.Context, jti string, reason string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.rdb.Set(ctx, keyPrefix+jti, reason, ttl).Err(); err != nil {
		return errx.Wrap(err, "failed to write token blacklist entry", errx.TypeInternal).WithDetail("jti", jti)
	}
	return nil
}

func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, errx.Wrap(err, "failed to check token blacklist entry", errx.TypeInternal).WithDetail("jti", jti)
	}
	return n > 0, nil
}

// PutIfAbsent uses SET NX to make the insert-if-missing check atomic,
// mirroring the single-use-gate requirement refresh rotation relies on.
func (b *Blacklist) PutIfAbsent(ctx context.Context, jti string, reason string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	inserted, err := b.rdb.SetNX(ctx, keyPrefix+jti, reason, ttl).Result()
	if err != nil {
		return false, errx.Wrap(err, "failed to evaluate atomic token blacklist insert", errx.TypeInternal).WithDetail("jti", jti)
	}
	return inserted, nil
}
