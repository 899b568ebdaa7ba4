// Package ratelimitredis backs ratelimit.Window with a Redis sorted set,
// evaluated atomically through a server-side Lua script, closing the
// over-admission race a client-side pipeline would leave open.
package ratelimitredis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manifesto-gateway/core/pkg/errx"
)

// admitScript runs the five-step admission procedure as one atomic
// EVALSHA: evict stale members, count, admit-or-deny, insert, reset
// expiry to 2*horizon.
//
// KEYS[1] = sorted-set key
// ARGV[1] = now (unix seconds, float)
// ARGV[2] = horizon (seconds)
// ARGV[3] = limit
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local horizon = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - horizon)
local count = redis.call('ZCARD', key)

if count >= limit then
	return {count, 0}
end

redis.call('ZADD', key, now, tostring(now) .. '-' .. tostring(math.random()))
redis.call('EXPIRE', key, math.ceil(horizon * 2))
return {count + 1, 1}
`)

// Window implements ratelimit.Window over a redis.Client.
type Window struct {
	rdb *redis.Client
}

// NewWindow builds a Window.
func NewWindow(rdb *redis.Client) *Window {
	return &Window{rdb: rdb}
}

// Admit runs admitScript. A script failure is surfaced to the caller (the
// Limiter), which treats it as fail-open and admits with a logged
// warning rather than denying.
func (w *Window) Admit(ctx context.Context, key string, limit int, horizon time.Duration, now time.Time) (int, bool, error) {
	res, err := admitScript.Run(ctx, w.rdb, []string{key},
		float64(now.UnixNano())/1e9,
		horizon.Seconds(),
		limit,
	).Result()
	if err != nil {
		return 0, false, errx.Wrap(err, "failed to evaluate rate-limit admission script", errx.TypeInternal)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, false, errx.Internal("rate-limit admission script returned an unexpected shape")
	}
	count, _ := values[0].(int64)
	admitted, _ := values[1].(int64)
	return int(count), admitted == 1, nil
}
