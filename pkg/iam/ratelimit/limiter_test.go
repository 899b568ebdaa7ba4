package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit"
)

// fakeWindow is an in-memory ratelimit.Window keeping one counter per key.
// Eviction is ignored — tests drive it inside a single horizon.
type fakeWindow struct {
	mu       sync.Mutex
	counts   map[string]int
	seenKeys []string
	failWith error
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{counts: make(map[string]int)}
}

func (f *fakeWindow) Admit(ctx context.Context, key string, limit int, horizon time.Duration, now time.Time) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenKeys = append(f.seenKeys, key)
	if f.failWith != nil {
		return 0, false, f.failWith
	}
	if f.counts[key] >= limit {
		return f.counts[key], false, nil
	}
	f.counts[key]++
	return f.counts[key], true, nil
}

func limits(global, ip, user, endpoint int) map[ratelimit.Scope]ratelimit.Limit {
	out := make(map[ratelimit.Scope]ratelimit.Limit)
	if global > 0 {
		out[ratelimit.ScopeGlobal] = ratelimit.Limit{Requests: global, Window: time.Minute}
	}
	if ip > 0 {
		out[ratelimit.ScopeIP] = ratelimit.Limit{Requests: ip, Window: time.Minute}
	}
	if user > 0 {
		out[ratelimit.ScopeUser] = ratelimit.Limit{Requests: user, Window: time.Minute}
	}
	if endpoint > 0 {
		out[ratelimit.ScopeEndpoint] = ratelimit.Limit{Requests: endpoint, Window: time.Minute}
	}
	return out
}

func TestAdmitWithinLimits(t *testing.T) {
	w := newFakeWindow()
	l := ratelimit.NewLimiter(w, nil)

	decision := l.Admit(context.Background(), ratelimit.Request{
		IP:     "1.2.3.4",
		UserID: "user-1",
		Limits: limits(100, 10, 10, 0),
	})

	require.True(t, decision.Admitted)
	assert.Len(t, decision.Scopes, 3)
	assert.Equal(t, ratelimit.ScopeGlobal, decision.Scopes[0].Scope)
	assert.Equal(t, ratelimit.ScopeIP, decision.Scopes[1].Scope)
	assert.Equal(t, ratelimit.ScopeUser, decision.Scopes[2].Scope)
	assert.Equal(t, 9, decision.Scopes[1].Remaining)
}

func TestDenialShortCircuits(t *testing.T) {
	w := newFakeWindow()
	l := ratelimit.NewLimiter(w, nil)
	ctx := context.Background()

	req := ratelimit.Request{IP: "1.2.3.4", UserID: "user-1", Limits: limits(100, 2, 10, 0)}
	for i := 0; i < 2; i++ {
		require.True(t, l.Admit(ctx, req).Admitted)
	}

	w.seenKeys = nil
	decision := l.Admit(ctx, req)
	require.False(t, decision.Admitted)
	assert.Equal(t, ratelimit.ScopeIP, decision.DeniedScope)
	assert.Equal(t, time.Minute, decision.RetryAfter)

	// The user scope was never evaluated after the ip denial.
	assert.Len(t, w.seenKeys, 2)
}

func TestUserScopeSkippedWhenUnauthenticated(t *testing.T) {
	w := newFakeWindow()
	l := ratelimit.NewLimiter(w, nil)

	decision := l.Admit(context.Background(), ratelimit.Request{
		IP:     "1.2.3.4",
		Limits: limits(0, 10, 10, 0),
	})

	require.True(t, decision.Admitted)
	assert.Len(t, decision.Scopes, 1)
	assert.Equal(t, ratelimit.ScopeIP, decision.Scopes[0].Scope)
}

func TestAdmissionBoundHolds(t *testing.T) {
	w := newFakeWindow()
	l := ratelimit.NewLimiter(w, nil)
	ctx := context.Background()

	req := ratelimit.Request{IP: "1.2.3.4", Limits: limits(0, 5, 0, 0)}
	admitted := 0
	for i := 0; i < 20; i++ {
		if l.Admit(ctx, req).Admitted {
			admitted++
		}
	}
	assert.Equal(t, 5, admitted)
}

func TestFailOpenOnStoreError(t *testing.T) {
	w := newFakeWindow()
	w.failWith = errx.Internal("store is down")
	l := ratelimit.NewLimiter(w, nil)

	decision := l.Admit(context.Background(), ratelimit.Request{
		IP:     "1.2.3.4",
		Limits: limits(10, 10, 0, 0),
	})

	assert.True(t, decision.Admitted)
	assert.Empty(t, decision.Scopes)
}

func TestScopeKeysAreDistinctPerIdentity(t *testing.T) {
	w := newFakeWindow()
	l := ratelimit.NewLimiter(w, nil)
	ctx := context.Background()

	req := ratelimit.Request{IP: "1.2.3.4", Limits: limits(0, 1, 0, 0)}
	require.True(t, l.Admit(ctx, req).Admitted)
	require.False(t, l.Admit(ctx, req).Admitted)

	// A different IP carries its own bucket.
	other := ratelimit.Request{IP: "5.6.7.8", Limits: limits(0, 1, 0, 0)}
	assert.True(t, l.Admit(ctx, other).Admitted)
}

func TestEndpointScopeKeyedByUserOrIP(t *testing.T) {
	w := newFakeWindow()
	l := ratelimit.NewLimiter(w, nil)
	ctx := context.Background()

	anon := ratelimit.Request{IP: "1.2.3.4", Endpoint: "login", Limits: limits(0, 0, 0, 1)}
	require.True(t, l.Admit(ctx, anon).Admitted)
	require.False(t, l.Admit(ctx, anon).Admitted)

	// The same endpoint under an authenticated identity is a separate bucket.
	authed := ratelimit.Request{IP: "1.2.3.4", UserID: "user-1", Endpoint: "login", Limits: limits(0, 0, 0, 1)}
	assert.True(t, l.Admit(ctx, authed).Admitted)
}

func TestLimitsForAppliesRoleMultiplierAndOverride(t *testing.T) {
	defaults := limits(100, 10, 10, 0)
	override := &ratelimit.Limit{Requests: 3, Window: time.Minute}

	out := ratelimit.LimitsFor(defaults, override, "admin", map[string]float64{"admin": 3})

	assert.Equal(t, 30, out[ratelimit.ScopeIP].Requests)
	assert.Equal(t, 300, out[ratelimit.ScopeGlobal].Requests)
	assert.Equal(t, 3, out[ratelimit.ScopeEndpoint].Requests)

	// Unknown roles scale by 1.
	plain := ratelimit.LimitsFor(defaults, nil, "member", map[string]float64{"admin": 3})
	assert.Equal(t, 10, plain[ratelimit.ScopeIP].Requests)
}
