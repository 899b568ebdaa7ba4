package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/token"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// fakeBlacklist is an in-memory token.Blacklist. failWith, when set, makes
// every call return that error so fail-open behavior can be exercised.
type fakeBlacklist struct {
	mu       sync.Mutex
	entries  map[string]string
	failWith error
}

func newFakeBlacklist() *fakeBlacklist {
	return &fakeBlacklist{entries: make(map[string]string)}
}

func (f *fakeBlacklist) Put(ctx context.Context, jti, reason string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if ttl > 0 {
		f.entries[jti] = reason
	}
	return nil
}

func (f *fakeBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return false, f.failWith
	}
	_, ok := f.entries[jti]
	return ok, nil
}

func (f *fakeBlacklist) PutIfAbsent(ctx context.Context, jti, reason string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return false, f.failWith
	}
	if _, ok := f.entries[jti]; ok {
		return false, nil
	}
	f.entries[jti] = reason
	return true, nil
}

func testSnapshot() token.UserSnapshot {
	return token.UserSnapshot{
		UserID:      kernel.NewUserID("user-1"),
		TenantID:    kernel.NewTenantID("tenant-1"),
		Email:       "alice@x.io",
		Role:        "member",
		Permissions: []string{"chat:*", "credentials:read"},
		Active:      true,
	}
}

func newTestService(t *testing.T) (*token.Service, *fakeBlacklist) {
	t.Helper()
	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm:       token.AlgorithmHMAC,
		HMACSecret:      "test-secret-key-0123456789abcdef",
		Issuer:          "gateway-core",
		Audience:        "gateway-core-api",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	bl := newFakeBlacklist()
	return token.NewService(signer, bl, nil), bl
}

func TestMintVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessJTI, pair.RefreshJTI)

	claims, err := svc.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, kernel.NewUserID("user-1"), claims.UserID)
	assert.Equal(t, kernel.NewTenantID("tenant-1"), claims.TenantID)
	assert.Equal(t, "alice@x.io", claims.Email)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, []string{"chat:*", "credentials:read"}, claims.Permissions)
	assert.Equal(t, token.KindAccess, claims.Kind)
	assert.Equal(t, pair.AccessJTI, claims.JTI)
	assert.True(t, claims.Active)

	refreshClaims, err := svc.Verify(ctx, pair.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, token.KindRefresh, refreshClaims.Kind)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, pair.AccessToken, token.KindRefresh)
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "TOKEN_WRONG_KIND", xerr.Code)

	_, err = svc.Verify(ctx, pair.RefreshToken, token.KindAccess)
	require.Error(t, err)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	svc, _ := newTestService(t)
	other, _ := newTestServiceWithSecret(t, "another-secret-key-fedcba98765432")
	ctx := context.Background()

	pair, err := other.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.Error(t, err)
}

func newTestServiceWithSecret(t *testing.T, secret string) (*token.Service, *fakeBlacklist) {
	t.Helper()
	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm:  token.AlgorithmHMAC,
		HMACSecret: secret,
		Issuer:     "gateway-core",
		Audience:   "gateway-core-api",
	})
	require.NoError(t, err)
	bl := newFakeBlacklist()
	return token.NewService(signer, bl, nil), bl
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Same key, different issuer: the signature verifies but the token
	// was not minted for this service.
	foreignSigner, err := token.NewSigner(token.SignerConfig{
		Algorithm:  token.AlgorithmHMAC,
		HMACSecret: "test-secret-key-0123456789abcdef",
		Issuer:     "some-other-service",
		Audience:   "gateway-core-api",
	})
	require.NoError(t, err)
	foreign := token.NewService(foreignSigner, newFakeBlacklist(), nil)

	pair, err := foreign.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "TOKEN_INVALID_TOKEN", xerr.Code)
}

func TestVerifyRejectsForeignAudience(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	foreignSigner, err := token.NewSigner(token.SignerConfig{
		Algorithm:  token.AlgorithmHMAC,
		HMACSecret: "test-secret-key-0123456789abcdef",
		Issuer:     "gateway-core",
		Audience:   "some-other-api",
	})
	require.NoError(t, err)
	foreign := token.NewService(foreignSigner, newFakeBlacklist(), nil)

	pair, err := foreign.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "TOKEN_INVALID_TOKEN", xerr.Code)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Verify(context.Background(), "not-a-jwt", token.KindAccess)
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "TOKEN_MALFORMED", xerr.Code)
}

func TestRevocationIsMonotonic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	require.True(t, svc.Revoke(ctx, pair.AccessToken, "test"))

	for i := 0; i < 3; i++ {
		_, err = svc.Verify(ctx, pair.AccessToken, token.KindAccess)
		require.Error(t, err)
		xerr, ok := err.(*errx.Error)
		require.True(t, ok)
		assert.Equal(t, "TOKEN_REVOKED", xerr.Code)
	}

	// Revoking again stays a no-op success.
	assert.True(t, svc.Revoke(ctx, pair.AccessToken, "test"))
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm:  token.AlgorithmHMAC,
		HMACSecret: "test-secret-key-0123456789abcdef",
		Issuer:     "gateway-core",
		Audience:   "gateway-core-api",
	})
	require.NoError(t, err)
	svc := token.NewService(signer, newFakeBlacklist(), nil)

	signed, _, err := signer.Sign(testSnapshot(), token.KindAccess, "jti-expired", -time.Minute)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), signed, token.KindAccess)
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "TOKEN_EXPIRED", xerr.Code)

	// Revoking an already-expired token is a no-op success.
	assert.True(t, svc.Revoke(context.Background(), signed, "test"))
}

func TestRevokeGarbageTokenIsNoOpSuccess(t *testing.T) {
	svc, _ := newTestService(t)
	assert.True(t, svc.Revoke(context.Background(), "garbage", "test"))
}

func TestVerifyFailsOpenOnBlacklistError(t *testing.T) {
	svc, bl := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	bl.failWith = errx.Internal("store is down")
	claims, err := svc.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, pair.AccessJTI, claims.JTI)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	newPair, err := svc.Refresh(ctx, pair.RefreshToken, testSnapshot())
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	// The rotated-away refresh token is spent.
	_, err = svc.Refresh(ctx, pair.RefreshToken, testSnapshot())
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "TOKEN_REVOKED", xerr.Code)

	// The freshly minted one still rotates.
	_, err = svc.Refresh(ctx, newPair.RefreshToken, testSnapshot())
	require.NoError(t, err)
}

func TestConcurrentRefreshAdmitsExactlyOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	successes := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Refresh(ctx, pair.RefreshToken, testSnapshot()); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken, testSnapshot())
	require.Error(t, err)
}

func TestRevokeAllFor(t *testing.T) {
	svc, bl := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	svc.RevokeAllFor(ctx, kernel.NewUserID("user-1"), []string{pair.AccessJTI, pair.RefreshJTI}, "terminated", time.Hour)

	revoked, err := bl.IsRevoked(ctx, pair.AccessJTI)
	require.NoError(t, err)
	assert.True(t, revoked)
	revoked, err = bl.IsRevoked(ctx, pair.RefreshJTI)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRSASignerRoundTrip(t *testing.T) {
	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm: token.AlgorithmRSA,
		Issuer:    "gateway-core",
		Audience:  "gateway-core-api",
	})
	require.NoError(t, err)

	svc := token.NewService(signer, newFakeBlacklist(), nil)
	ctx := context.Background()

	pair, err := svc.Mint(ctx, testSnapshot())
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.io", claims.Email)
}

func TestSignerRejectsMissingHMACSecret(t *testing.T) {
	_, err := token.NewSigner(token.SignerConfig{Algorithm: token.AlgorithmHMAC})
	assert.Error(t, err)
}
