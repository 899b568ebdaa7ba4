package authsvc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/authsvc"
	"github.com/manifesto-gateway/core/pkg/iam/policy"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit"
	"github.com/manifesto-gateway/core/pkg/iam/session"
	"github.com/manifesto-gateway/core/pkg/iam/token"
	"github.com/manifesto-gateway/core/pkg/iam/userdir"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// fakeDirectory serves one fixed user with one accepted password.
type fakeDirectory struct {
	profile       userdir.Profile
	password      string
	lastLoginSet  bool
	lookupCalls   int
	verifyCalls   int
	failLastLogin bool
}

func (f *fakeDirectory) Lookup(ctx context.Context, usernameOrEmail string) (*userdir.Profile, error) {
	f.lookupCalls++
	if usernameOrEmail != f.profile.Email && usernameOrEmail != f.profile.Username {
		return nil, userdir.ErrNotFound()
	}
	p := f.profile
	return &p, nil
}

func (f *fakeDirectory) VerifyPassword(ctx context.Context, userID kernel.UserID, candidate string) (bool, error) {
	f.verifyCalls++
	return userID == f.profile.UserID && candidate == f.password, nil
}

func (f *fakeDirectory) UpdateLastLogin(ctx context.Context, userID kernel.UserID, at time.Time) error {
	if f.failLastLogin {
		return errx.Internal("directory write failed")
	}
	f.lastLoginSet = true
	return nil
}

// In-memory collaborator fakes shared by the orchestrator tests.

type memBlacklist struct {
	mu      sync.Mutex
	entries map[string]string
}

func (m *memBlacklist) Put(ctx context.Context, jti, reason string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ttl > 0 {
		m.entries[jti] = reason
	}
	return nil
}

func (m *memBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[jti]
	return ok, nil
}

func (m *memBlacklist) PutIfAbsent(ctx context.Context, jti, reason string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[jti]; ok {
		return false, nil
	}
	m.entries[jti] = reason
	return true, nil
}

type memWindow struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *memWindow) Admit(ctx context.Context, key string, limit int, horizon time.Duration, now time.Time) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts[key] >= limit {
		return m.counts[key], false, nil
	}
	m.counts[key]++
	return m.counts[key], true, nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[kernel.SessionID]session.Session
	byUser   map[kernel.UserID]map[kernel.SessionID]struct{}
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		sessions: make(map[kernel.SessionID]session.Session),
		byUser:   make(map[kernel.UserID]map[kernel.SessionID]struct{}),
	}
}

func (m *memSessionRepo) Save(ctx context.Context, s session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, id kernel.SessionID) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memSessionRepo) ActiveForUser(ctx context.Context, userID kernel.UserID) ([]kernel.SessionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []kernel.SessionID
	for id := range m.byUser[userID] {
		if s, ok := m.sessions[id]; ok && s.IsActive() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memSessionRepo) AddToUserIndex(ctx context.Context, userID kernel.UserID, id kernel.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[kernel.SessionID]struct{})
	}
	m.byUser[userID][id] = struct{}{}
	return nil
}

func (m *memSessionRepo) RemoveFromUserIndex(ctx context.Context, userID kernel.UserID, id kernel.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser[userID], id)
	return nil
}

func (m *memSessionRepo) AllActive(ctx context.Context) ([]kernel.SessionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []kernel.SessionID
	for id, s := range m.sessions {
		if s.IsActive() {
			out = append(out, id)
		}
	}
	return out, nil
}

type memPolicyStore struct {
	mu  sync.Mutex
	doc *policy.Document
}

func (m *memPolicyStore) Get(ctx context.Context) (*policy.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, nil
	}
	d := *m.doc
	return &d, nil
}

func (m *memPolicyStore) Put(ctx context.Context, doc policy.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = &doc
	return nil
}

type memAutoBan struct {
	mu       sync.Mutex
	counters map[string]int
	bans     map[string]time.Time
}

func newMemAutoBan() *memAutoBan {
	return &memAutoBan{counters: make(map[string]int), bans: make(map[string]time.Time)}
}

func (m *memAutoBan) IncrementFailedLogin(ctx context.Context, ip string, counterTTL time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[ip]++
	return m.counters[ip], nil
}

func (m *memAutoBan) ResetFailedLogin(ctx context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, ip)
	return nil
}

func (m *memAutoBan) Ban(ctx context.Context, ip string, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bans[ip] = time.Now().UTC().Add(duration)
	return nil
}

func (m *memAutoBan) IsBanned(ctx context.Context, ip string) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.bans[ip]
	return ok, until, nil
}

type fixture struct {
	svc       *authsvc.Service
	directory *fakeDirectory
	autoBan   *memAutoBan
	sessions  *session.Registry
	repo      *memSessionRepo
	tokens    *token.Service
	blacklist *memBlacklist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	directory := &fakeDirectory{
		profile: userdir.Profile{
			UserID:   kernel.NewUserID("user-1"),
			TenantID: kernel.NewTenantID("tenant-1"),
			Email:    "alice@x.io",
			Username: "alice",
			Role:     kernel.RoleMember,
			Active:   true,
		},
		password: "Correct123!",
	}

	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm:  token.AlgorithmHMAC,
		HMACSecret: "test-secret-key-0123456789abcdef",
		Issuer:     "gateway-core",
		Audience:   "gateway-core-api",
	})
	require.NoError(t, err)
	blacklist := &memBlacklist{entries: make(map[string]string)}
	tokens := token.NewService(signer, blacklist, nil)

	repo := newMemSessionRepo()
	revokeJTI := func(ctx context.Context, jti, reason string) {
		_ = blacklist.Put(ctx, jti, reason, time.Hour)
	}
	sessions := session.NewRegistry(repo, revokeJTI, session.Policy{
		MaxConcurrent: 5,
		HardTTL:       time.Hour,
	}, nil)

	limiter := ratelimit.NewLimiter(&memWindow{counts: make(map[string]int)}, nil)

	autoBan := newMemAutoBan()
	engine := policy.NewEngine(&memPolicyStore{}, autoBan, policy.Document{
		Password:          policy.PasswordPolicy{MinLength: 8, MaxLength: 128},
		IP:                policy.IPPolicy{AutoBanEnabled: true, AutoBanThreshold: 20, AutoBanDuration: time.Hour, AutoBanCounterTTL: time.Hour},
		MaxLoginAttempts:  10,
		SessionTimeoutMin: 30,
		RetentionDays:     90,
	})

	svc := authsvc.NewService(directory, tokens, sessions, limiter, engine, authsvc.NewLogxAuditService(),
		authsvc.LoginLimit{Requests: 10, Window: time.Minute}, nil)

	return &fixture{svc: svc, directory: directory, autoBan: autoBan, sessions: sessions, repo: repo, tokens: tokens, blacklist: blacklist}
}

func loginRequest(password string) authsvc.LoginRequest {
	return authsvc.LoginRequest{
		UsernameOrEmail: "alice@x.io",
		Password:        password,
		IP:              "1.2.3.4",
		UserAgent:       "test-agent/1.0",
		RequestID:       "req-test-1",
	}
}

func TestLoginHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, loginRequest("Correct123!"))
	require.NoError(t, err)

	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, "alice@x.io", result.User.Email)
	assert.Equal(t, "member", result.User.Role)
	assert.True(t, f.directory.lastLoginSet)

	// The access token verifies and carries the directory profile.
	claims, err := f.tokens.Verify(ctx, result.Tokens.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, kernel.NewUserID("user-1"), claims.UserID)
	assert.Equal(t, kernel.RoleMember.Permissions, claims.Permissions)

	// A session was opened for the user.
	active, err := f.repo.ActiveForUser(ctx, kernel.NewUserID("user-1"))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestLoginUnknownUserReportsInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	req := loginRequest("Correct123!")
	req.UsernameOrEmail = "nobody@x.io"
	_, err := f.svc.Login(context.Background(), req)
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "AUTH_INVALID_CREDENTIALS", xerr.Code)
}

func TestLoginWrongPasswordRecordsFailureAndMatchesUnknownUserError(t *testing.T) {
	f := newFixture(t)

	_, errWrong := f.svc.Login(context.Background(), loginRequest("wrong"))
	require.Error(t, errWrong)

	unknownReq := loginRequest("Correct123!")
	unknownReq.UsernameOrEmail = "nobody@x.io"
	_, errUnknown := f.svc.Login(context.Background(), unknownReq)
	require.Error(t, errUnknown)

	// Externally indistinguishable.
	assert.Equal(t, errUnknown.(*errx.Error).Code, errWrong.(*errx.Error).Code)

	// The failed attempt fed the auto-ban counter.
	assert.Equal(t, 1, f.autoBan.counters["1.2.3.4"])
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newFixture(t)
	f.directory.profile.Active = false

	_, err := f.svc.Login(context.Background(), loginRequest("Correct123!"))
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "AUTH_ACCOUNT_DISABLED", xerr.Code)
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = f.svc.Login(ctx, loginRequest("wrong"))
	}

	// The 11th attempt is denied before any directory lookup — even with
	// the correct password.
	lookupsBefore := f.directory.lookupCalls
	_, err := f.svc.Login(ctx, loginRequest("Correct123!"))
	require.Error(t, err)
	xerr, ok := err.(*errx.Error)
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", xerr.Code)
	assert.Equal(t, 429, xerr.HTTPStatus)
	assert.Equal(t, lookupsBefore, f.directory.lookupCalls)
}

func TestLoginSucceedsWhenLastLoginUpdateFails(t *testing.T) {
	f := newFixture(t)
	f.directory.failLastLogin = true

	_, err := f.svc.Login(context.Background(), loginRequest("Correct123!"))
	assert.NoError(t, err)
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, loginRequest("Correct123!"))
	require.NoError(t, err)

	pair1, err := f.svc.Refresh(ctx, result.Tokens.RefreshToken, "1.2.3.4", "test-agent/1.0")
	require.NoError(t, err)
	assert.NotEqual(t, result.Tokens.RefreshToken, pair1.RefreshToken)

	// Replaying the spent refresh token fails.
	_, err = f.svc.Refresh(ctx, result.Tokens.RefreshToken, "1.2.3.4", "test-agent/1.0")
	require.Error(t, err)
	assert.Equal(t, "AUTH_INVALID_TOKEN", err.(*errx.Error).Code)

	// The new one still works.
	_, err = f.svc.Refresh(ctx, pair1.RefreshToken, "1.2.3.4", "test-agent/1.0")
	require.NoError(t, err)
}

func TestRefreshRebindsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, loginRequest("Correct123!"))
	require.NoError(t, err)

	before, err := f.repo.FindByID(ctx, result.Session)
	require.NoError(t, err)
	require.NotNil(t, before)

	_, err = f.svc.Refresh(ctx, result.Tokens.RefreshToken, "1.2.3.4", "test-agent/1.0")
	require.NoError(t, err)

	// Exactly one live session remains, bound to the rotated pair.
	active, err := f.repo.ActiveForUser(ctx, kernel.NewUserID("user-1"))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.NotEqual(t, result.Session, active[0])

	current, err := f.repo.FindByID(ctx, active[0])
	require.NoError(t, err)
	assert.NotEqual(t, before.RefreshJTI, current.RefreshJTI)
	assert.NotEqual(t, before.AccessJTI, current.AccessJTI)

	// The superseded record is terminated and its still-live access token
	// went with it.
	old, err := f.repo.FindByID(ctx, result.Session)
	require.NoError(t, err)
	assert.Equal(t, session.StateTerminated, old.State)

	_, err = f.tokens.Verify(ctx, result.Tokens.AccessToken, token.KindAccess)
	require.Error(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, loginRequest("Correct123!"))
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, result.Tokens.AccessToken, "1.2.3.4", "test-agent/1.0")
	require.Error(t, err)
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, loginRequest("Correct123!"))
	require.NoError(t, err)

	f.directory.profile.Active = false
	_, err = f.svc.Refresh(ctx, result.Tokens.RefreshToken, "1.2.3.4", "test-agent/1.0")
	require.Error(t, err)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Login(ctx, loginRequest("Correct123!"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, result.Tokens.AccessToken, "1.2.3.4"))

	_, err = f.tokens.Verify(ctx, result.Tokens.AccessToken, token.KindAccess)
	require.Error(t, err)
}

func TestLogoutWithoutTokenIsNotAnError(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Logout(context.Background(), "", "1.2.3.4"))
}
