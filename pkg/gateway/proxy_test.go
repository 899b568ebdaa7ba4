package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifesto-gateway/core/pkg/config"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit"
	"github.com/manifesto-gateway/core/pkg/iam/token"
	"github.com/manifesto-gateway/core/pkg/logx"
)

type memBlacklist struct {
	mu      sync.Mutex
	entries map[string]string
}

func (m *memBlacklist) Put(ctx context.Context, jti, reason string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = reason
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

func newTestTokenService(t *testing.T) *token.Service {
	t.Helper()
	signer, err := token.NewSigner(token.SignerConfig{
		Algorithm:  token.AlgorithmHMAC,
		HMACSecret: "test-secret-key-0123456789abcdef",
		Issuer:     "gateway-core",
		Audience:   "gateway-core-api",
	})
	require.NoError(t, err)
	return token.NewService(signer, &memBlacklist{entries: make(map[string]string)}, nil)
}

func testGateway(t *testing.T, upstreamURL string, perIPLimit int) (*Gateway, *token.Service) {
	t.Helper()
	tokens := newTestTokenService(t)
	limiter := ratelimit.NewLimiter(&memWindow{counts: make(map[string]int)}, nil)

	cfg := config.GatewayConfig{
		Port:           "0",
		DefaultTimeout: 5 * time.Second,
		Routes: []config.RouteConfig{
			{PathPrefix: "/api/v1/chat", TargetBase: upstreamURL, RequireAuth: true, ServiceTag: "chat"},
			{PathPrefix: "/public", TargetBase: upstreamURL, RequireAuth: false, ServiceTag: "public"},
		},
	}
	rlCfg := config.RateLimitConfig{
		Global: config.ScopeLimit{Requests: 1000, Window: time.Minute},
		IP:     config.ScopeLimit{Requests: perIPLimit, Window: time.Minute},
		User:   config.ScopeLimit{Requests: 1000, Window: time.Minute},
	}
	g := New(cfg, config.CORSConfig{Origins: []string{"*"}}, nil, tokens, limiter, rlCfg, logx.NewLogger(logx.DefaultConfig()))
	return g, tokens
}

func mintAccess(t *testing.T, tokens *token.Service) string {
	t.Helper()
	pair, err := tokens.Mint(context.Background(), token.UserSnapshot{
		UserID:      "user-1",
		TenantID:    "tenant-1",
		Email:       "alice@x.io",
		Role:        "member",
		Permissions: []string{"chat:*"},
		Active:      true,
	})
	require.NoError(t, err)
	return pair.AccessToken
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestProtectedRouteRejectsMissingBearer(t *testing.T) {
	g, _ := testGateway(t, "http://127.0.0.1:1", 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/chat/completions", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.Equal(t, wireCodeUnauthenticated, env.Error.Code)
	assert.NotEmpty(t, env.RequestID)
}

func TestProtectedRouteRejectsGarbageBearer(t *testing.T) {
	g, _ := testGateway(t, "http://127.0.0.1:1", 100)
	app := g.BuildApp()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProxyInjectsIdentityAndStripsForgeries(t *testing.T) {
	var seen http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(upstream.Close)

	g, tokens := testGateway(t, upstream.URL, 100)
	app := g.BuildApp()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer "+mintAccess(t, tokens))
	req.Header.Set("X-Request-Id", "req-test-42")
	// Forged identity headers must never survive.
	req.Header.Set("X-User-Id", "attacker")
	req.Header.Set("X-Tenant-Id", "attacker-tenant")
	req.Header.Set("X-User-Role", "owner")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	assert.Equal(t, "user-1", seen.Get("X-User-Id"))
	assert.Equal(t, "tenant-1", seen.Get("X-Tenant-Id"))
	assert.Equal(t, "member", seen.Get("X-User-Role"))
	assert.Equal(t, "alice@x.io", seen.Get("X-User-Email"))
	assert.Equal(t, "req-test-42", seen.Get("X-Request-Id"))
	assert.Equal(t, "req-test-42", resp.Header.Get("X-Request-Id"))
}

func TestUnprotectedRouteSkipsAuth(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-User-Id"))
		fmt.Fprint(w, "public ok")
	}))
	t.Cleanup(upstream.Close)

	g, _ := testGateway(t, upstream.URL, 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public/docs", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProxyTranslatesConformingUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":"1007","message":"bad payload","details":{"field":"messages"}}}`)
	}))
	t.Cleanup(upstream.Close)

	g, _ := testGateway(t, upstream.URL, 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public/x", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, "1007", env.Error.Code)
	assert.Equal(t, "bad payload", env.Error.Message)
}

func TestProxyWrapsNonConformingUpstreamError(t *testing.T) {
	long := strings.Repeat("x", 900)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, long)
	}))
	t.Cleanup(upstream.Close)

	g, _ := testGateway(t, upstream.URL, 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public/x", nil), 5000)
	require.NoError(t, err)

	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, wireCodeInternal, env.Error.Code)
	excerpt, _ := env.Error.Details["upstream_body"].(string)
	assert.Len(t, excerpt, upstreamExcerptLimit)
}

func TestProxyUnreachableUpstream(t *testing.T) {
	g, _ := testGateway(t, "http://127.0.0.1:1", 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public/x", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.Equal(t, wireCodeDownstreamDown, env.Error.Code)
}

func TestProxyStreamsSSE(t *testing.T) {
	frames := []string{"data: one\n\n", "data: two\n\n", "data: three\n\n", "data: [DONE]\n\n"}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			flusher.Flush()
		}
	}))
	t.Cleanup(upstream.Close)

	g, _ := testGateway(t, upstream.URL, 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public/completions?stream=true", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(frames, ""), string(body))
}

func TestRateLimitDenialCarriesRetryAfterAndHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(upstream.Close)

	g, _ := testGateway(t, upstream.URL, 2)
	app := g.BuildApp()

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public/x", nil), 5000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Ip-Limit"))
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public/x", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	env := decodeEnvelope(t, resp)
	assert.Equal(t, wireCodeRateLimited, env.Error.Code)
}

func TestUnroutedPathIs404(t *testing.T) {
	g, _ := testGateway(t, "http://127.0.0.1:1", 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/nothing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpointReportsDownstreams(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	g, _ := testGateway(t, upstream.URL, 100)
	app := g.BuildApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
}
