package credential_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifesto-gateway/core/pkg/iam/credential"
	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/kernel"
	"github.com/manifesto-gateway/core/pkg/ptrx"
)

func proberFixture(t *testing.T, handler http.HandlerFunc) (*credential.Prober, *fakeSecretStore, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := newFakeSecretStore()
	c := cred("c1", secret.ProviderCustom, true, at(1), nil)
	c.EndpointOverride = ptrx.String(server.URL)
	store.add("tenant-a", c)

	return credential.NewProber(store, 2*time.Second), store, server
}

func testRequest(testType credential.TestType) credential.TestRequest {
	return credential.TestRequest{
		CredentialID: kernel.NewCredentialID("c1"),
		TenantID:     kernel.NewTenantID("tenant-a"),
		TestType:     testType,
	}
}

func TestProbeSuccess(t *testing.T) {
	var sawAuth string
	prober, _, _ := proberFixture(t, func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})

	result := prober.Test(context.Background(), testRequest(credential.TestTypeModelList))
	assert.True(t, result.Success)
	assert.Equal(t, credential.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "Bearer secret:c1", sawAuth)
}

func TestProbeUnauthorized(t *testing.T) {
	prober, _, _ := proberFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	result := prober.Test(context.Background(), testRequest(credential.TestTypeModelList))
	assert.False(t, result.Success)
	assert.Equal(t, credential.OutcomeUnauthorized, result.Outcome)
}

func TestProbeRateLimited(t *testing.T) {
	prober, _, _ := proberFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result := prober.Test(context.Background(), testRequest(credential.TestTypeModelList))
	assert.Equal(t, credential.OutcomeRateLimited, result.Outcome)
}

func TestProbeUnexpectedStatus(t *testing.T) {
	prober, _, _ := proberFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	result := prober.Test(context.Background(), testRequest(credential.TestTypeModelList))
	assert.Equal(t, credential.OutcomeOther, result.Outcome)
	assert.Equal(t, http.StatusBadGateway, result.Details["status_code"])
}

func TestProbeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	store := newFakeSecretStore()
	c := cred("c1", secret.ProviderCustom, true, at(1), nil)
	c.EndpointOverride = ptrx.String(server.URL)
	store.add("tenant-a", c)

	prober := credential.NewProber(store, 50*time.Millisecond)
	result := prober.Test(context.Background(), testRequest(credential.TestTypeModelList))
	assert.False(t, result.Success)
	assert.Equal(t, credential.OutcomeTimeout, result.Outcome)
}

func TestProbeTenantScopeEnforced(t *testing.T) {
	prober, _, _ := proberFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	result := prober.Test(context.Background(), credential.TestRequest{
		CredentialID: kernel.NewCredentialID("c1"),
		TenantID:     kernel.NewTenantID("tenant-b"),
		TestType:     credential.TestTypeModelList,
	})
	assert.False(t, result.Success)
	assert.Equal(t, credential.OutcomeOther, result.Outcome)
}

func TestChatProbeSendsMinimalCompletion(t *testing.T) {
	var body map[string]interface{}
	prober, _, _ := proberFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	})

	req := testRequest(credential.TestTypeChat)
	req.ModelName = "gpt-4o-mini"
	result := prober.Test(context.Background(), req)

	require.True(t, result.Success)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, float64(5), body["max_tokens"])
}

func TestChatProbeRequiresModelName(t *testing.T) {
	prober, _, _ := proberFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	result := prober.Test(context.Background(), testRequest(credential.TestTypeChat))
	assert.False(t, result.Success)
	assert.Equal(t, credential.OutcomeOther, result.Outcome)
}
