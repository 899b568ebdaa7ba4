package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/ptrx"
)

// probeProfile describes how to reach one provider for a connectivity
// test: the model-list GET target, the minimal chat POST target, and how
// the key travels. Providers without a fixed endpoint (azure, custom) rely
// on the credential's own EndpointOverride.
type probeProfile struct {
	modelListURL string
	chatURL      string
	authHeader   string // header carrying the key; "Authorization" implies a Bearer prefix
	extraHeaders map[string]string
}

var probeProfiles = map[secret.Provider]probeProfile{
	secret.ProviderOpenAI: {
		modelListURL: "https://api.openai.com/v1/models",
		chatURL:      "https://api.openai.com/v1/chat/completions",
		authHeader:   "Authorization",
	},
	secret.ProviderAnthropic: {
		modelListURL: "https://api.anthropic.com/v1/models",
		chatURL:      "https://api.anthropic.com/v1/messages",
		authHeader:   "x-api-key",
		extraHeaders: map[string]string{"anthropic-version": "2023-06-01"},
	},
	secret.ProviderGoogle: {
		modelListURL: "https://generativelanguage.googleapis.com/v1beta/models",
		chatURL:      "",
		authHeader:   "x-goog-api-key",
	},
	secret.ProviderDeepseek: {
		modelListURL: "https://api.deepseek.com/v1/models",
		chatURL:      "https://api.deepseek.com/v1/chat/completions",
		authHeader:   "Authorization",
	},
	secret.ProviderAzure:  {},
	secret.ProviderCustom: {},
}

// Prober performs provider connectivity tests against a tenant's stored
// credential: a lightweight model-list GET, or a minimal chat call capped
// at a handful of tokens.
type Prober struct {
	secrets    SecretStore
	httpClient *http.Client
}

// NewProber builds a Prober.
func NewProber(secrets SecretStore, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{secrets: secrets, httpClient: &http.Client{Timeout: timeout}}
}

// Test fetches and decrypts the named credential under its tenant scope,
// then probes the provider, classifying the outcome as success, timeout,
// unauthorized, rate-limited, or other.
func (p *Prober) Test(ctx context.Context, req TestRequest) TestResult {
	start := time.Now()

	cred, err := p.secrets.FetchByID(ctx, req.CredentialID, req.TenantID)
	if err != nil {
		return TestResult{Success: false, Outcome: OutcomeOther, Error: err.Error(), DurationMS: elapsedMS(start)}
	}
	plaintext, err := p.secrets.DecryptByID(ctx, req.CredentialID, req.TenantID)
	if err != nil {
		return TestResult{Success: false, Outcome: OutcomeOther, Error: err.Error(), DurationMS: elapsedMS(start)}
	}

	profile := probeProfiles[cred.Provider]

	var httpReq *http.Request
	switch req.TestType {
	case TestTypeChat:
		httpReq, err = p.chatRequest(ctx, cred, profile, req.ModelName)
	default:
		httpReq, err = p.modelListRequest(ctx, cred, profile)
	}
	if err != nil {
		return TestResult{Success: false, Outcome: OutcomeOther, Error: err.Error(), DurationMS: elapsedMS(start)}
	}

	setProbeAuth(httpReq, profile, plaintext)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		outcome := OutcomeOther
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		} else if uerr, ok := err.(interface{ Timeout() bool }); ok && uerr.Timeout() {
			outcome = OutcomeTimeout
		}
		return TestResult{Success: false, Outcome: outcome, Error: err.Error(), DurationMS: elapsedMS(start)}
	}
	defer resp.Body.Close()

	return classifyStatus(resp.StatusCode, elapsedMS(start))
}

func (p *Prober) modelListRequest(ctx context.Context, cred *secret.ProviderCredential, profile probeProfile) (*http.Request, error) {
	url := profile.modelListURL
	if override := ptrx.Value(cred.EndpointOverride); override != "" {
		url = override
	}
	if url == "" {
		return nil, errors.New("no probe endpoint configured for this provider")
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
}

// chatRequest builds the cheapest possible completion call: one short user
// message, max_tokens 5.
func (p *Prober) chatRequest(ctx context.Context, cred *secret.ProviderCredential, profile probeProfile, model string) (*http.Request, error) {
	url := profile.chatURL
	if override := ptrx.Value(cred.EndpointOverride); override != "" {
		url = override
	}
	if url == "" {
		return nil, errors.New("no chat probe endpoint configured for this provider")
	}
	if model == "" {
		return nil, errors.New("model_name is required for a chat probe")
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":      model,
		"max_tokens": 5,
		"messages":   []map[string]string{{"role": "user", "content": "ping"}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func setProbeAuth(req *http.Request, profile probeProfile, key string) {
	header := profile.authHeader
	if header == "" {
		header = "Authorization"
	}
	if header == "Authorization" {
		req.Header.Set(header, "Bearer "+key)
	} else {
		req.Header.Set(header, key)
	}
	for k, v := range profile.extraHeaders {
		req.Header.Set(k, v)
	}
}

func classifyStatus(status int, durationMS int64) TestResult {
	switch {
	case status >= 200 && status < 300:
		return TestResult{Success: true, Outcome: OutcomeSuccess, DurationMS: durationMS}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return TestResult{Success: false, Outcome: OutcomeUnauthorized, DurationMS: durationMS, Error: "provider rejected credentials"}
	case status == http.StatusTooManyRequests:
		return TestResult{Success: false, Outcome: OutcomeRateLimited, DurationMS: durationMS, Error: "provider rate limit exceeded"}
	default:
		return TestResult{
			Success:    false,
			Outcome:    OutcomeOther,
			DurationMS: durationMS,
			Error:      "provider returned an unexpected status",
			Details:    map[string]interface{}{"status_code": status},
		}
	}
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
