// Package userdirhttp implements userdir.Directory as a client of an
// external user-directory service's internal endpoints. It never
// requests or decodes a password hash — verification is a server-side
// boolean, kept that way end to end.
package userdirhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/manifesto-gateway/core/pkg/iam/userdir"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Client calls an external user directory's internal HTTP surface.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient builds a Client. baseURL has no trailing slash, e.g.
// "http://user-directory.internal:8080".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type verifyRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
}

type verifyResponse struct {
	UserID   string      `json:"user_id"`
	TenantID string      `json:"tenant_id"`
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     kernel.Role `json:"role"`
	Active   bool        `json:"active"`
}

// Lookup calls POST /internal/users/verify.
func (c *Client) Lookup(ctx context.Context, usernameOrEmail string) (*userdir.Profile, error) {
	var resp verifyResponse
	status, err := c.post(ctx, "/internal/users/verify", verifyRequest{UsernameOrEmail: usernameOrEmail}, &resp)
	if err != nil {
		return nil, userdir.ErrUnreachable(err)
	}
	if status == http.StatusNotFound {
		return nil, userdir.ErrNotFound()
	}
	if status != http.StatusOK {
		return nil, userdir.ErrUnreachable(nil).WithDetail("status", status)
	}

	return &userdir.Profile{
		UserID:   kernel.UserID(resp.UserID),
		TenantID: kernel.TenantID(resp.TenantID),
		Email:    resp.Email,
		Username: resp.Username,
		Role:     resp.Role,
		Active:   resp.Active,
	}, nil
}

type verifyPasswordRequest struct {
	UserID    string `json:"user_id"`
	Candidate string `json:"candidate"`
}

type verifyPasswordResponse struct {
	Valid bool `json:"valid"`
}

// VerifyPassword calls POST /internal/users/verify-password. The directory
// service performs the constant-time comparison; this client only
// forwards the candidate and relays the boolean result.
func (c *Client) VerifyPassword(ctx context.Context, userID kernel.UserID, candidate string) (bool, error) {
	var resp verifyPasswordResponse
	status, err := c.post(ctx, "/internal/users/verify-password", verifyPasswordRequest{
		UserID:    string(userID),
		Candidate: candidate,
	}, &resp)
	if err != nil {
		return false, userdir.ErrUnreachable(err)
	}
	if status != http.StatusOK {
		return false, nil
	}
	return resp.Valid, nil
}

type updateLastLoginRequest struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// UpdateLastLogin calls a best-effort internal endpoint; callers treat
// its error as non-fatal.
func (c *Client) UpdateLastLogin(ctx context.Context, userID kernel.UserID, at time.Time) error {
	_, err := c.post(ctx, "/internal/users/last-login", updateLastLoginRequest{
		UserID: string(userID),
		At:     at,
	}, nil)
	return err
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
