// Package authsvc implements the authentication orchestrator: the
// login/refresh/logout procedure composing the rate limiter, a user
// directory collaborator, the token service, the session registry, and
// the policy engine. Constructors take collaborator interfaces; methods
// return DTOs or *errx.Error.
package authsvc

import (
	"github.com/manifesto-gateway/core/pkg/iam/userdir"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// LoginRequest is login's full input, including the request metadata the
// rate limiter and session registry key on.
type LoginRequest struct {
	UsernameOrEmail string
	Password        string
	IP              string
	UserAgent       string
	RequestID       string
}

// TokenPair is the redacted response shape returned to the client: no
// internal jtis, no session id.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    string
}

// UserProfile is the redacted user projection returned alongside a TokenPair.
type UserProfile struct {
	UserID   kernel.UserID
	TenantID kernel.TenantID
	Email    string
	Username string
	Role     string
}

// LoginResult bundles what Login returns on success.
type LoginResult struct {
	Tokens  TokenPair
	User    UserProfile
	Session kernel.SessionID
}

func profileFromDirectory(p *userdir.Profile) UserProfile {
	return UserProfile{
		UserID:   p.UserID,
		TenantID: p.TenantID,
		Email:    p.Email,
		Username: p.Username,
		Role:     p.Role.Name,
	}
}
