// Package token implements the Token Service: JWT minting and verification
// with a dual HMAC/RSA signer, jti-keyed revocation, and single-use refresh
// rotation.
package token

import (
	"time"

	"github.com/manifesto-gateway/core/pkg/kernel"
)

// Kind tags whether a token is an access or refresh token. Claims carry
// their kind so verify can reject cross-kind use (an access token presented
// where a refresh token is expected, and vice versa).
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Algorithm selects the JWT signature scheme.
type Algorithm string

const (
	AlgorithmHMAC Algorithm = "HS256"
	AlgorithmRSA  Algorithm = "RS256"
)

// UserSnapshot is the minimal identity projection minted into a token's
// claims. Callers assemble this from whatever directory or cache holds the
// current user record; the token package never looks it up itself.
type UserSnapshot struct {
	UserID      kernel.UserID
	TenantID    kernel.TenantID
	Email       string
	Role        string
	Permissions []string
	Active      bool
	MFAEnabled  bool
}

// Claims is the decoded, verified content of a token.
type Claims struct {
	JTI         string          `json:"jti"`
	UserID      kernel.UserID   `json:"user_id"`
	TenantID    kernel.TenantID `json:"tenant_id"`
	Email       string          `json:"email"`
	Role        string          `json:"role"`
	Permissions []string        `json:"permissions"`
	Active      bool            `json:"active"`
	MFAEnabled  bool            `json:"mfa_enabled"`
	Kind        Kind            `json:"kind"`
	IssuedAt    time.Time       `json:"iat"`
	ExpiresAt   time.Time       `json:"exp"`
}

// MintedPair is the (access, refresh) token pair returned by Mint and Refresh.
type MintedPair struct {
	AccessToken  string
	AccessJTI    string
	AccessExp    time.Time
	RefreshToken string
	RefreshJTI   string
	RefreshExp   time.Time
}
