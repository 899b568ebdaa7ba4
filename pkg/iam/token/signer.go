package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/manifesto-gateway/core/pkg/kernel"
)

// jwtClaims is the on-the-wire JWT claim set. It embeds jwt.RegisteredClaims
// for the standard iss/aud/exp/iat/sub/jti handling and carries the
// domain claims alongside.
type jwtClaims struct {
	TenantID    kernel.TenantID `json:"tenant_id"`
	Email       string          `json:"email"`
	Role        string          `json:"role"`
	Permissions []string        `json:"permissions"`
	Active      bool            `json:"active"`
	MFAEnabled  bool            `json:"mfa_enabled"`
	Kind        Kind            `json:"kind"`
	jwt.RegisteredClaims
}

// Signer mints and parses JWTs under one configured algorithm, selecting
// HMAC or RSA at construction time.
type Signer struct {
	algorithm       Algorithm
	hmacKey         []byte
	rsaPrivateKey   *rsa.PrivateKey
	rsaPublicKey    *rsa.PublicKey
	issuer          string
	audience        string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// SignerConfig configures NewSigner.
type SignerConfig struct {
	Algorithm       Algorithm
	HMACSecret      string
	RSAPrivateKeyPEM string
	RSAPublicKeyPEM  string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// NewSigner builds a Signer. When cfg.Algorithm is RSA and no private key
// PEM is supplied, a 2048-bit keypair is generated for this process's
// lifetime only — tokens signed under it do not verify across restarts or
// against other processes. Development convenience only; production
// deployments must supply JWT_RSA_PRIVATE_KEY.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	s := &Signer{
		algorithm:       cfg.Algorithm,
		issuer:          cfg.Issuer,
		audience:        cfg.Audience,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
	}
	if s.accessTokenTTL == 0 {
		s.accessTokenTTL = 15 * time.Minute
	}
	if s.refreshTokenTTL == 0 {
		s.refreshTokenTTL = 7 * 24 * time.Hour
	}

	switch cfg.Algorithm {
	case AlgorithmRSA:
		if cfg.RSAPrivateKeyPEM != "" {
			priv, err := parseRSAPrivateKey(cfg.RSAPrivateKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("token: failed to parse RSA private key: %w", err)
			}
			s.rsaPrivateKey = priv
			s.rsaPublicKey = &priv.PublicKey
		} else {
			priv, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return nil, fmt.Errorf("token: failed to generate ephemeral RSA keypair: %w", err)
			}
			s.rsaPrivateKey = priv
			s.rsaPublicKey = &priv.PublicKey
		}
	case AlgorithmHMAC:
		if cfg.HMACSecret == "" {
			return nil, fmt.Errorf("token: HMAC algorithm requires a non-empty secret")
		}
		s.hmacKey = []byte(cfg.HMACSecret)
	default:
		return nil, fmt.Errorf("token: unsupported algorithm %q", cfg.Algorithm)
	}

	return s, nil
}

func parseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PEM block is not an RSA private key")
	}
	return key, nil
}

func (s *Signer) signingMethod() jwt.SigningMethod {
	if s.algorithm == AlgorithmRSA {
		return jwt.SigningMethodRS256
	}
	return jwt.SigningMethodHS256
}

func (s *Signer) signingKey() interface{} {
	if s.algorithm == AlgorithmRSA {
		return s.rsaPrivateKey
	}
	return s.hmacKey
}

func (s *Signer) verifyKey() interface{} {
	if s.algorithm == AlgorithmRSA {
		return s.rsaPublicKey
	}
	return s.hmacKey
}

// ttlFor returns the configured lifetime for kind.
func (s *Signer) ttlFor(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.refreshTokenTTL
	}
	return s.accessTokenTTL
}

// Sign mints a JWT for snapshot with the given kind, jti, and lifetime
// override (zero uses the signer's configured default for kind).
func (s *Signer) Sign(snapshot UserSnapshot, kind Kind, jti string, lifetime time.Duration) (string, time.Time, error) {
	if lifetime == 0 {
		lifetime = s.ttlFor(kind)
	}
	now := time.Now().UTC()
	exp := now.Add(lifetime)

	claims := jwtClaims{
		TenantID:    snapshot.TenantID,
		Email:       snapshot.Email,
		Role:        snapshot.Role,
		Permissions: snapshot.Permissions,
		Active:      snapshot.Active,
		MFAEnabled:  snapshot.MFAEnabled,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   snapshot.UserID.String(),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(s.signingMethod(), claims)
	signed, err := tok.SignedString(s.signingKey())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: failed to sign: %w", err)
	}
	return signed, exp, nil
}

// parseResult is the outcome of parse: claims extracted with no expiry
// enforcement (used by Revoke, which must accept already-expired tokens),
// plus the raw issuer/audience for Verify's registered-claim checks.
type parseResult struct {
	claims   *Claims
	expired  bool
	issuer   string
	audience []string
}

// parse decodes and signature-verifies tokenString without enforcing
// expiry, returning the decoded Claims and whether they are expired.
func (s *Signer) parse(tokenString string) (*parseResult, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if s.algorithm == AlgorithmRSA {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
		} else {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
		}
		return s.verifyKey(), nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature().WithDetail("cause", err.Error())
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed().WithDetail("cause", err.Error())
		default:
			return nil, ErrMalformed().WithDetail("cause", err.Error())
		}
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok {
		return nil, ErrMalformed().WithDetail("cause", "unexpected claims type")
	}

	exp, _ := claims.GetExpirationTime()
	iat, _ := claims.GetIssuedAt()
	expired := exp != nil && time.Now().After(exp.Time)

	return &parseResult{
		claims: &Claims{
			JTI:         claims.ID,
			UserID:      kernel.NewUserID(claims.Subject),
			TenantID:    claims.TenantID,
			Email:       claims.Email,
			Role:        claims.Role,
			Permissions: claims.Permissions,
			Active:      claims.Active,
			MFAEnabled:  claims.MFAEnabled,
			Kind:        claims.Kind,
			IssuedAt:    safeTime(iat),
			ExpiresAt:   safeTime(exp),
		},
		expired:  expired,
		issuer:   claims.Issuer,
		audience: claims.Audience,
	}, nil
}

// issuedByUs reports whether the parsed issuer and audience match this
// signer's configuration.
func (s *Signer) issuedByUs(result *parseResult) bool {
	if result.issuer != s.issuer {
		return false
	}
	for _, aud := range result.audience {
		if aud == s.audience {
			return true
		}
	}
	return false
}

func safeTime(nd *jwt.NumericDate) time.Time {
	if nd == nil {
		return time.Time{}
	}
	return nd.Time
}
