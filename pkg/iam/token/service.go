package token

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/kernel"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// Service implements mint/verify/revoke/refresh over a Signer and a
// Blacklist: dual-algorithm signing, kind-tagged claims, jti-keyed
// revocation.
type Service struct {
	signer    *Signer
	blacklist Blacklist
	log       *logx.Logger
}

// NewService builds a Service.
func NewService(signer *Signer, blacklist Blacklist, log *logx.Logger) *Service {
	return &Service{signer: signer, blacklist: blacklist, log: log}
}

// Mint issues a fresh (access, refresh) pair for snapshot. Claims are
// bit-for-bit stable across mints with identical snapshot inputs except for
// jti and timestamps, since Sign derives every other field from snapshot.
func (s *Service) Mint(ctx context.Context, snapshot UserSnapshot) (*MintedPair, error) {
	accessJTI := uuid.NewString()
	accessToken, accessExp, err := s.signer.Sign(snapshot, KindAccess, accessJTI, 0)
	if err != nil {
		return nil, errx.Wrap(err, "failed to mint access token", errx.TypeInternal)
	}

	refreshJTI := uuid.NewString()
	refreshToken, refreshExp, err := s.signer.Sign(snapshot, KindRefresh, refreshJTI, 0)
	if err != nil {
		return nil, errx.Wrap(err, "failed to mint refresh token", errx.TypeInternal)
	}

	return &MintedPair{
		AccessToken:  accessToken,
		AccessJTI:    accessJTI,
		AccessExp:    accessExp,
		RefreshToken: refreshToken,
		RefreshJTI:   refreshJTI,
		RefreshExp:   refreshExp,
	}, nil
}

// Verify checks signature, expiry, issuer/audience, kind-tag equality,
// and blacklist non-membership. A blacklist-check failure defaults to
// allow — this trades strict enforcement for availability when the
// revocation store is unreachable, and is logged as a warning rather
// than surfaced.
func (s *Service) Verify(ctx context.Context, tokenString string, expectedKind Kind) (*Claims, error) {
	result, err := s.signer.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if result.expired {
		return nil, ErrExpired()
	}
	if !s.signer.issuedByUs(result) {
		return nil, ErrInvalidToken().
			WithDetail("issuer", result.issuer)
	}
	if result.claims.Kind != expectedKind {
		return nil, ErrWrongKind().
			WithDetail("expected", string(expectedKind)).
			WithDetail("actual", string(result.claims.Kind))
	}

	revoked, err := s.blacklist.IsRevoked(ctx, result.claims.JTI)
	if err != nil {
		if s.log != nil {
			s.log.WithFields(logx.Fields{
				"jti":   result.claims.JTI,
				"error": err.Error(),
			}).Warn("token: blacklist check failed, allowing token")
		}
		return result.claims, nil
	}
	if revoked {
		return nil, ErrRevoked()
	}
	return result.claims, nil
}

// Revoke parses tokenString without an expiry check and inserts its jti
// into the blacklist with TTL = max(0, exp-now). Idempotent: revoking an
// already-revoked or already-expired token is a no-op success. A
// store-layer failure is logged and returns false; logout never fails on
// a revoke error.
func (s *Service) Revoke(ctx context.Context, tokenString string, reason string) bool {
	result, err := s.signer.parse(tokenString)
	if err != nil {
		return true
	}
	if result.expired {
		return true
	}

	ttl := time.Until(result.claims.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	if err := s.blacklist.Put(ctx, result.claims.JTI, reason, ttl); err != nil {
		if s.log != nil {
			s.log.WithFields(logx.Fields{"jti": result.claims.JTI, "error": err.Error()}).Warn("token: revoke failed")
		}
		return false
	}
	return true
}

// RevokeAllFor revokes every jti in jtis (typically the caller's bound
// session jtis from the Session Registry) under reason.
func (s *Service) RevokeAllFor(ctx context.Context, userID kernel.UserID, jtis []string, reason string, ttl time.Duration) {
	for _, jti := range jtis {
		if err := s.blacklist.Put(ctx, jti, reason, ttl); err != nil && s.log != nil {
			s.log.WithFields(logx.Fields{
				"user_id": userID.String(),
				"jti":     jti,
				"error":   err.Error(),
			}).Warn("token: revoke_all_for failed for one jti")
		}
	}
}

// Refresh verifies oldRefresh as a refresh token, atomically revokes it,
// and mints a new pair for freshSnapshot. The blacklist's atomic
// insert-if-absent is the concurrency gate: of two simultaneous refreshers
// racing on the same old_refresh, only the first observes inserted=true and
// proceeds; the second sees the jti already blacklisted and is rejected
// with ErrRevoked, converting concurrent refresh into at-most-one success.
// The orchestrator binds the returned pair to a fresh session record and
// supersedes the one the old pair was bound to.
func (s *Service) Refresh(ctx context.Context, oldRefresh string, freshSnapshot UserSnapshot) (*MintedPair, error) {
	claims, err := s.Verify(ctx, oldRefresh, KindRefresh)
	if err != nil {
		return nil, err
	}

	ttl := time.Until(claims.ExpiresAt)
	if ttl < 0 {
		ttl = 0
	}
	inserted, err := s.blacklist.PutIfAbsent(ctx, claims.JTI, "refresh_rotation", ttl)
	if err != nil {
		return nil, errx.Wrap(err, "failed to gate refresh rotation", errx.TypeInternal)
	}
	if !inserted {
		return nil, ErrRevoked()
	}

	return s.Mint(ctx, freshSnapshot)
}
