package authsvc

import (
	"context"
	"time"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/iam/policy"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit"
	"github.com/manifesto-gateway/core/pkg/iam/session"
	"github.com/manifesto-gateway/core/pkg/iam/token"
	"github.com/manifesto-gateway/core/pkg/iam/userdir"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// LoginLimit is the tighter (login, ip)-scoped bucket checked before any
// directory lookup happens — the login path must be harder to hammer than
// the default endpoint limits.
type LoginLimit struct {
	Requests int
	Window   time.Duration
}

// Service drives login/refresh/logout against its collaborators. None of
// Directory, the token/session services are owned by Service — it
// composes them via constructor injection.
type Service struct {
	directory userdir.Directory
	tokens    *token.Service
	sessions  *session.Registry
	limiter   *ratelimit.Limiter
	policy    *policy.Engine
	audit     AuditService
	loginRate LoginLimit
	log       *logx.Logger
}

// NewService builds a Service. audit may be nil, in which case no audit
// events are emitted.
func NewService(
	directory userdir.Directory,
	tokens *token.Service,
	sessions *session.Registry,
	limiter *ratelimit.Limiter,
	policyEngine *policy.Engine,
	audit AuditService,
	loginRate LoginLimit,
	log *logx.Logger,
) *Service {
	return &Service{
		directory: directory,
		tokens:    tokens,
		sessions:  sessions,
		limiter:   limiter,
		policy:    policyEngine,
		audit:     audit,
		loginRate: loginRate,
		log:       log,
	}
}

// Login authenticates a username/password pair end to end: rate-limit
// admission, IP policy, directory lookup, constant-time password check,
// token minting, session open, then the best-effort bookkeeping
// (last-login stamp, failed-counter reset).
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	decision := s.limiter.Admit(ctx, ratelimit.Request{
		IP:       req.IP,
		Endpoint: "login",
		Limits: map[ratelimit.Scope]ratelimit.Limit{
			ratelimit.ScopeEndpoint: {Requests: s.loginRate.Requests, Window: s.loginRate.Window},
		},
	})
	if !decision.Admitted {
		return nil, ratelimit.ErrExceeded(decision)
	}

	if err := s.policy.CheckIP(ctx, req.IP); err != nil {
		return nil, err
	}

	// A missing user is reported identically to a wrong password so the
	// login surface cannot be used to enumerate accounts.
	profile, err := s.directory.Lookup(ctx, req.UsernameOrEmail)
	if err != nil {
		if xerr, ok := err.(*errx.Error); ok && xerr.Type == errx.TypeNotFound {
			return nil, ErrInvalidCredentials()
		}
		return nil, err
	}
	if !profile.Active {
		return nil, ErrAccountDisabled()
	}

	valid, err := s.directory.VerifyPassword(ctx, profile.UserID, req.Password)
	if err != nil {
		return nil, err
	}
	if !valid {
		if s.audit != nil {
			s.audit.LogLoginAttempt(ctx, profile.UserID, profile.TenantID, false, req.IP, req.UserAgent)
		}
		if rerr := s.policy.RecordFailedLogin(ctx, req.IP); rerr != nil && s.log != nil {
			s.log.WithFields(logx.Fields{"ip": req.IP, "error": rerr.Error()}).
				Warn("authsvc: failed to record failed login for auto-ban tracking")
		}
		return nil, ErrInvalidCredentials()
	}

	pair, err := s.tokens.Mint(ctx, token.UserSnapshot{
		UserID:      profile.UserID,
		TenantID:    profile.TenantID,
		Email:       profile.Email,
		Role:        profile.Role.Name,
		Permissions: profile.Role.Permissions,
		Active:      profile.Active,
	})
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Open(ctx, session.OpenRequest{
		UserID:     profile.UserID,
		TenantID:   profile.TenantID,
		IP:         req.IP,
		UserAgent:  req.UserAgent,
		AccessJTI:  pair.AccessJTI,
		RefreshJTI: pair.RefreshJTI,
	})
	if err != nil {
		return nil, err
	}

	if err := s.directory.UpdateLastLogin(ctx, profile.UserID, time.Now().UTC()); err != nil && s.log != nil {
		s.log.WithFields(logx.Fields{"user_id": profile.UserID.String(), "error": err.Error()}).
			Warn("authsvc: best-effort last_login_at update failed")
	}

	if err := s.policy.ResetFailedLogin(ctx, req.IP); err != nil && s.log != nil {
		s.log.WithFields(logx.Fields{"ip": req.IP, "error": err.Error()}).
			Warn("authsvc: failed to reset failed-login counter after successful login")
	}

	if s.audit != nil {
		s.audit.LogLoginAttempt(ctx, profile.UserID, profile.TenantID, true, req.IP, req.UserAgent)
	}

	return &LoginResult{
		Tokens: TokenPair{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    pair.AccessExp.Format(time.RFC3339),
		},
		User:    profileFromDirectory(profile),
		Session: sess.ID,
	}, nil
}

// Refresh verifies oldRefresh, re-fetches a fresh user profile (so a
// role/tenant change mid-session takes effect), rotates the pair, and
// rebinds it: the session holding the old pair's jtis is terminated (its
// still-live access token revoked with it) and a new session opens bound
// to the new jtis, so revoke-all, the concurrency cap, and hijack
// detection keep seeing the live pair. Every token failure collapses to
// ErrInvalidToken — a refresh caller learns nothing about why its token
// stopped working.
func (s *Service) Refresh(ctx context.Context, oldRefresh string, ip string, userAgent string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(ctx, oldRefresh, token.KindRefresh)
	if err != nil {
		return nil, ErrInvalidToken()
	}

	profile, err := s.directory.Lookup(ctx, claims.Email)
	if err != nil || profile == nil || !profile.Active {
		return nil, ErrInvalidToken()
	}

	pair, err := s.tokens.Refresh(ctx, oldRefresh, token.UserSnapshot{
		UserID:      profile.UserID,
		TenantID:    profile.TenantID,
		Email:       profile.Email,
		Role:        profile.Role.Name,
		Permissions: profile.Role.Permissions,
		Active:      profile.Active,
	})
	if err != nil {
		return nil, ErrInvalidToken()
	}

	superseded, err := s.sessions.TerminateByRefreshJTI(ctx, profile.UserID, claims.JTI, "refresh_rotation")
	if err != nil && s.log != nil {
		s.log.WithFields(logx.Fields{"user_id": profile.UserID.String(), "error": err.Error()}).
			Warn("authsvc: failed to supersede session on refresh")
	}
	if !superseded && s.log != nil {
		s.log.WithFields(logx.Fields{"user_id": profile.UserID.String(), "jti": claims.JTI}).
			Debug("authsvc: refresh found no session bound to the old pair")
	}

	if _, err := s.sessions.Open(ctx, session.OpenRequest{
		UserID:     profile.UserID,
		TenantID:   profile.TenantID,
		IP:         ip,
		UserAgent:  userAgent,
		AccessJTI:  pair.AccessJTI,
		RefreshJTI: pair.RefreshJTI,
	}); err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.LogTokenRefresh(ctx, profile.UserID, profile.TenantID, ip)
	}

	return &TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExp.Format(time.RFC3339),
	}, nil
}

// Logout revokes tokenString if present. Absence is not an error — the
// client's intent (to be logged out) is honored regardless.
func (s *Service) Logout(ctx context.Context, tokenString string, ip string) error {
	if tokenString != "" {
		s.tokens.Revoke(ctx, tokenString, "logout")
	}
	if s.audit != nil {
		s.audit.LogLogout(ctx, ip)
	}
	return nil
}
