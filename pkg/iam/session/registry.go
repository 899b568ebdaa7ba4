package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/kernel"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// TokenRevoker is the narrow slice of token.Service the registry depends
// on. Kept as a local interface (not an import of pkg/iam/token) so the
// two packages compose without a hard dependency edge.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenString string, reason string) bool
}

// Policy bounds the registry's behavior, mirroring config.SessionConfig.
type Policy struct {
	MaxConcurrent           int
	SSOMode                 bool
	IdleTimeout             time.Duration
	HardTTL                 time.Duration
	RecentActivityCap       int
	RecentActivityTTL       time.Duration
	HijackIPChangeThreshold int
	HijackIPChangeWindow    time.Duration
	UASimilarityThreshold   float64
}

// Registry tracks live sessions over a Repository.
//
// TokenRevoker takes raw token strings, but the registry only ever has
// jtis on hand, so NewRegistry takes a jti-keyed revoke function instead
// of round-tripping through a token string the registry never stored.
type Registry struct {
	repo    Repository
	revoke  func(ctx context.Context, jti string, reason string)
	policy  Policy
	log     *logx.Logger
}

// NewRegistry builds a Registry. revokeJTI is typically
// token.Service.RevokeAllFor's single-jti inner call, or an adapter around
// token.Service.Revoke keyed by jti directly via the blacklist.
func NewRegistry(repo Repository, revokeJTI func(ctx context.Context, jti string, reason string), policy Policy, log *logx.Logger) *Registry {
	return &Registry{repo: repo, revoke: revokeJTI, policy: policy, log: log}
}

// Open creates a new active Session for req, enforcing the concurrency cap
// (evicting the oldest active session) or, under SSO mode, terminating
// every other active session for the user first.
func (r *Registry) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	hardTTL := req.HardTTL
	if hardTTL == 0 {
		hardTTL = r.policy.HardTTL
	}

	existing, err := r.repo.ActiveForUser(ctx, req.UserID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to list active sessions for user", errx.TypeInternal)
	}

	if r.policy.SSOMode {
		for _, id := range existing {
			_ = r.terminate(ctx, id, "single_sign_on_supersede")
		}
	} else if r.policy.MaxConcurrent > 0 && len(existing) >= r.policy.MaxConcurrent {
		// existing is oldest-first per Repository.ActiveForUser's contract.
		if len(existing) > 0 {
			_ = r.terminate(ctx, existing[0], "concurrent session limit")
		}
	}

	now := time.Now().UTC()
	s := Session{
		ID:             kernel.NewSessionID(uuid.NewString()),
		UserID:         req.UserID,
		TenantID:       req.TenantID,
		IP:             req.IP,
		Device:         ParseFingerprint(req.UserAgent),
		AccessJTI:      req.AccessJTI,
		RefreshJTI:     req.RefreshJTI,
		OpenedAt:       now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(hardTTL),
		State:          StateActive,
		RecentIPs:      []IPObservation{{IP: req.IP, At: now}},
	}
	s.Suspicious = r.isUnrecognizedPair(ctx, req.UserID, req.IP)
	if s.Suspicious {
		s.State = StateSuspicious
	}

	if err := r.repo.Save(ctx, s); err != nil {
		return nil, errx.Wrap(err, "failed to persist new session", errx.TypeInternal)
	}
	if s.State == StateActive {
		if err := r.repo.AddToUserIndex(ctx, req.UserID, s.ID); err != nil {
			return nil, errx.Wrap(err, "failed to index new session for user", errx.TypeInternal)
		}
	}
	return &s, nil
}

// isUnrecognizedPair decides whether a (user, ip) pair should open a
// session already flagged suspicious. Without a durable history of prior
// IPs outside the session store itself, a fresh session is never flagged
// at open time by this check alone; Validate's repeated-IP-change rule is
// what actually detects hijacking in practice.
func (r *Registry) isUnrecognizedPair(ctx context.Context, userID kernel.UserID, ip string) bool {
	return false
}

// Touch refreshes last-activity and appends an optional activity entry,
// rejecting (false) if the session is past hard expiry (marking it
// expired) or has been idle past the policy's idle timeout.
func (r *Registry) Touch(ctx context.Context, id kernel.SessionID, activity map[string]interface{}) (bool, error) {
	s, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return false, errx.Wrap(err, "failed to load session", errx.TypeInternal)
	}
	if s == nil {
		return false, ErrNotFound()
	}
	if !s.IsActive() {
		return false, nil
	}

	now := time.Now().UTC()
	if now.After(s.ExpiresAt) {
		s.State = StateExpired
		_ = r.persistAndDeindex(ctx, s)
		return false, nil
	}
	if r.policy.IdleTimeout > 0 && now.Sub(s.LastActivityAt) > r.policy.IdleTimeout {
		s.State = StateExpired
		_ = r.persistAndDeindex(ctx, s)
		return false, nil
	}

	s.LastActivityAt = now
	if activity != nil {
		s.RecentActivity = append(s.RecentActivity, ActivityEntry{At: now, Data: activity})
		ttl := r.policy.RecentActivityTTL
		if ttl <= 0 {
			ttl = 7 * 24 * time.Hour
		}
		cutoff := now.Add(-ttl)
		kept := s.RecentActivity[:0]
		for _, e := range s.RecentActivity {
			if e.At.After(cutoff) {
				kept = append(kept, e)
			}
		}
		s.RecentActivity = kept
		cap := r.policy.RecentActivityCap
		if cap <= 0 {
			cap = 100
		}
		if len(s.RecentActivity) > cap {
			s.RecentActivity = s.RecentActivity[len(s.RecentActivity)-cap:]
		}
	}
	if err := r.repo.Save(ctx, *s); err != nil {
		return false, errx.Wrap(err, "failed to persist touched session", errx.TypeInternal)
	}
	return true, nil
}

// Validate compares the presented IP/UA against the session's fingerprint.
// Repeated distinct-IP changes within HijackIPChangeWindow (more than
// HijackIPChangeThreshold) flags hijacking-suspected: the session
// transitions to suspicious and both bound tokens are revoked.
func (r *Registry) Validate(ctx context.Context, id kernel.SessionID, currentIP, currentUA string) (ValidationResult, error) {
	s, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return ValidationResult{}, errx.Wrap(err, "failed to load session", errx.TypeInternal)
	}
	if s == nil {
		return ValidationResult{Valid: false, Issues: []ValidationIssue{IssueExpired}}, nil
	}

	var issues []ValidationIssue
	if s.State == StateTerminated {
		return ValidationResult{Valid: false, Issues: []ValidationIssue{IssueTerminated}, Session: s}, nil
	}
	now := time.Now().UTC()
	if now.After(s.ExpiresAt) {
		s.State = StateExpired
		_ = r.persistAndDeindex(ctx, s)
		return ValidationResult{Valid: false, Issues: []ValidationIssue{IssueExpired}, Session: s}, nil
	}

	if currentIP != s.IP {
		issues = append(issues, IssueIPChanged)
	}
	threshold := r.policy.UASimilarityThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	if jaccardSimilarity(s.Device, ParseFingerprint(currentUA)) < threshold {
		issues = append(issues, IssueUAFingerprintDrift)
	}

	s.RecentIPs = append(s.RecentIPs, IPObservation{IP: currentIP, At: now})
	window := r.policy.HijackIPChangeWindow
	if window <= 0 {
		window = time.Hour
	}
	distinctChanges := countDistinctIPChanges(s.RecentIPs, now, window)
	threshold2 := r.policy.HijackIPChangeThreshold
	if threshold2 <= 0 {
		threshold2 = 3
	}
	if distinctChanges > threshold2 {
		issues = append(issues, IssueHijackSuspected)
		s.State = StateSuspicious
		s.Suspicious = true
		if r.revoke != nil {
			r.revoke(ctx, s.AccessJTI, "hijack_suspected")
			r.revoke(ctx, s.RefreshJTI, "hijack_suspected")
		}
	}

	if err := r.repo.Save(ctx, *s); err != nil {
		return ValidationResult{}, errx.Wrap(err, "failed to persist validated session", errx.TypeInternal)
	}

	return ValidationResult{Valid: len(issues) == 0 || !containsHijack(issues), Issues: issues, Session: s}, nil
}

func containsHijack(issues []ValidationIssue) bool {
	for _, i := range issues {
		if i == IssueHijackSuspected {
			return true
		}
	}
	return false
}

// countDistinctIPChanges counts transitions between distinct consecutive
// IPs observed within the trailing window.
func countDistinctIPChanges(obs []IPObservation, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	var recent []IPObservation
	for _, o := range obs {
		if o.At.After(cutoff) {
			recent = append(recent, o)
		}
	}
	changes := 0
	for i := 1; i < len(recent); i++ {
		if recent[i].IP != recent[i-1].IP {
			changes++
		}
	}
	return changes
}

// Terminate revokes both bound jtis, removes the session from the user
// index, and marks it terminated.
func (r *Registry) Terminate(ctx context.Context, id kernel.SessionID, reason string) error {
	return r.terminate(ctx, id, reason)
}

func (r *Registry) terminate(ctx context.Context, id kernel.SessionID, reason string) error {
	s, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return errx.Wrap(err, "failed to load session for termination", errx.TypeInternal)
	}
	if s == nil {
		return nil
	}
	if r.revoke != nil {
		r.revoke(ctx, s.AccessJTI, reason)
		r.revoke(ctx, s.RefreshJTI, reason)
	}
	s.State = StateTerminated
	return r.persistAndDeindex(ctx, s)
}

func (r *Registry) persistAndDeindex(ctx context.Context, s *Session) error {
	if err := r.repo.Save(ctx, *s); err != nil {
		return errx.Wrap(err, "failed to persist session state change", errx.TypeInternal)
	}
	if err := r.repo.RemoveFromUserIndex(ctx, s.UserID, s.ID); err != nil {
		return errx.Wrap(err, "failed to remove session from user index", errx.TypeInternal)
	}
	return nil
}

// TerminateByRefreshJTI terminates the active session bound to
// refreshJTI, if any, reporting whether one was found. Refresh rotation
// uses this to supersede the old record before opening the session for
// the newly minted pair.
func (r *Registry) TerminateByRefreshJTI(ctx context.Context, userID kernel.UserID, refreshJTI string, reason string) (bool, error) {
	ids, err := r.repo.ActiveForUser(ctx, userID)
	if err != nil {
		return false, errx.Wrap(err, "failed to list active sessions for refresh supersede", errx.TypeInternal)
	}
	for _, id := range ids {
		s, err := r.repo.FindByID(ctx, id)
		if err != nil || s == nil {
			continue
		}
		if s.RefreshJTI == refreshJTI {
			return true, r.terminate(ctx, id, reason)
		}
	}
	return false, nil
}

// TerminateAll terminates every active session for userID, optionally
// skipping one (e.g. the session handling the current request), and
// returns the count terminated.
func (r *Registry) TerminateAll(ctx context.Context, userID kernel.UserID, except *kernel.SessionID) (int, error) {
	ids, err := r.repo.ActiveForUser(ctx, userID)
	if err != nil {
		return 0, errx.Wrap(err, "failed to list active sessions for termination", errx.TypeInternal)
	}
	count := 0
	for _, id := range ids {
		if except != nil && id == *except {
			continue
		}
		if err := r.terminate(ctx, id, "terminate_all"); err != nil {
			if r.log != nil {
				r.log.WithFields(logx.Fields{"session_id": id.String(), "error": err.Error()}).
					Warn("session: failed to terminate one session in terminate_all")
			}
			continue
		}
		count++
	}
	return count, nil
}

// CleanupSweep scans every session the registry believes active and
// transitions any past ExpiresAt to expired, revoking its tokens. Returns
// the count transitioned. Intended to run periodically (see pkg/jobx wiring
// in cmd/).
func (r *Registry) CleanupSweep(ctx context.Context) (int, error) {
	ids, err := r.repo.AllActive(ctx)
	if err != nil {
		return 0, errx.Wrap(err, "failed to list active sessions for cleanup sweep", errx.TypeInternal)
	}
	now := time.Now().UTC()
	expiredCount := 0
	for _, id := range ids {
		s, err := r.repo.FindByID(ctx, id)
		if err != nil || s == nil {
			continue
		}
		if s.IsActive() && now.After(s.ExpiresAt) {
			if r.revoke != nil {
				r.revoke(ctx, s.AccessJTI, "expired")
				r.revoke(ctx, s.RefreshJTI, "expired")
			}
			s.State = StateExpired
			if err := r.persistAndDeindex(ctx, s); err != nil {
				if r.log != nil {
					r.log.WithFields(logx.Fields{"session_id": id.String(), "error": err.Error()}).
						Warn("session: cleanup sweep failed to expire one session")
				}
				continue
			}
			expiredCount++
		}
	}
	return expiredCount, nil
}
