// Package session implements the session registry: live-session
// tracking, concurrency caps, and anomalous-activity (hijack) detection
// layered over a Redis-backed store with a structured (never eval'd)
// recent-activity codec.
package session

import (
	"time"

	"github.com/manifesto-gateway/core/pkg/kernel"
)

// State is the lifecycle stage of a Session.
type State string

const (
	StateActive     State = "active"
	StateExpired    State = "expired"
	StateTerminated State = "terminated"
	StateSuspicious State = "suspicious"
)

// DeviceFingerprint is the parsed shape of a client's User-Agent, used by
// Validate's Jaccard similarity comparison rather than raw string equality.
type DeviceFingerprint struct {
	Raw    string
	Tokens []string
}

// ActivityEntry is one entry in a session's bounded recent-activity list.
type ActivityEntry struct {
	At   time.Time              `json:"at"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// Session is a server-side record binding a (user, device, ip, token-pair)
// tuple with a lifecycle independent of any single token.
type Session struct {
	ID             kernel.SessionID  `json:"id"`
	UserID         kernel.UserID     `json:"user_id"`
	TenantID       kernel.TenantID   `json:"tenant_id"`
	IP             string            `json:"ip"`
	Device         DeviceFingerprint `json:"device"`
	AccessJTI      string            `json:"access_jti"`
	RefreshJTI     string            `json:"refresh_jti"`
	OpenedAt       time.Time         `json:"opened_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	State          State             `json:"state"`
	Suspicious     bool              `json:"suspicious"`

	// RecentIPs records the last few distinct validation IPs with
	// timestamps, used by the hijack-suspected rule (>3 distinct-IP
	// changes within an hour). Bounded independently of RecentActivity.
	RecentIPs []IPObservation `json:"recent_ips"`

	RecentActivity []ActivityEntry `json:"recent_activity"`
}

// IPObservation is one timestamped IP seen during session validation.
type IPObservation struct {
	IP string    `json:"ip"`
	At time.Time `json:"at"`
}

// IsActive reports whether the session is in the active state.
func (s *Session) IsActive() bool { return s.State == StateActive }

// OpenRequest is the input to Registry.Open.
type OpenRequest struct {
	UserID     kernel.UserID
	TenantID   kernel.TenantID
	IP         string
	UserAgent  string
	AccessJTI  string
	RefreshJTI string
	HardTTL    time.Duration
}

// ValidationIssue names one reason Validate flagged a session.
type ValidationIssue string

const (
	IssueIPChanged          ValidationIssue = "ip_changed"
	IssueUAFingerprintDrift ValidationIssue = "ua_fingerprint_drift"
	IssueHijackSuspected    ValidationIssue = "hijack_suspected"
	IssueExpired            ValidationIssue = "expired"
	IssueTerminated         ValidationIssue = "terminated"
)

// ValidationResult is Validate's outcome.
type ValidationResult struct {
	Valid   bool
	Issues  []ValidationIssue
	Session *Session
}
