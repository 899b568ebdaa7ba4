// Package policy implements the policy engine: password strength
// scoring, IP allow/deny admission with CIDR matching, and auto-ban on
// failed-login bursts, backed by a single versioned policy document.
package policy

import "time"

// StrengthLevel buckets a password's 0-100 score into a human label.
type StrengthLevel string

const (
	LevelVeryWeak  StrengthLevel = "very_weak"
	LevelWeak      StrengthLevel = "weak"
	LevelFair      StrengthLevel = "fair"
	LevelStrong    StrengthLevel = "strong"
	LevelExcellent StrengthLevel = "excellent"
)

// PasswordPolicy bounds password validation. Mirrors config.PasswordPolicyConfig.
type PasswordPolicy struct {
	MinLength          int
	MaxLength          int
	RequireUpper       bool
	RequireLower       bool
	RequireDigit       bool
	RequireSpecial     bool
	SpecialCharSet     string
	CommonPasswordDeny []string
}

// IPPolicy bounds IP admission. Mirrors config.IPPolicyConfig.
type IPPolicy struct {
	DenyCIDRs          []string
	AllowCIDRs         []string
	AllowListExclusive bool

	AutoBanEnabled    bool
	AutoBanThreshold  int
	AutoBanDuration   time.Duration
	AutoBanCounterTTL time.Duration
}

// Document is the single versioned policy document persisted under a
// fixed key. Loaded lazily: a missing document is initialized to a
// defaults object on first read.
type Document struct {
	Password         PasswordPolicy
	IP               IPPolicy
	MaxLoginAttempts int
	SessionTimeoutMin int
	RetentionDays    int
	UpdatedAt        time.Time
}

// PasswordValidation is the outcome of validating a candidate password.
type PasswordValidation struct {
	Valid  bool
	Errors []string
	Score  int
	Level  StrengthLevel
}

// IPAdmission is the outcome of evaluating one IP against an IPPolicy.
type IPAdmission struct {
	Allowed bool
	Reason  string
}

// Bounds enforced by Engine.Update before a document is persisted.
const (
	MinPasswordLengthBound = 4
	MaxPasswordLengthBound = 256
	MinSessionTimeoutMin   = 5
	MaxSessionTimeoutMin   = 1440
	MinFailedAttempts      = 1
	MaxFailedAttempts      = 50
	MinRetentionDays       = 1
	MaxRetentionDays       = 2555
)
