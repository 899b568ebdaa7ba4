package config

import "time"

// SessionConfig configures the session registry.
type SessionConfig struct {
	// MaxConcurrent is the per-user concurrency cap; the
	// oldest active session is evicted once the cap is reached.
	MaxConcurrent int

	// SSOMode, when true, makes a new session terminate all others
	// instead of evicting only the oldest.
	SSOMode bool

	IdleTimeout time.Duration
	HardTTL     time.Duration

	// CleanupInterval paces the periodic expiry sweep.
	CleanupInterval time.Duration

	// RecentActivityCap bounds the per-session recent-activity ring
	// buffer (most-recent N entries).
	RecentActivityCap int
	RecentActivityTTL time.Duration

	// HijackIPChangeThreshold / Window: more than this many distinct-IP
	// validations within Window flags the session as hijacking-suspected.
	HijackIPChangeThreshold int
	HijackIPChangeWindow    time.Duration

	// UASimilarityThreshold is the minimum Jaccard similarity over
	// tokenized user-agent strings before a session is treated as a
	// fingerprint mismatch.
	UASimilarityThreshold float64
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		MaxConcurrent:           getEnvInt("SESSION_MAX_CONCURRENT", 5),
		SSOMode:                 getEnvBool("SESSION_SSO_MODE", false),
		IdleTimeout:             getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		HardTTL:                 getEnvDuration("SESSION_HARD_TTL", 24*time.Hour),
		CleanupInterval:         getEnvDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),
		RecentActivityCap:       getEnvInt("SESSION_RECENT_ACTIVITY_CAP", 100),
		RecentActivityTTL:       getEnvDuration("SESSION_RECENT_ACTIVITY_TTL", 7*24*time.Hour),
		HijackIPChangeThreshold: getEnvInt("SESSION_HIJACK_IP_CHANGE_THRESHOLD", 3),
		HijackIPChangeWindow:    getEnvDuration("SESSION_HIJACK_IP_CHANGE_WINDOW", time.Hour),
		UASimilarityThreshold:   getEnvFloat("SESSION_UA_SIMILARITY_THRESHOLD", 0.8),
	}
}
