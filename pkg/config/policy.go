package config

import "time"

// PasswordPolicyConfig bounds password validation.
type PasswordPolicyConfig struct {
	MinLength          int
	MaxLength          int
	RequireUpper       bool
	RequireLower       bool
	RequireDigit       bool
	RequireSpecial     bool
	SpecialCharSet     string
	CommonPasswordDeny []string
}

// IPPolicyConfig bounds admission by IP.
type IPPolicyConfig struct {
	DenyCIDRs    []string
	AllowCIDRs   []string
	AllowListExclusive bool

	AutoBanEnabled  bool
	AutoBanThreshold int
	AutoBanDuration  time.Duration
	AutoBanCounterTTL time.Duration
}

// PolicyConfig configures the Policy Engine. Mirrors the persisted
// single-document-with-bounds-checked-updates model; these are the
// validated defaults loaded on first read when no document exists yet.
type PolicyConfig struct {
	Password PasswordPolicyConfig
	IP       IPPolicyConfig

	MaxLoginAttempts int
	RetentionDays    int
}

func loadPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Password: PasswordPolicyConfig{
			MinLength:      getEnvInt("PASSWORD_MIN_LENGTH", 8),
			MaxLength:      getEnvInt("PASSWORD_MAX_LENGTH", 128),
			RequireUpper:   getEnvBool("PASSWORD_REQUIRE_UPPER", true),
			RequireLower:   getEnvBool("PASSWORD_REQUIRE_LOWER", true),
			RequireDigit:   getEnvBool("PASSWORD_REQUIRE_DIGIT", true),
			RequireSpecial: getEnvBool("PASSWORD_REQUIRE_SPECIAL", true),
			SpecialCharSet: getEnv("PASSWORD_SPECIAL_CHARSET", "!@#$%^&*()-_=+[]{};:,.<>/?"),
			CommonPasswordDeny: getEnvStringSlice("PASSWORD_COMMON_DENY_LIST", []string{
				"password", "123456", "12345678", "qwerty", "letmein", "admin123",
			}),
		},
		IP: IPPolicyConfig{
			DenyCIDRs:         getEnvStringSlice("IP_DENY_CIDRS", nil),
			AllowCIDRs:        getEnvStringSlice("IP_ALLOW_CIDRS", nil),
			AllowListExclusive: getEnvBool("IP_ALLOW_LIST_EXCLUSIVE", false),
			AutoBanEnabled:    getEnvBool("IP_AUTO_BAN_ENABLED", true),
			AutoBanThreshold:  getEnvInt("MAX_LOGIN_ATTEMPTS", 10),
			AutoBanDuration:   getEnvDuration("IP_AUTO_BAN_DURATION", time.Hour),
			AutoBanCounterTTL: getEnvDuration("IP_AUTO_BAN_COUNTER_TTL", time.Hour),
		},
		MaxLoginAttempts: getEnvInt("MAX_LOGIN_ATTEMPTS", 10),
		RetentionDays:    getEnvInt("POLICY_RETENTION_DAYS", 90),
	}
}
