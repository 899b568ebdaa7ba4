package config

import "time"

// ScopeLimit is a (limit, horizon) pair for one rate-limit scope.
type ScopeLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimitConfig configures the rate limiter: default per-scope
// limits, tighter overrides for sensitive endpoints, and an optional
// per-role multiplier.
type RateLimitConfig struct {
	Global ScopeLimit
	IP     ScopeLimit
	User   ScopeLimit

	// EndpointOverrides maps "METHOD /path" to a tighter ScopeLimit.
	// Login, registration, and password-reset stay tighter than the
	// default — those are the endpoints worth hammering.
	EndpointOverrides map[string]ScopeLimit

	// RoleMultiplier scales the effective limit for a given role name
	// (e.g. {"admin": 5} quintuples admin limits). Missing roles default to 1.
	RoleMultiplier map[string]float64
}

func loadRateLimitConfig() RateLimitConfig {
	defaultRequests := getEnvInt("RATE_LIMIT_REQUESTS", 100)
	defaultWindow := getEnvDuration("RATE_LIMIT_WINDOW", time.Minute)

	return RateLimitConfig{
		Global: ScopeLimit{Requests: defaultRequests * 10, Window: defaultWindow},
		IP:     ScopeLimit{Requests: defaultRequests, Window: defaultWindow},
		User:   ScopeLimit{Requests: defaultRequests, Window: defaultWindow},
		EndpointOverrides: map[string]ScopeLimit{
			"POST /api/v1/auth/token":    {Requests: getEnvInt("RATE_LIMIT_LOGIN_REQUESTS", 10), Window: getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", time.Minute)},
			"POST /api/v1/auth/register": {Requests: getEnvInt("RATE_LIMIT_REGISTER_REQUESTS", 5), Window: getEnvDuration("RATE_LIMIT_REGISTER_WINDOW", time.Minute)},
			"POST /api/v1/auth/password-reset": {Requests: getEnvInt("RATE_LIMIT_RESET_REQUESTS", 5), Window: getEnvDuration("RATE_LIMIT_RESET_WINDOW", time.Minute)},
		},
		RoleMultiplier: map[string]float64{
			"admin": getEnvFloat("RATE_LIMIT_ADMIN_MULTIPLIER", 3.0),
			"owner": getEnvFloat("RATE_LIMIT_OWNER_MULTIPLIER", 3.0),
		},
	}
}
