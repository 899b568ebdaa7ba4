package config

import "time"

// UserDirectoryConfig selects where the login orchestrator resolves users:
// "http" consults an external directory service, "postgres" reads the
// co-located users/roles tables directly.
type UserDirectoryConfig struct {
	Mode    string // "http" | "postgres"
	BaseURL string
	Timeout time.Duration
}

func loadUserDirectoryConfig() UserDirectoryConfig {
	return UserDirectoryConfig{
		Mode:    getEnv("USER_DIRECTORY_MODE", "http"),
		BaseURL: getEnv("USER_DIRECTORY_URL", "http://user-directory:8090"),
		Timeout: getEnvDuration("USER_DIRECTORY_TIMEOUT", 5*time.Second),
	}
}
