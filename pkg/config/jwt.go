package config

import "time"

// JWTConfig configures the token service.
type JWTConfig struct {
	Algorithm  string // "HS256" | "RS256"
	Secret     string // HMAC signing secret (HS256)

	// RSAPrivateKeyPEM / RSAPublicKeyPEM configure RS256. If empty and
	// Algorithm is RS256, a process-lifetime keypair is generated at
	// startup (see pkg/iam/token) — an operational hazard documented in
	// DESIGN.md and refused outright in production by Config.Validate.
	RSAPrivateKeyPEM string
	RSAPublicKeyPEM  string

	Issuer   string
	Audience string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

func loadJWTConfig() JWTConfig {
	return JWTConfig{
		Algorithm:        getEnv("JWT_ALGORITHM", "HS256"),
		Secret:           getEnv("SECRET_KEY", ""),
		RSAPrivateKeyPEM: getEnv("JWT_RSA_PRIVATE_KEY", ""),
		RSAPublicKeyPEM:  getEnv("JWT_RSA_PUBLIC_KEY", ""),
		Issuer:           getEnv("JWT_ISSUER", "gateway-core"),
		Audience:         getEnv("JWT_AUDIENCE", "gateway-core-api"),
		AccessTokenTTL:   time.Duration(getEnvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
		RefreshTokenTTL:  time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
	}
}
