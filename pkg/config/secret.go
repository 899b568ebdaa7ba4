package config

// SecretConfig configures the secret store's at-rest encryption.
type SecretConfig struct {
	// MasterKey backs the symmetric AES-256-GCM cipher used to encrypt
	// provider credential secrets. Tenant-independent, process config only.
	MasterKey string

	// PgcryptoKey is a second required secret: a
	// 32+ byte secret reserved for the relational store's own field-level
	// encryption primitive (out of scope here; validated only).
	PgcryptoKey string
}

func loadSecretConfig() SecretConfig {
	return SecretConfig{
		MasterKey:   getEnv("SECRET_KEY", ""),
		PgcryptoKey: getEnv("PGCRYPTO_KEY", ""),
	}
}
