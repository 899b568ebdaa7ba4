package config

import (
	"time"

	"github.com/manifesto-gateway/core/pkg/iam/scopes"
)

// RouteConfig is one entry in the Gateway Router's prefix table. The
// longest matching PathPrefix wins.
type RouteConfig struct {
	PathPrefix  string
	TargetBase  string
	RequireAuth bool

	// RequiredPermission, when set, additionally gates the route on the
	// authenticated principal's permission list (exact or ":*" wildcard).
	RequiredPermission string

	ServiceTag string
	Timeout    time.Duration
}

// GatewayConfig configures the Gateway Router.
type GatewayConfig struct {
	Port string

	// InternalPort serves the internal-only surface (credential selection
	// and probing). Bound separately so the public listener never exposes
	// decrypted secrets regardless of route-table mistakes.
	InternalPort string

	DefaultTimeout time.Duration
	Routes         []RouteConfig
}

func loadGatewayConfig() GatewayConfig {
	defaultTimeout := getEnvDuration("GATEWAY_DEFAULT_TIMEOUT", 30*time.Second)

	return GatewayConfig{
		Port:           getEnv("PORT", "8080"),
		InternalPort:   getEnv("INTERNAL_PORT", "8085"),
		DefaultTimeout: defaultTimeout,
		Routes: []RouteConfig{
			{PathPrefix: "/api/v1/admin", TargetBase: getEnv("ADMIN_SERVICE_URL", "http://admin-service:8081"), RequireAuth: true, RequiredPermission: scopes.GatewayAdmin, ServiceTag: "admin", Timeout: defaultTimeout},
			{PathPrefix: "/api/v1/chat", TargetBase: getEnv("CHAT_SERVICE_URL", "http://chat-service:8082"), RequireAuth: true, ServiceTag: "chat", Timeout: defaultTimeout},
			{PathPrefix: "/api/v1/memory", TargetBase: getEnv("MEMORY_SERVICE_URL", "http://memory-service:8083"), RequireAuth: true, ServiceTag: "memory", Timeout: defaultTimeout},
		},
	}
}

// CORSConfig configures the CORS preflight step of the gateway pipeline.
type CORSConfig struct {
	Origins []string
}

func loadCORSConfig() CORSConfig {
	return CORSConfig{
		Origins: getEnvStringSlice("CORS_ORIGINS", []string{"*"}),
	}
}
