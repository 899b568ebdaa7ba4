package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/manifesto-gateway/core/pkg/logx"
)

// Limiter evaluates the four composed scopes over a Window. Never fails
// closed: a Window error is logged and treated as admitted —
// availability over strict enforcement when the store is down.
type Limiter struct {
	window Window
	log    *logx.Logger
}

// NewLimiter builds a Limiter over window.
func NewLimiter(window Window, log *logx.Logger) *Limiter {
	return &Limiter{window: window, log: log}
}

// scopeOrder is fixed: global, ip, user, endpoint. The first denial
// short-circuits evaluation of the remaining scopes.
var scopeOrder = []Scope{ScopeGlobal, ScopeIP, ScopeUser, ScopeEndpoint}

// Admit evaluates req's configured scopes in order and returns the
// composed Decision.
func (l *Limiter) Admit(ctx context.Context, req Request) Decision {
	now := time.Now().UTC()
	results := make([]ScopeResult, 0, len(scopeOrder))

	for _, scope := range scopeOrder {
		limit, ok := req.Limits[scope]
		if !ok || limit.Requests <= 0 {
			continue
		}
		if scope == ScopeUser && req.UserID == "" {
			continue
		}

		key := l.keyFor(scope, req)
		count, admitted, err := l.window.Admit(ctx, key, limit.Requests, limit.Window, now)
		if err != nil {
			if l.log != nil {
				l.log.WithFields(logx.Fields{
					"scope": string(scope), "key": key, "error": err.Error(),
				}).Warn("ratelimit: window check failed, admitting by fail-open policy")
			}
			continue
		}

		remaining := limit.Requests - count
		if remaining < 0 {
			remaining = 0
		}
		result := ScopeResult{
			Scope:     scope,
			Limit:     limit.Requests,
			Count:     count,
			Remaining: remaining,
			ResetAt:   now.Add(limit.Window),
		}
		results = append(results, result)

		if !admitted {
			return Decision{
				Admitted:    false,
				DeniedScope: scope,
				RetryAfter:  limit.Window,
				Scopes:      results,
			}
		}
	}

	return Decision{Admitted: true, Scopes: results}
}

// keyFor builds the scope-and-identity key the window is evaluated under.
func (l *Limiter) keyFor(scope Scope, req Request) string {
	switch scope {
	case ScopeGlobal:
		return "ratelimit:global"
	case ScopeIP:
		return fmt.Sprintf("ratelimit:ip:%s", req.IP)
	case ScopeUser:
		return fmt.Sprintf("ratelimit:user:%s", req.UserID)
	case ScopeEndpoint:
		identity := req.UserID
		if identity == "" {
			identity = req.IP
		}
		return fmt.Sprintf("ratelimit:endpoint:%s:%s", req.Endpoint, identity)
	default:
		return fmt.Sprintf("ratelimit:unknown:%s", scope)
	}
}

// LimitsFor resolves the effective per-scope limits for one request,
// applying the endpoint override map and role multiplier from
// config.RateLimitConfig. Kept here (not in config) since it is
// request-shaped policy, not static configuration.
func LimitsFor(defaults map[Scope]Limit, endpointOverride *Limit, role string, roleMultiplier map[string]float64) map[Scope]Limit {
	out := make(map[Scope]Limit, len(defaults)+1)
	mult := roleMultiplier[role]
	if mult <= 0 {
		mult = 1.0
	}
	for scope, limit := range defaults {
		scaled := limit
		scaled.Requests = int(float64(limit.Requests) * mult)
		out[scope] = scaled
	}
	if endpointOverride != nil {
		out[ScopeEndpoint] = *endpointOverride
	}
	return out
}
