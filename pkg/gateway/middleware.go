package gateway

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/manifesto-gateway/core/pkg/iam"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit"
	"github.com/manifesto-gateway/core/pkg/iam/token"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// requestContextLocal is the fiber.Ctx Locals key for the *kernel.RequestContext.
const requestContextLocal = "request_context"

// identityHeaders are injected by the gateway for authenticated requests.
// Inbound values are discarded unconditionally — a client presenting its
// own X-User-Id must never reach a backend with it intact.
var identityHeaders = []string{"X-User-Id", "X-Tenant-Id", "X-User-Role", "X-User-Email"}

// adoptRequestID copies a request id minted by the requestid middleware
// onto the inbound request header, so every later read of X-Request-Id —
// envelope, log fields, upstream propagation — sees one value whether the
// client supplied it or the gateway minted it.
func adoptRequestID(c *fiber.Ctx) error {
	if c.Get("X-Request-Id") == "" {
		if rid, ok := c.Locals("request_id").(string); ok && rid != "" {
			c.Request().Header.Set("X-Request-Id", rid)
		}
	}
	return c.Next()
}

// securityHeaders strips inbound identity-header forgeries and sets a
// minimal hardening set on the response.
func securityHeaders(c *fiber.Ctx) error {
	for _, h := range identityHeaders {
		c.Request().Header.Del(h)
	}
	c.Set("X-Content-Type-Options", "nosniff")
	c.Set("X-Frame-Options", "DENY")
	return c.Next()
}

// rateLimitedAmbient checks only the global and ip scopes, used ahead of
// the auth endpoints (which run their own endpoint-scoped check internally).
func (g *Gateway) rateLimitedAmbient() fiber.Handler {
	return g.rateLimitWith(func(limits map[ratelimit.Scope]ratelimit.Limit) map[ratelimit.Scope]ratelimit.Limit {
		out := make(map[ratelimit.Scope]ratelimit.Limit, 2)
		if l, ok := limits[ratelimit.ScopeGlobal]; ok {
			out[ratelimit.ScopeGlobal] = l
		}
		if l, ok := limits[ratelimit.ScopeIP]; ok {
			out[ratelimit.ScopeIP] = l
		}
		return out
	})
}

// rateLimitedEndpoint checks every configured scope — used ahead of the
// catch-all proxy where no downstream service performs its own admission
// check. The endpoint scope is keyed by "METHOD /path" and only applies
// when the override map configures that key.
func (g *Gateway) rateLimitedEndpoint() fiber.Handler {
	return g.rateLimitWith(func(limits map[ratelimit.Scope]ratelimit.Limit) map[ratelimit.Scope]ratelimit.Limit {
		return limits
	})
}

// rateLimitWith resolves the request's effective limits (defaults scaled
// by the principal's role multiplier, plus any per-endpoint override) and
// runs the Limiter, setting X-RateLimit-* headers on every response and
// returning 429 with Retry-After on denial. The role multiplier and the
// user scope apply only when a principal is already attached; in the main
// pipeline this runs before authenticate, so requests there are limited by
// IP and unscaled defaults.
func (g *Gateway) rateLimitWith(selectLimits func(map[ratelimit.Scope]ratelimit.Limit) map[ratelimit.Scope]ratelimit.Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, role := "", ""
		if rc, ok := c.Locals(requestContextLocal).(*kernel.RequestContext); ok && rc.Authenticated() {
			userID = rc.Principal.UserID.String()
			role = rc.Principal.Role
		}

		endpoint := c.Method() + " " + c.Path()
		var override *ratelimit.Limit
		if o, ok := g.rl.EndpointOverrides[endpoint]; ok {
			override = &ratelimit.Limit{Requests: o.Requests, Window: o.Window}
		}
		limits := ratelimit.LimitsFor(g.defaults, override, role, g.rl.RoleMultiplier)

		decision := g.limiter.Admit(c.Context(), ratelimit.Request{
			IP:       c.IP(),
			UserID:   userID,
			Endpoint: endpoint,
			Limits:   selectLimits(limits),
		})

		for _, sr := range decision.Scopes {
			prefix := "X-RateLimit-" + capitalize(string(sr.Scope))
			c.Set(prefix+"-Limit", fmt.Sprintf("%d", sr.Limit))
			c.Set(prefix+"-Remaining", fmt.Sprintf("%d", sr.Remaining))
			c.Set(prefix+"-Reset", fmt.Sprintf("%d", sr.ResetAt.Unix()))
		}

		if !decision.Admitted {
			c.Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
			return ratelimit.ErrExceeded(decision)
		}
		return c.Next()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// authenticate extracts a bearer token, verifies it as an access token, and
// attaches a *kernel.RequestContext carrying the resolved Principal. Routes
// whose config does not require auth pass through with an anonymous
// context; proxyHandler re-checks RequireAuth for routes matched under the
// catch-all.
func (g *Gateway) authenticate(c *fiber.Ctx) error {
	route := g.routes.Match(c.Path())
	rc := &kernel.RequestContext{
		RequestID: c.Get("X-Request-Id"),
		OriginIP:  c.IP(),
		UserAgent: c.Get("User-Agent"),
	}

	if route == nil || !route.RequireAuth {
		c.Locals(requestContextLocal, rc)
		return c.Next()
	}

	authHeader := c.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		c.Set("WWW-Authenticate", "Bearer")
		return iam.ErrUnauthorized()
	}

	claims, err := g.tokens.Verify(c.Context(), parts[1], token.KindAccess)
	if err != nil {
		c.Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		return iam.ErrInvalidToken()
	}

	rc.Principal = &kernel.Principal{
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Role:        claims.Role,
		Email:       claims.Email,
		Permissions: claims.Permissions,
	}
	c.Locals(requestContextLocal, rc)
	return c.Next()
}
