package gateway

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/manifesto-gateway/core/pkg/asyncx"
	"github.com/manifesto-gateway/core/pkg/config"
	"github.com/manifesto-gateway/core/pkg/iam/authsvc"
)

type loginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// loginHandler implements POST /api/v1/auth/token.
func (g *Gateway) loginHandler(c *fiber.Ctx) error {
	var form loginForm
	if err := c.BodyParser(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	result, err := g.auth.Login(c.Context(), authsvc.LoginRequest{
		UsernameOrEmail: form.Username,
		Password:        form.Password,
		IP:              c.IP(),
		UserAgent:       c.Get("User-Agent"),
		RequestID:       c.Get("X-Request-Id"),
	})
	if err != nil {
		return err
	}

	return respondData(c, fiber.StatusOK, fiber.Map{
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
		"expires_at":    result.Tokens.ExpiresAt,
		"user_info": fiber.Map{
			"user_id":   result.User.UserID.String(),
			"tenant_id": result.User.TenantID.String(),
			"email":     result.User.Email,
			"username":  result.User.Username,
			"role":      result.User.Role,
		},
	})
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshHandler implements POST /api/v1/auth/refresh.
func (g *Gateway) refreshHandler(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil || body.RefreshToken == "" {
		return fiber.NewError(fiber.StatusBadRequest, "refresh_token is required")
	}

	pair, err := g.auth.Refresh(c.Context(), body.RefreshToken, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return err
	}

	return respondData(c, fiber.StatusOK, fiber.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt,
	})
}

type logoutBody struct {
	Token string `json:"token"`
}

// logoutHandler implements POST /api/v1/auth/logout. Accepts either a
// bearer header or a body token; absence of both is not an error.
func (g *Gateway) logoutHandler(c *fiber.Ctx) error {
	token := ""
	if auth := c.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		token = auth[7:]
	}
	if token == "" {
		var body logoutBody
		_ = c.BodyParser(&body)
		token = body.Token
	}

	_ = g.auth.Logout(c.Context(), token, c.IP())
	return respondData(c, fiber.StatusOK, fiber.Map{"logged_out": true})
}

const healthProbeTimeout = 2 * time.Second

// healthHandler implements GET /health: the gateway's own status plus a
// concurrent best-effort probe of every configured backend's /health.
func (g *Gateway) healthHandler(c *fiber.Ctx) error {
	routes := g.routes.All()
	statuses, _ := asyncx.Map(c.Context(), routes, func(ctx context.Context, r config.RouteConfig) (fiber.Map, error) {
		return fiber.Map{"service": r.ServiceTag, "status": probeHealth(r.TargetBase + "/health")}, nil
	})

	return respondData(c, fiber.StatusOK, fiber.Map{
		"status":      "healthy",
		"service":     "manifesto-gateway",
		"downstreams": statuses,
	})
}

func probeHealth(url string) string {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	if err := healthClient.DoTimeout(req, resp, healthProbeTimeout); err != nil {
		return "unreachable"
	}
	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		return "healthy"
	}
	return "degraded"
}

// healthClient is separate from streamingClient so health probes never
// contend with proxied traffic for idle connections.
var healthClient = &fasthttp.Client{}

func (g *Gateway) notFoundHandler(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusNotFound, "no route matches this path")
}
