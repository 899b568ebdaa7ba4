// Package gateway implements the Gateway Router: the edge HTTP surface
// that admits, authenticates, and proxies every request, plus the
// internal-only surface serving decrypted credential selection to trusted
// callers. Every gateway-originated response uses one JSON envelope with
// a numeric wire code; internals never stringify codes themselves.
package gateway

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/manifesto-gateway/core/pkg/config"
	"github.com/manifesto-gateway/core/pkg/iam/authsvc"
	"github.com/manifesto-gateway/core/pkg/iam/ratelimit"
	"github.com/manifesto-gateway/core/pkg/iam/token"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// Gateway composes the collaborators the pipeline drives at each step:
// rate-limit admission, token verification, and routing/proxying.
type Gateway struct {
	cfg      config.GatewayConfig
	cors     config.CORSConfig
	auth     *authsvc.Service
	tokens   *token.Service
	limiter  *ratelimit.Limiter
	rl       config.RateLimitConfig
	defaults map[ratelimit.Scope]ratelimit.Limit
	routes   *RouteTable
	log      *logx.Logger
}

// New builds a Gateway. Default per-scope limits derive from rlCfg; the
// per-endpoint override map and role multipliers apply per request.
func New(
	cfg config.GatewayConfig,
	corsCfg config.CORSConfig,
	auth *authsvc.Service,
	tokens *token.Service,
	limiter *ratelimit.Limiter,
	rlCfg config.RateLimitConfig,
	log *logx.Logger,
) *Gateway {
	return &Gateway{
		cfg:     cfg,
		cors:    corsCfg,
		auth:    auth,
		tokens:  tokens,
		limiter: limiter,
		rl:      rlCfg,
		defaults: map[ratelimit.Scope]ratelimit.Limit{
			ratelimit.ScopeGlobal: {Requests: rlCfg.Global.Requests, Window: rlCfg.Global.Window},
			ratelimit.ScopeIP:     {Requests: rlCfg.IP.Requests, Window: rlCfg.IP.Window},
			ratelimit.ScopeUser:   {Requests: rlCfg.User.Requests, Window: rlCfg.User.Window},
		},
		routes: NewRouteTable(cfg.Routes),
		log:    log,
	}
}

// BuildApp wires the full request pipeline onto a fresh Fiber app:
// request-id → CORS → security headers → logger → rate-limit admission →
// route match → auth → proxy → error translation.
func (g *Gateway) BuildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "manifesto-gateway",
		DisableStartupMessage: true,
		ErrorHandler:          g.errorHandler,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	app.Use(requestid.New(requestid.Config{
		Header:     "X-Request-Id",
		Generator:  func() string { return uuid.NewString() },
		ContextKey: "request_id",
	}))
	app.Use(adoptRequestID)

	app.Use(cors.New(cors.Config{
		AllowOrigins:  joinOrigins(g.cors.Origins),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-Id",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-Id",
	}))

	app.Use(securityHeaders)

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-Id}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	app.Get("/health", g.healthHandler)

	// The auth endpoints only get the ambient global+ip admission here —
	// the login endpoint's own tighter (login, ip) bucket is checked a
	// second, endpoint-scoped time inside authsvc.Service.Login itself,
	// before any directory lookup happens.
	auth := app.Group("/api/v1/auth")
	auth.Post("/token", g.rateLimitedAmbient(), g.loginHandler)
	auth.Post("/refresh", g.rateLimitedAmbient(), g.refreshHandler)
	auth.Post("/logout", g.logoutHandler)

	app.Use(g.rateLimitedEndpoint(), g.authenticate, g.proxyHandler)

	app.Use(g.notFoundHandler)

	return app
}

func joinOrigins(origins []string) string {
	out := ""
	for i, o := range origins {
		if i > 0 {
			out += ","
		}
		out += o
	}
	return out
}

// Run starts app on cfg.Port and blocks until a termination signal
// arrives, then drains with a bounded shutdown timeout.
func (g *Gateway) Run(app *fiber.App) {
	go func() {
		if err := app.Listen(":" + g.cfg.Port); err != nil {
			g.log.WithFields(logx.Fields{"error": err.Error()}).Error("gateway: listener stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	g.log.WithFields(logx.Fields{}).Info("gateway: shutting down")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		g.log.WithFields(logx.Fields{"error": err.Error()}).Error("gateway: forced shutdown")
	}
}
