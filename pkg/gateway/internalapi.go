package gateway

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/manifesto-gateway/core/pkg/iam/credential"
	"github.com/manifesto-gateway/core/pkg/iam/secret"
	"github.com/manifesto-gateway/core/pkg/kernel"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// InternalAPI is the trusted-network-only surface: it returns decrypted
// credentials to internal service callers that have already asserted a
// tenant context. It binds to its own port and must never be reachable
// through the public gateway's route table.
type InternalAPI struct {
	selector *credential.Selector
	prober   *credential.Prober
	log      *logx.Logger
}

// NewInternalAPI builds an InternalAPI.
func NewInternalAPI(selector *credential.Selector, prober *credential.Prober, log *logx.Logger) *InternalAPI {
	return &InternalAPI{selector: selector, prober: prober, log: log}
}

// BuildApp wires the internal endpoints onto a fresh Fiber app sharing the
// public surface's envelope and error translation.
func (a *InternalAPI) BuildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "manifesto-gateway-internal",
		DisableStartupMessage: true,
		ErrorHandler:          a.errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:     "X-Request-Id",
		Generator:  func() string { return uuid.NewString() },
		ContextKey: "request_id",
	}))
	app.Use(adoptRequestID)

	app.Get("/internal/suppliers/:tenant/available", a.availableHandler)
	app.Post("/internal/suppliers/:id/test", a.testHandler)
	app.Get("/health", func(c *fiber.Ctx) error {
		return respondData(c, fiber.StatusOK, fiber.Map{"status": "healthy", "service": "manifesto-gateway-internal"})
	})

	return app
}

func (a *InternalAPI) errorHandler(c *fiber.Ctx, err error) error {
	a.log.WithFields(logx.Fields{
		"path":       c.Path(),
		"request_id": c.Get("X-Request-Id"),
	}).WithError(err).Error("internal-api: request error")

	if e, ok := errAsErrx(err); ok {
		return respondError(c, e.HTTPStatus, wireCodeFor(e), e.Message, e.Details)
	}
	if e, ok := err.(*fiber.Error); ok {
		return respondError(c, e.Code, wireCodeForStatus(e.Code), e.Message, nil)
	}
	return respondError(c, fiber.StatusInternalServerError, wireCodeInternal, "internal server error", nil)
}

// credentialResponse is the wire shape of one decrypted credential. Kept
// distinct from credential.CredentialView so the internal wire format can
// evolve without touching the domain type.
type credentialResponse struct {
	ID               string                 `json:"id"`
	Provider         string                 `json:"provider"`
	DisplayName      string                 `json:"display_name"`
	Secret           string                 `json:"secret"`
	EndpointOverride *string                `json:"endpoint_override,omitempty"`
	ModelConfig      map[string]interface{} `json:"model_config,omitempty"`
	LastUsedAt       *time.Time             `json:"last_used_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// availableHandler implements GET /internal/suppliers/:tenant/available.
// Query params: strategy (default first_available), only_active (default
// true), providers (comma-separated filter).
func (a *InternalAPI) availableHandler(c *fiber.Ctx) error {
	tenantID := kernel.NewTenantID(c.Params("tenant"))

	strategy := credential.Strategy(c.Query("strategy", string(credential.StrategyFirstAvailable)))
	onlyActive := c.Query("only_active", "true") != "false"

	var providers []secret.Provider
	if raw := c.Query("providers"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				providers = append(providers, secret.Provider(p))
			}
		}
	}

	views, err := a.selector.SelectAll(c.Context(), credential.SelectRequest{
		TenantID:   tenantID,
		Strategy:   strategy,
		OnlyActive: onlyActive,
		Providers:  providers,
	})
	if err != nil {
		return err
	}

	out := make([]credentialResponse, 0, len(views))
	for _, v := range views {
		out = append(out, credentialResponse{
			ID:               v.ID.String(),
			Provider:         string(v.Provider),
			DisplayName:      v.DisplayName,
			Secret:           v.Secret,
			EndpointOverride: v.EndpointOverride,
			ModelConfig:      v.ModelConfig,
			LastUsedAt:       v.LastUsedAt,
			CreatedAt:        v.CreatedAt,
		})
	}

	total := len(out)
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	size := c.QueryInt("page_size", total)
	if size < 1 {
		size = total
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return respondData(c, fiber.StatusOK, kernel.NewPaginated(out[start:end], page, size, total))
}

type testBody struct {
	TenantID  string `json:"tenant_id"`
	TestType  string `json:"test_type"`
	ModelName string `json:"model_name"`
}

// testHandler implements POST /internal/suppliers/:id/test.
func (a *InternalAPI) testHandler(c *fiber.Ctx) error {
	var body testBody
	if err := c.BodyParser(&body); err != nil || body.TenantID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
	}

	testType := credential.TestType(body.TestType)
	if testType == "" {
		testType = credential.TestTypeModelList
	}

	result := a.prober.Test(c.Context(), credential.TestRequest{
		CredentialID: kernel.NewCredentialID(c.Params("id")),
		TenantID:     kernel.NewTenantID(body.TenantID),
		TestType:     testType,
		ModelName:    body.ModelName,
	})

	return respondData(c, fiber.StatusOK, fiber.Map{
		"success":  result.Success,
		"outcome":  string(result.Outcome),
		"ms":       result.DurationMS,
		"error":    result.Error,
		"details":  result.Details,
	})
}

// Run starts the internal listener on port; unlike the public surface it
// has no signal handling of its own — the caller owns process lifecycle.
func (a *InternalAPI) Run(app *fiber.App, port string) {
	if err := app.Listen(":" + port); err != nil {
		a.log.WithFields(logx.Fields{"error": err.Error()}).Error("internal-api: listener stopped")
	}
}
