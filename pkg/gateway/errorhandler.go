package gateway

import (
	"github.com/gofiber/fiber/v2"

	"github.com/manifesto-gateway/core/pkg/errx"
	"github.com/manifesto-gateway/core/pkg/logx"
)

// errorHandler is the single place the internal error taxonomy becomes
// HTTP: every *errx.Error and *fiber.Error that escapes a handler lands
// here and is emitted as the JSON envelope with a numeric wire code. No
// stack traces leave the process — the request id is the correlation
// handle for support lookup.
func (g *Gateway) errorHandler(c *fiber.Ctx, err error) error {
	g.log.WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"request_id": c.Get("X-Request-Id"),
	}).WithError(err).Error("gateway: request error")

	if e, ok := err.(*errx.Error); ok {
		status := e.HTTPStatus
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		if status == fiber.StatusUnauthorized && c.GetRespHeader("WWW-Authenticate") == "" {
			c.Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
		return respondError(c, status, wireCodeFor(e), e.Message, e.Details)
	}

	if e, ok := err.(*fiber.Error); ok {
		if e.Code == fiber.StatusUnauthorized {
			c.Set("WWW-Authenticate", "Bearer")
		}
		return respondError(c, e.Code, wireCodeForStatus(e.Code), e.Message, nil)
	}

	return respondError(c, fiber.StatusInternalServerError, wireCodeInternal, "internal server error", nil)
}
