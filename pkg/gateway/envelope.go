package gateway

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/manifesto-gateway/core/pkg/errx"
)

// Numeric wire codes, grouped by family: 1xxx input/ratelimit, 2xxx
// auth/authz, 3xxx resource, 4xxx timeout, 5xxx downstream/internal.
// Internals never see these — components return *errx.Error and the
// translation to a wire code happens only here, at the edge.
const (
	wireCodeInvalidInput      = "1001"
	wireCodeRateLimited       = "1005"
	wireCodeUnauthenticated   = "2001"
	wireCodeForbidden         = "2002"
	wireCodeNotFound          = "3001"
	wireCodeConflict          = "3002"
	wireCodeInvalidCredential = "3004"
	wireCodeDownstreamTimeout = "4003"
	wireCodeInternal          = "5003"
	wireCodeDownstreamDown    = "5004"
)

type envelopeError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type envelope struct {
	Success   bool           `json:"success"`
	Data      interface{}    `json:"data,omitempty"`
	Error     *envelopeError `json:"error,omitempty"`
	RequestID string         `json:"request_id"`
	Timestamp string         `json:"timestamp"`
}

func respondData(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(envelope{
		Success:   true,
		Data:      data,
		RequestID: c.Get("X-Request-Id"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func respondError(c *fiber.Ctx, status int, code, message string, details map[string]interface{}) error {
	return c.Status(status).JSON(envelope{
		Success:   false,
		Error:     &envelopeError{Code: code, Message: message, Details: details},
		RequestID: c.Get("X-Request-Id"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func errAsErrx(err error) (*errx.Error, bool) {
	e, ok := err.(*errx.Error)
	if ok && e.HTTPStatus == 0 {
		e.HTTPStatus = fiber.StatusInternalServerError
	}
	return e, ok
}

// registryWireCodes pins specific registry codes to their wire code where
// the errx.Type family alone would pick the wrong one. InvalidCredentials
// and UserNotFound both land on 3004 so the two stay externally
// indistinguishable.
var registryWireCodes = map[string]string{
	"AUTH_INVALID_CREDENTIALS": wireCodeInvalidCredential,
	"USERDIR_USER_NOT_FOUND":   wireCodeInvalidCredential,
	"AUTH_ACCOUNT_DISABLED":    wireCodeForbidden,
	"AUTH_INVALID_TOKEN":       wireCodeUnauthenticated,
	"IAM_UNAUTHORIZED":         wireCodeUnauthenticated,
	"IAM_INVALID_TOKEN":        wireCodeUnauthenticated,
	"IAM_ACCESS_DENIED":        wireCodeForbidden,
	"TOKEN_EXPIRED":            wireCodeUnauthenticated,
	"TOKEN_BAD_SIGNATURE":      wireCodeUnauthenticated,
	"TOKEN_WRONG_KIND":         wireCodeUnauthenticated,
	"TOKEN_REVOKED":            wireCodeUnauthenticated,
	"TOKEN_INVALID_TOKEN":      wireCodeUnauthenticated,
	"RATE_LIMIT_EXCEEDED":      wireCodeRateLimited,
	"POLICY_IP_DENIED":         wireCodeForbidden,
	"POLICY_AUTO_BANNED":       wireCodeForbidden,
	"USERDIR_UNREACHABLE":      wireCodeDownstreamDown,
}

// wireCodeFor maps a typed internal error to its numeric wire code:
// exact registry code first, errx.Type family as the fallback.
func wireCodeFor(e *errx.Error) string {
	if code, ok := registryWireCodes[e.Code]; ok {
		return code
	}
	switch e.Type {
	case errx.TypeValidation:
		return wireCodeInvalidInput
	case errx.TypeAuthorization:
		return wireCodeUnauthenticated
	case errx.TypeNotFound:
		return wireCodeNotFound
	case errx.TypeConflict:
		return wireCodeConflict
	case errx.TypeExternal:
		return wireCodeDownstreamDown
	default:
		return wireCodeInternal
	}
}

// wireCodeForStatus covers *fiber.Error and other untyped failures, where
// only an HTTP status is known.
func wireCodeForStatus(status int) string {
	switch {
	case status == fiber.StatusUnauthorized:
		return wireCodeUnauthenticated
	case status == fiber.StatusForbidden:
		return wireCodeForbidden
	case status == fiber.StatusNotFound:
		return wireCodeNotFound
	case status == fiber.StatusConflict:
		return wireCodeConflict
	case status == fiber.StatusTooManyRequests:
		return wireCodeRateLimited
	case status == fiber.StatusGatewayTimeout:
		return wireCodeDownstreamTimeout
	case status == fiber.StatusServiceUnavailable:
		return wireCodeDownstreamDown
	case status >= 400 && status < 500:
		return wireCodeInvalidInput
	default:
		return wireCodeInternal
	}
}
