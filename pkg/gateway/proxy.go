package gateway

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/manifesto-gateway/core/pkg/iam"
	"github.com/manifesto-gateway/core/pkg/kernel"
)

// streamingClient reads the upstream response body incrementally
// (StreamResponseBody) rather than buffering it whole, so SSE chunks can
// be relayed as they arrive instead of only after the upstream closes.
var streamingClient = &fasthttp.Client{StreamResponseBody: true}

// hopByHopHeaders never cross the proxy boundary in either direction.
// Host and Content-Length are re-derived by fasthttp from the target URI
// and body; the rest are connection-scoped by definition.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// upstreamErrorEnvelope is the standard error shape well-behaved backends
// emit; a parseable body is re-emitted under the gateway's own request id.
type upstreamErrorEnvelope struct {
	Error *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

const upstreamExcerptLimit = 500

// proxyHandler matches the request against the route table, attaches
// identity headers for authenticated routes, and forwards verbatim to the
// backend — unary by default, or chunk-by-chunk when streaming mode is
// triggered by the request (stream=true, a /stream path segment) or by a
// text/event-stream upstream response.
func (g *Gateway) proxyHandler(c *fiber.Ctx) error {
	route := g.routes.Match(c.Path())
	if route == nil {
		return fiber.NewError(fiber.StatusNotFound, "no route configured for this path")
	}

	rc, _ := c.Locals(requestContextLocal).(*kernel.RequestContext)
	if route.RequireAuth && !rc.Authenticated() {
		c.Set("WWW-Authenticate", "Bearer")
		return iam.ErrUnauthorized()
	}
	if route.RequiredPermission != "" && !rc.HasPermission(route.RequiredPermission) {
		return iam.ErrAccessDenied().WithDetail("required_permission", route.RequiredPermission)
	}

	targetURL := route.TargetBase + c.Path()
	if qs := string(c.Request().URI().QueryString()); qs != "" {
		targetURL += "?" + qs
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	// An SSE response is handed to streamSSE, whose stream writer runs after
	// this handler returns and releases resp itself once the relay ends.
	streaming := false
	defer func() {
		if !streaming {
			fasthttp.ReleaseResponse(resp)
		}
	}()

	c.Request().Header.CopyTo(&req.Header)
	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}
	req.SetRequestURI(targetURL)
	req.SetBody(c.Body())

	if rc.Authenticated() {
		req.Header.Set("X-User-Id", rc.Principal.UserID.String())
		req.Header.Set("X-Tenant-Id", rc.Principal.TenantID.String())
		req.Header.Set("X-User-Role", rc.Principal.Role)
		req.Header.Set("X-User-Email", rc.Principal.Email)
	}
	req.Header.Set("X-Request-Id", rc.RequestID)

	timeout := route.Timeout
	if timeout <= 0 {
		timeout = g.cfg.DefaultTimeout
	}

	// A streaming request skips the deadline: an SSE response legitimately
	// outlives any fixed timeout, and the client disconnecting is what
	// tears the relay down.
	var err error
	if wantsStream(c) {
		err = streamingClient.Do(req, resp)
	} else {
		err = streamingClient.DoTimeout(req, resp, timeout)
	}
	if err != nil {
		if err == fasthttp.ErrTimeout {
			return respondError(c, fiber.StatusGatewayTimeout, wireCodeDownstreamTimeout,
				"upstream request timed out", map[string]interface{}{"service": route.ServiceTag})
		}
		return respondError(c, fiber.StatusServiceUnavailable, wireCodeDownstreamDown,
			"upstream service is unreachable", map[string]interface{}{"service": route.ServiceTag})
	}

	resp.Header.VisitAll(func(key, value []byte) {
		k := string(key)
		for _, h := range hopByHopHeaders {
			if k == h {
				return
			}
		}
		if k == "Content-Length" {
			return
		}
		c.Set(k, string(value))
	})
	c.Set("X-Request-Id", rc.RequestID)

	contentType := string(resp.Header.ContentType())
	bodyStream := resp.BodyStream()
	if strings.HasPrefix(contentType, "text/event-stream") {
		streaming = true
		return g.streamSSE(c, resp)
	}

	body, err := io.ReadAll(bodyStream)
	if err != nil {
		return respondError(c, fiber.StatusBadGateway, wireCodeDownstreamDown,
			"upstream body read failed", map[string]interface{}{"service": route.ServiceTag})
	}

	if resp.StatusCode() >= 300 {
		return g.translateUpstreamError(c, resp.StatusCode(), body)
	}
	return c.Status(resp.StatusCode()).Send(body)
}

// wantsStream reports whether the client asked for streaming mode up
// front: an explicit stream=true query, a /stream path segment, or an SSE
// Accept header. An upstream that answers text/event-stream regardless is
// also streamed; this only decides whether a deadline applies.
func wantsStream(c *fiber.Ctx) bool {
	if c.Query("stream") == "true" {
		return true
	}
	path := c.Path()
	if strings.HasSuffix(path, "/stream") || strings.Contains(path, "/stream/") {
		return true
	}
	return strings.Contains(c.Get("Accept"), "text/event-stream")
}

// translateUpstreamError re-emits a backend error under the gateway's own
// request id. A body carrying the standard error envelope keeps its code,
// message, and details; anything else is wrapped as an internal-family
// error with a bounded excerpt of the upstream body.
func (g *Gateway) translateUpstreamError(c *fiber.Ctx, status int, body []byte) error {
	var parsed upstreamErrorEnvelope
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Code != "" {
		return respondError(c, status, parsed.Error.Code, parsed.Error.Message, parsed.Error.Details)
	}

	excerpt := string(body)
	if len(excerpt) > upstreamExcerptLimit {
		excerpt = excerpt[:upstreamExcerptLimit]
	}
	return respondError(c, status, wireCodeInternal, "upstream returned a non-conforming error", map[string]interface{}{
		"upstream_status": status,
		"upstream_body":   excerpt,
	})
}

// streamSSE relays resp's body stream to the client chunk by chunk as it
// arrives, holding no more than one chunk in memory, so upstream pauses
// propagate to the client as-is. The client disconnecting aborts the copy
// promptly since fiber's stream writer returns an error on a closed
// connection. resp is released when the relay ends.
func (g *Gateway) streamSSE(c *fiber.Ctx, resp *fasthttp.Response) error {
	bodyStream := resp.BodyStream()
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Status(resp.StatusCode())
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer fasthttp.ReleaseResponse(resp)
		buf := make([]byte, 4096)
		for {
			n, err := bodyStream.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return
				}
				if ferr := w.Flush(); ferr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	})
	return nil
}
