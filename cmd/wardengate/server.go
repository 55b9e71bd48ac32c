package main

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wardengate/wardengate/pkg/gateway"
)

const maxBatchSize = 100

// Text is a pointer so the handler can distinguish an absent "text" key
// (malformed request, 400) from an explicitly empty or whitespace-only
// string (a legitimate input that Guard's own rule 1 resolves to an
// allow/none Verdict, not a 400).
type inspectRequest struct {
	Text    *string           `json:"text"`
	Context map[string]string `json:"context,omitempty"`
}

type inspectResponse struct {
	gateway.Verdict
	RequestID string `json:"request_id"`
}

// serve exposes the sync, batch, health, and metrics endpoints of spec §6
// over fiber v3, grounded on the teacher's go.mod fiber dependency (which
// the teacher's retrieved pack never actually wires into a server file).
func serve(addr string, orch *gateway.Orchestrator) error {
	app := fiber.New(fiber.Config{
		AppName: "wardengate",
	})

	app.Post("/v1/inspect", func(c fiber.Ctx) error {
		var req inspectRequest
		if err := c.Bind().Body(&req); err != nil || req.Text == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "malformed input: missing or non-UTF-8 text",
			})
		}
		rid := uuid.NewString()
		v := orch.Evaluate(c.Context(), gateway.Request{
			Text:          *req.Text,
			Context:       req.Context,
			CorrelationID: rid,
		})
		return c.JSON(inspectResponse{Verdict: v, RequestID: rid})
	})

	app.Post("/v1/inspect/batch", func(c fiber.Ctx) error {
		var reqs []inspectRequest
		if err := c.Bind().Body(&reqs); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "malformed input: expected a JSON array",
			})
		}
		if len(reqs) > maxBatchSize {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "batch too large",
			})
		}
		out := make([]inspectResponse, len(reqs))
		for i, req := range reqs {
			if req.Text == nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": fmt.Sprintf("malformed input: missing text at batch index %d", i),
				})
			}
			rid := uuid.NewString()
			v := orch.Evaluate(c.Context(), gateway.Request{
				Text:          *req.Text,
				Context:       req.Context,
				CorrelationID: rid,
			})
			out[i] = inspectResponse{Verdict: v, RequestID: rid}
		}
		return c.JSON(out)
	})

	app.Get("/healthz", func(c fiber.Ctx) error {
		status := orch.Health()
		code := fiber.StatusOK
		if !status.OK {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(status)
	})

	app.Get("/metrics", adaptPromHandler(orch))

	return app.Listen(addr)
}

// adaptPromHandler bridges promhttp's net/http handler into fiber v3 via
// the framework's own net/http adaptor middleware, rather than hand-
// rolling a fasthttp<->net/http bridge.
func adaptPromHandler(orch *gateway.Orchestrator) fiber.Handler {
	h := promhttp.HandlerFor(orch.Metrics().Registry, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(h)
}
