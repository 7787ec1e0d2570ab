// Package v1 exposes the public collection API consumed by the tracking
// snippet.
package v1

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"glance/internal/collect"
	"glance/internal/websites"
)

const errInvalidRequest = "Invalid request"

// CollectHandler terminates POST and OPTIONS on the collection endpoint.
type CollectHandler struct {
	pipeline *collect.Pipeline
	origins  *websites.AllowedOrigins
	logger   *slog.Logger
	timeout  time.Duration
}

// NewCollectHandler wires the handler to the ingestion pipeline. The
// timeout bounds storage work per request.
func NewCollectHandler(pipeline *collect.Pipeline, origins *websites.AllowedOrigins, logger *slog.Logger, timeout time.Duration) *CollectHandler {
	return &CollectHandler{
		pipeline: pipeline,
		origins:  origins,
		logger:   logger,
		timeout:  timeout,
	}
}

// Collect handles one beacon. Success returns an empty 200; silent drops
// return 204 so probing clients cannot distinguish filtered traffic from
// accepted traffic by error shape.
func (h *CollectHandler) Collect(c *fiber.Ctx) error {
	var beacon collect.Beacon
	if err := c.BodyParser(&beacon); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	userAgent := c.Get("User-Agent")
	if forwardedUA := c.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}

	req := collect.Request{
		Beacon:         beacon,
		IPAddress:      getClientIP(c),
		UserAgent:      userAgent,
		AcceptLanguage: c.Get("Accept-Language"),
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	outcome, err := h.pipeline.Process(ctx, req)
	switch outcome {
	case collect.OutcomeAccepted:
		return c.SendStatus(http.StatusOK)
	case collect.OutcomeDropped:
		return c.SendStatus(http.StatusNoContent)
	case collect.OutcomeRateLimited:
		return c.SendStatus(http.StatusTooManyRequests)
	case collect.OutcomeBadRequest:
		h.logger.Debug("Rejected beacon", slog.Any("error", err))
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	default:
		h.logger.Error("Failed to process beacon", slog.Any("error", err))
		return c.SendStatus(http.StatusInternalServerError)
	}
}

// Preflight answers the CORS preflight. Only origins whose hostname
// matches a registered, non-archived website domain are admitted.
func (h *CollectHandler) Preflight(c *fiber.Ctx) error {
	origin := c.Get("Origin")
	if origin == "" || !h.origins.IsAllowed(origin) {
		return c.SendStatus(http.StatusForbidden)
	}

	c.Set("Access-Control-Allow-Origin", origin)
	c.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Set("Access-Control-Allow-Headers", "Content-Type")
	c.Set("Access-Control-Max-Age", "86400")
	return c.SendStatus(http.StatusNoContent)
}
