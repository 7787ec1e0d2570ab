// Package http holds the reporting endpoints served to dashboards.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"glance/internal/analytics"
	"glance/internal/timeframe"
)

const (
	defaultBreakdownLimit = 10
	maxBreakdownLimit     = 100
)

// MetricsHandler serves the aggregated dashboard payload.
type MetricsHandler struct {
	engine *analytics.Engine
	logger *slog.Logger
}

// NewMetricsHandler wires the handler to the aggregation engine.
func NewMetricsHandler(engine *analytics.Engine, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{engine: engine, logger: logger}
}

// Metrics handles GET /api/v1/metrics?websiteId&period&limit. Unknown
// period labels fall back to the last seven days.
func (h *MetricsHandler) Metrics(c *fiber.Ctx) error {
	websiteID, err := strconv.ParseUint(c.Query("websiteId"), 10, 64)
	if err != nil || websiteID == 0 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid websiteId"})
	}

	tf, err := timeframe.Parse(c.Query("period"), time.Now())
	if err != nil {
		tf, _ = timeframe.Parse(string(timeframe.RangeLabelLast7Days), time.Now())
	}

	limit := c.QueryInt("limit", defaultBreakdownLimit)
	if limit < 1 || limit > maxBreakdownLimit {
		limit = defaultBreakdownLimit
	}

	overview, err := h.engine.Overview(c.Context(), uint(websiteID), tf, limit)
	if err != nil {
		h.logger.Error("Failed to build overview",
			slog.Uint64("websiteId", websiteID),
			slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute metrics"})
	}

	return c.JSON(overview)
}
