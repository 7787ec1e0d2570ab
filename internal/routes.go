package internal

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	v1 "glance/api/v1"
	apphttp "glance/internal/http"
)

// mountRoutes registers the public collection API and the reporting
// endpoints.
func (a *Application) mountRoutes() {
	storeTimeout := time.Duration(a.Config.StoreTimeoutSeconds) * time.Second
	collectHandler := v1.NewCollectHandler(a.Pipeline, a.Origins, a.Logger, storeTimeout)
	metricsHandler := apphttp.NewMetricsHandler(a.Engine, a.Logger)
	liveHandler := apphttp.NewLiveHandler(a.Broker, a.Logger)

	api := a.Fiber.Group("/api/v1")
	api.Post("/collect", collectHandler.Collect)
	api.Options("/collect", collectHandler.Preflight)
	api.Get("/metrics", metricsHandler.Metrics)
	api.Get("/live", liveHandler.Stream)

	a.Fiber.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
}
