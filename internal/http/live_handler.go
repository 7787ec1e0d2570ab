package http

import (
	"bufio"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"glance/internal/notify"
)

// LiveHandler streams change notifications to dashboards over SSE so they
// can re-fetch metrics without polling.
type LiveHandler struct {
	broker *notify.Broker
	logger *slog.Logger
}

// NewLiveHandler wires the handler to the notification broker.
func NewLiveHandler(broker *notify.Broker, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{broker: broker, logger: logger}
}

// Stream handles GET /api/v1/live. The subscription ends when the client
// disconnects or the broker shuts down.
func (h *LiveHandler) Stream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	subscriber := h.broker.Subscribe()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.broker.Unsubscribe(subscriber)

		for update := range subscriber.Updates() {
			payload, err := json.Marshal(update)
			if err != nil {
				h.logger.Error("Failed to encode update", slog.Any("error", err))
				continue
			}
			if _, err := w.WriteString("data: " + string(payload) + "\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				// Client went away.
				return
			}
		}
	}))

	return nil
}
