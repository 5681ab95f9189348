package pages

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	rwportal "github.com/goliatone/go-rwportal"
	"github.com/goliatone/go-rwportal/api"
)

// Healthz reports the process is up.
func (h *Handlers) Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readyz reports whether the RW API answers.
func (h *Handlers) Readyz(c *fiber.Ctx) error {
	svc := api.New(h.client.WithToken(""), api.WithPaths(h.Paths), api.WithLogger(h.Logger))
	if err := svc.Ping(c.UserContext()); err != nil {
		h.Logger.Warn("readiness check failed", "kind", rwportal.KindOf(err).String(), "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  rwportal.UserMessage(err),
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// MetricsHandler exposes the Prometheus registry.
func (h *Handlers) MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(rwportal.MetricsHandler(h.Gatherer))
}
