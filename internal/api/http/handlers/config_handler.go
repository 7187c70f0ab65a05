package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

// ConfigHandler exposes the settings record and in-memory counters.
type ConfigHandler struct {
	settings *service.ConfigService
	metrics  *observability.Metrics
}

// NewConfigHandler constructs handler.
func NewConfigHandler(settings *service.ConfigService, metrics *observability.Metrics) *ConfigHandler {
	return &ConfigHandler{settings: settings, metrics: metrics}
}

// GetConfig GET /config.
func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	rec, err := h.settings.Settings(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewConfigResponse(rec)})
}

// GetMetrics GET /metrics.
func (h *ConfigHandler) GetMetrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
