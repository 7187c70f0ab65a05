package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/http/handlers"
	"github.com/spec-kit/ticket-tracker/internal/auth"
	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Config         *handlers.ConfigHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authn := cfg.AuthMiddleware.Handle
	support := auth.RequireLevel(domain.PermissionSupport)
	admin := auth.RequireLevel(domain.PermissionAdmin)

	app.Get("/tickets", authn, support, cfg.Tickets.ListTickets)
	app.Get("/tickets/:id", authn, support, cfg.Tickets.GetTicket)
	app.Get("/tickets/:id/history", authn, support, cfg.Tickets.TicketHistory)
	app.Get("/agents/:id/claims", authn, support, cfg.Tickets.AgentClaims)
	app.Get("/config", authn, support, cfg.Config.GetConfig)
	app.Get("/metrics", authn, admin, cfg.Config.GetMetrics)
}
