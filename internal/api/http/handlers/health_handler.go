package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/host"
	"github.com/spec-kit/ticket-tracker/internal/persistence"
)

const readinessTimeout = 2 * time.Second

var errSessionClosed = errors.New("chat host session closed")

// dependencyCheck tests one dependency. idle is reported when it is not
// configured and does not count against readiness.
type dependencyCheck struct {
	name  string
	idle  string
	check func(context.Context) error
}

// HealthHandler serves liveness and readiness. Readiness covers the stores
// that are configured and the chat host session.
type HealthHandler struct {
	serviceName string
	version     string
	checks      []dependencyCheck
}

func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis, connection host.Connection) *HealthHandler {
	h := &HealthHandler{serviceName: serviceName, version: version}

	pgCheck := dependencyCheck{name: "postgres", idle: "in-memory"}
	if postgres.Enabled() {
		pgCheck.check = postgres.Ping
	}
	redisCheck := dependencyCheck{name: "redis", idle: "disabled"}
	if redis.Enabled() {
		redisCheck.check = redis.Ping
	}
	h.checks = append(h.checks, pgCheck, redisCheck)

	if connection != nil {
		h.checks = append(h.checks, dependencyCheck{name: "discord", check: func(context.Context) error {
			if !connection.Alive() {
				return errSessionClosed
			}
			return nil
		}})
	}
	return h
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	deps := make(fiber.Map, len(h.checks))
	ready := true
	for _, p := range h.checks {
		switch {
		case p.check == nil:
			deps[p.name] = p.idle
		case p.check(ctx) != nil:
			deps[p.name] = "unavailable"
			ready = false
		default:
			deps[p.name] = "ok"
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": deps,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": deps})
}
