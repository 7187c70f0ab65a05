package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-tracker/internal/api/dto"
	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

const maxPageSize = 100

// TicketsHandler serves the read-only ticket reporting endpoints.
type TicketsHandler struct {
	tickets  *service.TicketService
	claims   *service.ClaimService
	settings *service.ConfigService
	history  *service.HistoryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, claims *service.ClaimService, settings *service.ConfigService, history *service.HistoryService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, claims: claims, settings: settings, history: history}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	recs, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	total, err := h.tickets.Count(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Items:  dto.NewTicketResponses(recs),
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id := c.Params("id")
	rec, err := h.tickets.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(*rec)})
}

// TicketHistory GET /tickets/:id/history.
func (h *TicketsHandler) TicketHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.tickets.Get(c.UserContext(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return err
	}
	entries, err := h.history.List(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}

// AgentClaims GET /agents/:id/claims.
func (h *TicketsHandler) AgentClaims(c *fiber.Ctx) error {
	agentID := c.Params("id")
	ctx := c.UserContext()

	active, err := h.claims.ActiveClaims(ctx, agentID)
	if err != nil {
		return err
	}
	settings, err := h.settings.Settings(ctx)
	if err != nil {
		return err
	}
	filter := repository.ActiveClaimsFilter(agentID)
	filter.Limit = maxPageSize
	recs, err := h.tickets.List(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AgentClaimsResponse{
		AgentID:      agentID,
		ActiveClaims: active,
		ClaimLimit:   settings.ClaimLimit,
		Tickets:      dto.NewTicketResponses(recs),
	}})
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	filter := repository.TicketFilter{}
	for _, part := range splitList(c.Query("state")) {
		state := domain.TicketState(part)
		if !state.Valid() {
			return filter, apperrors.NewValidationError("unknown state", map[string]any{"state": part})
		}
		filter.States = append(filter.States, state)
	}
	for _, part := range splitList(c.Query("status")) {
		status := domain.TicketStatus(part)
		if status != domain.TicketStatusOpen && status != domain.TicketStatusClosed {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if group := c.Query("group_id"); group != "" {
		filter.GroupID = &group
	}
	if agent := c.Query("agent_id"); agent != "" {
		filter.LastUserID = &agent
	}

	var err error
	if filter.CreatedFrom, err = parseTime(c, "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTime(c, "created_to"); err != nil {
		return filter, err
	}
	if filter.UpdatedFrom, err = parseTime(c, "updated_from"); err != nil {
		return filter, err
	}
	if filter.UpdatedTo, err = parseTime(c, "updated_to"); err != nil {
		return filter, err
	}

	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseTime(c *fiber.Ctx, key string) (*time.Time, error) {
	val := c.Query(key)
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError(key+" must be RFC3339", map[string]any{key: val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
