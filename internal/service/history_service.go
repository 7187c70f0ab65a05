package service

import (
	"context"
	"fmt"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
)

// HistoryService appends an audit entry for every published ticket
// transition. A failed append surfaces through the dispatcher's handler log
// and never affects the transition.
type HistoryService struct {
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
}

// NewHistoryService creates the service.
func NewHistoryService(history repository.TicketHistoryRepository, dispatcher events.Dispatcher) *HistoryService {
	return &HistoryService{history: history, dispatcher: dispatcher}
}

// RegisterHandlers subscribes to the ticket lifecycle events.
func (h *HistoryService) RegisterHandlers() {
	if h.dispatcher == nil {
		return
	}
	for _, et := range []events.EventType{
		events.EventTicketOpened,
		events.EventTicketClaimed,
		events.EventTicketUnclaimed,
		events.EventTicketClosed,
	} {
		h.dispatcher.Subscribe(et, h.handleTransition)
	}
}

// List returns a ticket's audit trail, oldest first.
func (h *HistoryService) List(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	entries, err := h.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", ticketID, err)
	}
	return entries, nil
}

func (h *HistoryService) handleTransition(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketTransitionPayload)
	if !ok {
		return nil
	}
	entry := &domain.TicketHistory{
		ID:            event.ID,
		TicketID:      event.TicketID,
		EventType:     string(event.Type),
		Source:        string(event.Actor.Source),
		ActorID:       event.Actor.AgentID,
		PreviousState: payload.PreviousState,
		State:         payload.State,
		Reason:        payload.Reason,
		CreatedAt:     event.Timestamp,
	}
	if err := h.history.Create(ctx, entry); err != nil {
		return fmt.Errorf("append history for %s: %w", event.TicketID, err)
	}
	return nil
}
