package events

import (
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened      EventType = "ticket_opened"
	EventTicketClaimed     EventType = "ticket_claimed"
	EventTicketUnclaimed   EventType = "ticket_unclaimed"
	EventTicketClosed      EventType = "ticket_closed"
	EventClaimLimitChanged EventType = "claim_limit_changed"
)

// EventTypeForState maps a resulting ticket state to its lifecycle event.
func EventTypeForState(state domain.TicketState) EventType {
	switch state {
	case domain.TicketStateClaimed:
		return EventTicketClaimed
	case domain.TicketStateUnclaimed:
		return EventTicketUnclaimed
	case domain.TicketStateClosed:
		return EventTicketClosed
	default:
		return EventTicketOpened
	}
}

// Source identifies which writer caused an event.
type Source string

const (
	SourceCommand   Source = "command"
	SourceReconcile Source = "reconcile"
	SourceHost      Source = "host"
)

// Actor encapsulates actor metadata for an event. AgentID is nil for
// reconciliation-driven changes.
type Actor struct {
	Source  Source  `json:"source"`
	AgentID *string `json:"agent_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketTransitionPayload describes a persisted state change.
type TicketTransitionPayload struct {
	GroupID       string              `json:"group_id"`
	PreviousState *domain.TicketState `json:"previous_state,omitempty"`
	State         domain.TicketState  `json:"state"`
	Status        domain.TicketStatus `json:"status"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	Reason        string              `json:"reason,omitempty"`
}

// ClaimLimitChangedPayload payload.
type ClaimLimitChangedPayload struct {
	OldLimit int `json:"old_limit"`
	NewLimit int `json:"new_limit"`
}
