package domain

import "time"

// TicketState enumerates lifecycle states for a ticket thread.
type TicketState string

const (
	TicketStateOpen      TicketState = "open"
	TicketStateClaimed   TicketState = "claimed"
	TicketStateUnclaimed TicketState = "unclaimed"
	TicketStateClosed    TicketState = "closed"
)

// Valid reports whether s is one of the known states.
func (s TicketState) Valid() bool {
	switch s {
	case TicketStateOpen, TicketStateClaimed, TicketStateUnclaimed, TicketStateClosed:
		return true
	}
	return false
}

// TicketStatus is the coarse open/closed status kept alongside the state.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// StatusFor derives the coarse status for a state.
func StatusFor(state TicketState) TicketStatus {
	if state == TicketStateClosed {
		return TicketStatusClosed
	}
	return TicketStatusOpen
}

// TicketRecord is the persisted state of one ticket thread.
//
// LastUserID and ModeratorID always carry the same value; both names are
// kept because reporting readers query by either.
type TicketRecord struct {
	TicketID     string
	GroupID      string
	CurrentState TicketState
	Status       TicketStatus
	IsClosed     bool
	CreatedAt    time.Time
	LastUpdated  time.Time
	ClosedAt     *time.Time
	LastUserID   *string
	ModeratorID  *string
}

// NewTicketRecord builds the initial open record for a freshly created ticket.
func NewTicketRecord(ticketID, groupID string, now time.Time) TicketRecord {
	return TicketRecord{
		TicketID:     ticketID,
		GroupID:      groupID,
		CurrentState: TicketStateOpen,
		Status:       TicketStatusOpen,
		IsClosed:     false,
		CreatedAt:    now,
		LastUpdated:  now,
	}
}

// Active reports whether the ticket is in any non-closed state.
func (t TicketRecord) Active() bool {
	return t.CurrentState != TicketStateClosed
}

// HeldBy reports whether agentID caused the latest transition of an active ticket.
func (t TicketRecord) HeldBy(agentID string) bool {
	return t.Active() && t.LastUserID != nil && *t.LastUserID == agentID
}

// Consistent checks the state/status/is_closed agreement invariant.
func (t TicketRecord) Consistent() bool {
	closed := t.CurrentState == TicketStateClosed
	return t.IsClosed == closed && (t.Status == TicketStatusClosed) == closed
}
