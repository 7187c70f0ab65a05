package domain

import "time"

// TicketHistory is an immutable audit entry for one persisted transition.
type TicketHistory struct {
	ID            string
	TicketID      string
	EventType     string
	Source        string
	ActorID       *string
	PreviousState *TicketState
	State         TicketState
	Reason        string
	CreatedAt     time.Time
}
