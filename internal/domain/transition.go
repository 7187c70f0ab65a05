package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidState is returned when a transition targets an unknown state.
	ErrInvalidState = errors.New("invalid ticket state")
	// ErrTicketMismatch is returned when the request names a different ticket than the record.
	ErrTicketMismatch = errors.New("ticket id mismatch")
	// ErrTicketClosed is returned when a closed ticket is asked to move to any state but closed.
	ErrTicketClosed = errors.New("ticket is closed")
)

// TransitionRequest describes a requested state change.
type TransitionRequest struct {
	TicketID string
	GroupID  string
	State    TicketState
	// ActorID is nil for reconciliation-driven and ownership-clearing transitions.
	ActorID *string
}

// Transition is the outcome of ApplyTransition.
type Transition struct {
	Record   TicketRecord
	Previous *TicketState
	// Repeated is set when a closed ticket is closed again.
	Repeated bool
}

// Created reports whether the transition produced the first record for the ticket.
func (t Transition) Created() bool {
	return t.Previous == nil
}

// ApplyTransition computes the full replacement record for a ticket. It does
// no I/O; the caller persists the result. Closed is terminal: the only
// transition accepted from it is another closure.
func ApplyTransition(existing *TicketRecord, req TransitionRequest, now time.Time) (Transition, error) {
	if !req.State.Valid() {
		return Transition{}, fmt.Errorf("%w: %q", ErrInvalidState, req.State)
	}
	if existing != nil && req.TicketID != "" && existing.TicketID != req.TicketID {
		return Transition{}, fmt.Errorf("%w: record %s, request %s", ErrTicketMismatch, existing.TicketID, req.TicketID)
	}

	if existing != nil && existing.CurrentState == TicketStateClosed && req.State != TicketStateClosed {
		return Transition{}, fmt.Errorf("%w: %s cannot move to %s", ErrTicketClosed, existing.TicketID, req.State)
	}

	var next TicketRecord
	var previous *TicketState
	if existing != nil {
		next = *existing
		state := existing.CurrentState
		previous = &state
	} else {
		next = TicketRecord{TicketID: req.TicketID, CreatedAt: now}
	}
	if req.GroupID != "" {
		next.GroupID = req.GroupID
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}

	repeated := existing != nil && existing.CurrentState == TicketStateClosed && req.State == TicketStateClosed

	next.CurrentState = req.State
	next.Status = StatusFor(req.State)
	next.IsClosed = req.State == TicketStateClosed
	next.LastUpdated = now

	switch {
	case repeated && existing.ClosedAt != nil:
		closedAt := *existing.ClosedAt
		next.ClosedAt = &closedAt
	case req.State == TicketStateClosed:
		closedAt := now
		next.ClosedAt = &closedAt
	default:
		next.ClosedAt = nil
	}

	if req.ActorID != nil {
		last, moderator := *req.ActorID, *req.ActorID
		next.LastUserID = &last
		next.ModeratorID = &moderator
	} else {
		next.LastUserID = nil
		next.ModeratorID = nil
	}

	return Transition{Record: next, Previous: previous, Repeated: repeated}, nil
}
