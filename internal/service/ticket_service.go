package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// TicketService is the single write path for ticket records. Every state
// change goes through domain.ApplyTransition before the upsert.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock defaults to time.Now in UTC.
	Clock func() time.Time
}

// TransitionInput describes a state change requested by a writer.
type TransitionInput struct {
	TicketID string
	GroupID  string
	State    domain.TicketState
	ActorID  *string
	Source   events.Source
	Reason   string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        clock,
	}
}

// Open records a newly created ticket thread. An existing record is returned
// untouched, so replayed creation events never reset a ticket.
func (s *TicketService) Open(ctx context.Context, ticketID, groupID string) (*domain.TicketRecord, bool, error) {
	existing, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	rec := domain.NewTicketRecord(ticketID, groupID, s.now())
	if _, err := s.tickets.Upsert(ctx, &rec); err != nil {
		if errors.Is(err, domain.ErrTicketClosed) {
			// Closed by a concurrent writer after the lookup above.
			stored, err := s.load(ctx, ticketID)
			return stored, false, err
		}
		return nil, false, fmt.Errorf("upsert ticket %s: %w", ticketID, err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketOpened,
		TicketID: ticketID,
		Actor:    events.Actor{Source: events.SourceHost},
		Payload: events.TicketTransitionPayload{
			GroupID: rec.GroupID,
			State:   rec.CurrentState,
			Status:  rec.Status,
		},
	})
	return &rec, true, nil
}

// Transition applies and persists a state change.
func (s *TicketService) Transition(ctx context.Context, input TransitionInput) (*domain.Transition, error) {
	existing, err := s.load(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}

	tr, err := domain.ApplyTransition(existing, domain.TransitionRequest{
		TicketID: input.TicketID,
		GroupID:  input.GroupID,
		State:    input.State,
		ActorID:  input.ActorID,
	}, s.now())
	if errors.Is(err, domain.ErrTicketClosed) {
		return nil, ticketClosedError(input.TicketID, err)
	}
	if err != nil {
		return nil, err
	}

	alreadyClosed, err := s.tickets.Upsert(ctx, &tr.Record)
	if errors.Is(err, domain.ErrTicketClosed) {
		return nil, ticketClosedError(input.TicketID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert ticket %s: %w", input.TicketID, err)
	}
	// Another writer may have closed the ticket after it was loaded.
	if alreadyClosed && tr.Record.IsClosed {
		tr.Repeated = true
	}

	if tr.Repeated {
		s.logger.Debug("ticket already closed",
			zap.String("ticket_id", input.TicketID),
			zap.String("source", string(input.Source)))
		return &tr, nil
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTypeForState(tr.Record.CurrentState),
		TicketID: tr.Record.TicketID,
		Actor:    events.Actor{Source: input.Source, AgentID: input.ActorID},
		Payload: events.TicketTransitionPayload{
			GroupID:       tr.Record.GroupID,
			PreviousState: tr.Previous,
			State:         tr.Record.CurrentState,
			Status:        tr.Record.Status,
			ClosedAt:      tr.Record.ClosedAt,
			Reason:        input.Reason,
		},
	})
	return &tr, nil
}

// Claim marks agentID as the owner of the ticket.
func (s *TicketService) Claim(ctx context.Context, ticketID, groupID, agentID string) (*domain.Transition, error) {
	return s.Transition(ctx, TransitionInput{
		TicketID: ticketID,
		GroupID:  groupID,
		State:    domain.TicketStateClaimed,
		ActorID:  &agentID,
		Source:   events.SourceCommand,
	})
}

// Unclaim clears ownership. Any agent may unclaim any ticket.
func (s *TicketService) Unclaim(ctx context.Context, ticketID, groupID string) (*domain.Transition, error) {
	return s.Transition(ctx, TransitionInput{
		TicketID: ticketID,
		GroupID:  groupID,
		State:    domain.TicketStateUnclaimed,
		Source:   events.SourceCommand,
	})
}

// Close moves the ticket to its terminal state. actorID is nil for
// reconciliation-driven closures.
func (s *TicketService) Close(ctx context.Context, ticketID, groupID string, actorID *string, source events.Source, reason string) (*domain.Transition, error) {
	return s.Transition(ctx, TransitionInput{
		TicketID: ticketID,
		GroupID:  groupID,
		State:    domain.TicketStateClosed,
		ActorID:  actorID,
		Source:   source,
		Reason:   reason,
	})
}

// Get returns one ticket record.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.TicketRecord, error) {
	return s.tickets.GetByID(ctx, ticketID)
}

// List returns records matching filter.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.TicketRecord, error) {
	return s.tickets.ListWithFilter(ctx, filter)
}

// Count returns how many records match filter, ignoring paging.
func (s *TicketService) Count(ctx context.Context, filter repository.TicketFilter) (int, error) {
	return s.tickets.Count(ctx, filter)
}

// Active returns every non-closed record.
func (s *TicketService) Active(ctx context.Context) ([]domain.TicketRecord, error) {
	return s.tickets.FindActive(ctx)
}

// CountActiveClaims returns how many non-closed tickets agentID currently holds.
func (s *TicketService) CountActiveClaims(ctx context.Context, agentID string) (int, error) {
	return s.tickets.CountActiveClaims(ctx, agentID)
}

func ticketClosedError(ticketID string, cause error) error {
	de := apperrors.NewDomainError(apperrors.CodeConflict, "This ticket is closed.", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
	de.Err = cause
	return de
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.TicketRecord, error) {
	existing, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	return existing, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
