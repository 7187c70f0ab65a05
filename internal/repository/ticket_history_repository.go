package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	// Create ignores an entry whose ID is already stored.
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, event_type, source, actor_id, previous_state, state, reason, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO NOTHING`
	var previous *string
	if history.PreviousState != nil {
		p := string(*history.PreviousState)
		previous = &p
	}
	_, err := r.pool.Exec(ctx, query,
		history.ID,
		history.TicketID,
		history.EventType,
		history.Source,
		history.ActorID,
		previous,
		string(history.State),
		history.Reason,
		history.CreatedAt,
	)
	return err
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, event_type, source, actor_id, previous_state, state, reason, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			history  domain.TicketHistory
			previous *string
			state    string
		)
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.EventType,
			&history.Source,
			&history.ActorID,
			&previous,
			&state,
			&history.Reason,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		history.State = domain.TicketState(state)
		if previous != nil {
			p := domain.TicketState(*previous)
			history.PreviousState = &p
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
