package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// TicketFilter captures reporting and reconciliation search parameters.
type TicketFilter struct {
	States        []domain.TicketState
	ExcludeStates []domain.TicketState
	Statuses      []domain.TicketStatus
	GroupID       *string
	LastUserID    *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	UpdatedFrom   *time.Time
	UpdatedTo     *time.Time
	Limit         int
	Offset        int
}

// ActiveClaimsFilter matches non-closed tickets whose latest transition was made by agentID.
func ActiveClaimsFilter(agentID string) TicketFilter {
	return TicketFilter{
		ExcludeStates: []domain.TicketState{domain.TicketStateClosed},
		LastUserID:    &agentID,
	}
}

// TicketRepository is the Ticket Record Store.
type TicketRepository interface {
	// Upsert replaces every field of the record keyed by TicketID, creating it when absent,
	// and reports whether the stored row was already closed. A stored closed_at survives a
	// repeated closure; rec is refreshed with the stored values. A non-closed rec never
	// replaces a closed row: Upsert returns domain.ErrTicketClosed and writes nothing.
	Upsert(ctx context.Context, rec *domain.TicketRecord) (alreadyClosed bool, err error)
	GetByID(ctx context.Context, ticketID string) (*domain.TicketRecord, error)
	FindActive(ctx context.Context) ([]domain.TicketRecord, error)
	CountActiveClaims(ctx context.Context, agentID string) (int, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.TicketRecord, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres-backed store.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `ticket_id, group_id, current_state, status, is_closed, created_at, last_updated, closed_at, last_user_id, moderator_id`

func (r *ticketRepository) Upsert(ctx context.Context, rec *domain.TicketRecord) (bool, error) {
	const query = `
        WITH prior AS (
            SELECT is_closed FROM ticket_records WHERE ticket_id = $1 FOR UPDATE
        ), upserted AS (
            INSERT INTO ticket_records (` + ticketColumns + `)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
            ON CONFLICT (ticket_id) DO UPDATE SET
                group_id = CASE WHEN EXCLUDED.group_id = '' THEN ticket_records.group_id ELSE EXCLUDED.group_id END,
                current_state = EXCLUDED.current_state,
                status = EXCLUDED.status,
                is_closed = EXCLUDED.is_closed,
                last_updated = EXCLUDED.last_updated,
                closed_at = CASE WHEN ticket_records.is_closed AND EXCLUDED.is_closed
                    THEN COALESCE(ticket_records.closed_at, EXCLUDED.closed_at)
                    ELSE EXCLUDED.closed_at END,
                last_user_id = EXCLUDED.last_user_id,
                moderator_id = EXCLUDED.moderator_id
            WHERE NOT ticket_records.is_closed OR EXCLUDED.is_closed
            RETURNING group_id, created_at, closed_at
        )
        SELECT u.group_id, u.created_at, u.closed_at, COALESCE(p.is_closed, FALSE)
        FROM upserted u LEFT JOIN prior p ON TRUE`

	var alreadyClosed bool
	err := r.pool.QueryRow(ctx, query,
		rec.TicketID,
		rec.GroupID,
		rec.CurrentState,
		rec.Status,
		rec.IsClosed,
		rec.CreatedAt,
		rec.LastUpdated,
		rec.ClosedAt,
		rec.LastUserID,
		rec.ModeratorID,
	).Scan(&rec.GroupID, &rec.CreatedAt, &rec.ClosedAt, &alreadyClosed)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict guard skipped the update: the stored row is closed.
		return true, domain.ErrTicketClosed
	}
	if err != nil {
		return false, err
	}
	return alreadyClosed, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, ticketID string) (*domain.TicketRecord, error) {
	query := `SELECT ` + ticketColumns + ` FROM ticket_records WHERE ticket_id=$1`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

func (r *ticketRepository) FindActive(ctx context.Context) ([]domain.TicketRecord, error) {
	query := `SELECT ` + ticketColumns + ` FROM ticket_records WHERE current_state <> $1 ORDER BY last_updated ASC`
	rows, err := r.pool.Query(ctx, query, domain.TicketStateClosed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountActiveClaims(ctx context.Context, agentID string) (int, error) {
	return r.Count(ctx, ActiveClaimsFilter(agentID))
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.TicketRecord, error) {
	where, args := buildTicketWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM ticket_records WHERE %s ORDER BY last_updated DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	where, args := buildTicketWhere(filter)
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ticket_records WHERE `+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func buildTicketWhere(filter TicketFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	placeholders := func(values []string) string {
		out := make([]string, len(values))
		for i, v := range values {
			args = append(args, v)
			out[i] = fmt.Sprintf("$%d", len(args))
		}
		return strings.Join(out, ",")
	}

	if len(filter.States) > 0 {
		clauses = append(clauses, fmt.Sprintf("current_state IN (%s)", placeholders(statesToStrings(filter.States))))
	}
	if len(filter.ExcludeStates) > 0 {
		clauses = append(clauses, fmt.Sprintf("current_state NOT IN (%s)", placeholders(statesToStrings(filter.ExcludeStates))))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", placeholders(statuses)))
	}
	if filter.GroupID != nil {
		args = append(args, *filter.GroupID)
		clauses = append(clauses, fmt.Sprintf("group_id=$%d", len(args)))
	}
	if filter.LastUserID != nil {
		args = append(args, *filter.LastUserID)
		clauses = append(clauses, fmt.Sprintf("last_user_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.UpdatedFrom != nil {
		args = append(args, *filter.UpdatedFrom)
		clauses = append(clauses, fmt.Sprintf("last_updated >= $%d", len(args)))
	}
	if filter.UpdatedTo != nil {
		args = append(args, *filter.UpdatedTo)
		clauses = append(clauses, fmt.Sprintf("last_updated <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func statesToStrings(states []domain.TicketState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func scanTickets(rows pgx.Rows) ([]domain.TicketRecord, error) {
	var result []domain.TicketRecord
	for rows.Next() {
		var rec domain.TicketRecord
		if err := rows.Scan(
			&rec.TicketID,
			&rec.GroupID,
			&rec.CurrentState,
			&rec.Status,
			&rec.IsClosed,
			&rec.CreatedAt,
			&rec.LastUpdated,
			&rec.ClosedAt,
			&rec.LastUserID,
			&rec.ModeratorID,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
