package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// MemoryTicketRepository keeps ticket records in process. It backs the
// service when no database is configured and is used throughout the tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	records map[string]domain.TicketRecord
}

// NewMemoryTicketRepository creates an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{records: make(map[string]domain.TicketRecord)}
}

func (m *MemoryTicketRepository) Upsert(_ context.Context, rec *domain.TicketRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := cloneTicket(*rec)
	stored, ok := m.records[rec.TicketID]
	alreadyClosed := ok && stored.IsClosed
	if alreadyClosed && !next.IsClosed {
		return true, domain.ErrTicketClosed
	}
	if ok {
		if next.GroupID == "" {
			next.GroupID = stored.GroupID
		}
		next.CreatedAt = stored.CreatedAt
		if stored.IsClosed && next.IsClosed && stored.ClosedAt != nil {
			closedAt := *stored.ClosedAt
			next.ClosedAt = &closedAt
		}
	}
	m.records[rec.TicketID] = next

	rec.GroupID = next.GroupID
	rec.CreatedAt = next.CreatedAt
	rec.ClosedAt = cloneTime(next.ClosedAt)
	return alreadyClosed, nil
}

func (m *MemoryTicketRepository) GetByID(_ context.Context, ticketID string) (*domain.TicketRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTicket(rec)
	return &out, nil
}

func (m *MemoryTicketRepository) FindActive(_ context.Context) ([]domain.TicketRecord, error) {
	records := m.match(TicketFilter{ExcludeStates: []domain.TicketState{domain.TicketStateClosed}})
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastUpdated.Before(records[j].LastUpdated)
	})
	return records, nil
}

func (m *MemoryTicketRepository) CountActiveClaims(ctx context.Context, agentID string) (int, error) {
	return m.Count(ctx, ActiveClaimsFilter(agentID))
}

func (m *MemoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.TicketRecord, error) {
	records := m.match(filter)
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastUpdated.After(records[j].LastUpdated)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end], nil
}

func (m *MemoryTicketRepository) Count(_ context.Context, filter TicketFilter) (int, error) {
	return len(m.match(filter)), nil
}

func (m *MemoryTicketRepository) match(filter TicketFilter) []domain.TicketRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.TicketRecord
	for _, rec := range m.records {
		if matchesFilter(rec, filter) {
			out = append(out, cloneTicket(rec))
		}
	}
	return out
}

func matchesFilter(rec domain.TicketRecord, filter TicketFilter) bool {
	if len(filter.States) > 0 && !containsState(filter.States, rec.CurrentState) {
		return false
	}
	if len(filter.ExcludeStates) > 0 && containsState(filter.ExcludeStates, rec.CurrentState) {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if s == rec.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.GroupID != nil && rec.GroupID != *filter.GroupID {
		return false
	}
	if filter.LastUserID != nil && (rec.LastUserID == nil || *rec.LastUserID != *filter.LastUserID) {
		return false
	}
	if filter.CreatedFrom != nil && rec.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && rec.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.UpdatedFrom != nil && rec.LastUpdated.Before(*filter.UpdatedFrom) {
		return false
	}
	if filter.UpdatedTo != nil && rec.LastUpdated.After(*filter.UpdatedTo) {
		return false
	}
	return true
}

func containsState(states []domain.TicketState, state domain.TicketState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func cloneTicket(rec domain.TicketRecord) domain.TicketRecord {
	rec.ClosedAt = cloneTime(rec.ClosedAt)
	rec.LastUserID = cloneString(rec.LastUserID)
	rec.ModeratorID = cloneString(rec.ModeratorID)
	return rec
}

// MemoryConfigRepository keeps config records in process.
type MemoryConfigRepository struct {
	mu      sync.RWMutex
	records map[string]domain.ConfigRecord
}

// NewMemoryConfigRepository creates an empty config store.
func NewMemoryConfigRepository() *MemoryConfigRepository {
	return &MemoryConfigRepository{records: make(map[string]domain.ConfigRecord)}
}

func (m *MemoryConfigRepository) Get(_ context.Context, key string) (*domain.ConfigRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	rec.OverrideRoles = append([]string{}, rec.OverrideRoles...)
	return &rec, nil
}

func (m *MemoryConfigRepository) Upsert(_ context.Context, rec *domain.ConfigRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *rec
	stored.OverrideRoles = append([]string{}, rec.OverrideRoles...)
	m.records[rec.Key] = stored
	return nil
}

// MemoryTicketHistoryRepository keeps audit entries in process.
type MemoryTicketHistoryRepository struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	entries []domain.TicketHistory
}

// NewMemoryTicketHistoryRepository creates an empty history store.
func NewMemoryTicketHistoryRepository() *MemoryTicketHistoryRepository {
	return &MemoryTicketHistoryRepository{seen: make(map[string]struct{})}
}

func (m *MemoryTicketHistoryRepository) Create(_ context.Context, history *domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[history.ID]; ok {
		return nil
	}
	m.seen[history.ID] = struct{}{}
	entry := *history
	entry.ActorID = cloneString(history.ActorID)
	if history.PreviousState != nil {
		p := *history.PreviousState
		entry.PreviousState = &p
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryTicketHistoryRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.TicketHistory
	for _, entry := range m.entries {
		if entry.TicketID == ticketID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
