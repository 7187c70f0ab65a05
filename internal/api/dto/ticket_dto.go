package dto

import (
	"time"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

// TicketResponse is the reporting view of a ticket record.
type TicketResponse struct {
	TicketID     string              `json:"ticket_id"`
	GroupID      string              `json:"group_id"`
	CurrentState domain.TicketState  `json:"current_state"`
	Status       domain.TicketStatus `json:"status"`
	IsClosed     bool                `json:"is_closed"`
	CreatedAt    time.Time           `json:"created_at"`
	LastUpdated  time.Time           `json:"last_updated"`
	ClosedAt     *time.Time          `json:"closed_at"`
	LastUserID   *string             `json:"last_user_id"`
	ModeratorID  *string             `json:"moderator_id"`
}

// TicketListResponse wraps a page of tickets.
type TicketListResponse struct {
	Items  []TicketResponse `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// AgentClaimsResponse reports an agent's active claims against the limit.
type AgentClaimsResponse struct {
	AgentID      string           `json:"agent_id"`
	ActiveClaims int              `json:"active_claims"`
	ClaimLimit   int              `json:"claim_limit"`
	Tickets      []TicketResponse `json:"tickets"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID            string              `json:"id"`
	EventType     string              `json:"event_type"`
	Source        string              `json:"source"`
	ActorID       *string             `json:"actor_id"`
	PreviousState *domain.TicketState `json:"previous_state"`
	State         domain.TicketState  `json:"state"`
	Reason        string              `json:"reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// ConfigResponse is the reporting view of the settings record.
type ConfigResponse struct {
	ClaimLimit     int        `json:"claim_limit"`
	EnforceOnClaim bool       `json:"enforce_on_claim"`
	OverrideRoles  []string   `json:"override_roles"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

// NewTicketResponse maps a record.
func NewTicketResponse(rec domain.TicketRecord) TicketResponse {
	return TicketResponse{
		TicketID:     rec.TicketID,
		GroupID:      rec.GroupID,
		CurrentState: rec.CurrentState,
		Status:       rec.Status,
		IsClosed:     rec.IsClosed,
		CreatedAt:    rec.CreatedAt,
		LastUpdated:  rec.LastUpdated,
		ClosedAt:     rec.ClosedAt,
		LastUserID:   rec.LastUserID,
		ModeratorID:  rec.ModeratorID,
	}
}

// NewTicketResponses maps a slice of records.
func NewTicketResponses(recs []domain.TicketRecord) []TicketResponse {
	out := make([]TicketResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NewTicketResponse(rec))
	}
	return out
}

// NewHistoryResponses maps audit entries.
func NewHistoryResponses(entries []domain.TicketHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryResponse{
			ID:            e.ID,
			EventType:     e.EventType,
			Source:        e.Source,
			ActorID:       e.ActorID,
			PreviousState: e.PreviousState,
			State:         e.State,
			Reason:        e.Reason,
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}

// NewConfigResponse maps the settings record. A zero UpdatedAt means the
// defaults are in effect.
func NewConfigResponse(rec domain.ConfigRecord) ConfigResponse {
	roles := rec.OverrideRoles
	if roles == nil {
		roles = []string{}
	}
	resp := ConfigResponse{
		ClaimLimit:     rec.ClaimLimit,
		EnforceOnClaim: rec.EnforceOnClaim,
		OverrideRoles:  roles,
	}
	if !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
