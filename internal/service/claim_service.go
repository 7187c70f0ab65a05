package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// ClaimPolicy selects whether a claim is checked against the claim limit.
type ClaimPolicy int

const (
	// ClaimPolicyUnconditional accepts the claim without counting.
	ClaimPolicyUnconditional ClaimPolicy = iota
	// ClaimPolicyEnforceLimit rejects the claim once the agent holds claim_limit active tickets.
	ClaimPolicyEnforceLimit
)

func (p ClaimPolicy) String() string {
	if p == ClaimPolicyEnforceLimit {
		return "enforce_limit"
	}
	return "unconditional"
}

// ClaimRequest identifies the ticket and agent of a claim.
type ClaimRequest struct {
	TicketID string
	GroupID  string
	AgentID  string
}

// ClaimResult reports the persisted claim and the accounting it was checked against.
type ClaimResult struct {
	Record       domain.TicketRecord
	Policy       ClaimPolicy
	ActiveClaims int
	ClaimLimit   int
}

// ClaimService performs claim accounting.
type ClaimService struct {
	tickets  *TicketService
	settings *ConfigService
	locker   ClaimLocker
	logger   *zap.Logger
}

// ClaimDependencies bundles collaborators for the claim service.
type ClaimDependencies struct {
	Tickets  *TicketService
	Settings *ConfigService
	// Locker defaults to a LocalClaimLocker.
	Locker ClaimLocker
	Logger *zap.Logger
}

// NewClaimService constructs the service.
func NewClaimService(deps ClaimDependencies) *ClaimService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalClaimLocker()
	}
	return &ClaimService{
		tickets:  deps.Tickets,
		settings: deps.Settings,
		locker:   locker,
		logger:   logger,
	}
}

// DefaultPolicy returns the policy the plain claim command runs with.
func (s *ClaimService) DefaultPolicy(ctx context.Context) (ClaimPolicy, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return ClaimPolicyUnconditional, err
	}
	if settings.EnforceOnClaim {
		return ClaimPolicyEnforceLimit, nil
	}
	return ClaimPolicyUnconditional, nil
}

// Claim transitions the ticket to claimed for the agent. Under
// ClaimPolicyEnforceLimit the count and the write run while holding the
// agent's claim lock, so concurrent claims by one agent cannot both pass the
// limit check.
func (s *ClaimService) Claim(ctx context.Context, req ClaimRequest, policy ClaimPolicy) (*ClaimResult, error) {
	if policy == ClaimPolicyUnconditional {
		tr, err := s.tickets.Claim(ctx, req.TicketID, req.GroupID, req.AgentID)
		if err != nil {
			return nil, err
		}
		return &ClaimResult{Record: tr.Record, Policy: policy}, nil
	}

	unlock, err := s.locker.Lock(ctx, req.AgentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.tickets.CountActiveClaims(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("count active claims for %s: %w", req.AgentID, err)
	}

	rec, err := s.tickets.load(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.IsClosed {
		return nil, ticketClosedError(req.TicketID, domain.ErrTicketClosed)
	}
	// Re-claiming a ticket the agent already holds adds nothing to the count.
	held := rec != nil && rec.HeldBy(req.AgentID)
	if !held && active >= settings.ClaimLimit {
		s.logger.Info("claim rejected at limit",
			zap.String("ticket_id", req.TicketID),
			zap.String("agent_id", req.AgentID),
			zap.Int("active_claims", active),
			zap.Int("claim_limit", settings.ClaimLimit))
		return nil, apperrors.NewLimitReached(settings.ClaimLimit, active)
	}

	tr, err := s.tickets.Claim(ctx, req.TicketID, req.GroupID, req.AgentID)
	if err != nil {
		return nil, err
	}
	if !held {
		active++
	}
	return &ClaimResult{
		Record:       tr.Record,
		Policy:       policy,
		ActiveClaims: active,
		ClaimLimit:   settings.ClaimLimit,
	}, nil
}

// ActiveClaims returns the agent's active claim count.
func (s *ClaimService) ActiveClaims(ctx context.Context, agentID string) (int, error) {
	return s.tickets.CountActiveClaims(ctx, agentID)
}
