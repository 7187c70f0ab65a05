package commands

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/service"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// Name identifies a command.
type Name string

const (
	Claim            Name = "claim"
	ThreadClaim      Name = "thread_claim"
	Unclaim          Name = "unclaim"
	Close            Name = "close"
	SetClaimLimit    Name = "set_claim_limit"
	ClaimEnforcement Name = "claim_enforcement"
	MyClaims         Name = "claims"
)

const (
	msgNotInTicket   = "This command can only be used inside a ticket thread."
	msgNoPermission  = "You do not have permission to use this command."
	msgMissingLimit  = "Please provide a claim limit."
	msgMissingToggle = "Please choose whether the claim command enforces the limit."
	msgInternal      = "Something went wrong while processing the command. Please try again later."
	msgUnknown       = "Unknown command."
)

// Invocation is the context a command runs in, as resolved by the dispatch layer.
type Invocation struct {
	AgentID        string
	GroupID        string
	ConversationID string
	// InTicket is set when the conversation is a ticket thread.
	InTicket bool
	Level    domain.PermissionLevel
	IntArg   *int64
	BoolArg  *bool
}

// Result is the user-visible outcome of a command.
type Result struct {
	Message  string
	Rejected bool
}

func ok(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

func rejected(message string) Result {
	return Result{Message: message, Rejected: true}
}

// Surface validates invocations and drives the ticket services. It never
// returns an error: every failure becomes a rejection message.
type Surface struct {
	tickets  *service.TicketService
	claims   *service.ClaimService
	settings *service.ConfigService
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// Dependencies bundles collaborators for the command surface.
type Dependencies struct {
	Tickets  *service.TicketService
	Claims   *service.ClaimService
	Settings *service.ConfigService
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewSurface constructs the command surface.
func NewSurface(deps Dependencies) *Surface {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{
		tickets:  deps.Tickets,
		claims:   deps.Claims,
		settings: deps.Settings,
		logger:   logger,
		metrics:  deps.Metrics,
	}
}

// Execute runs the named command.
func (s *Surface) Execute(ctx context.Context, name Name, inv Invocation) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked",
				zap.String("command", string(name)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = rejected(msgInternal)
		}
		outcome := "ok"
		if res.Rejected {
			outcome = "rejected"
		}
		s.metrics.RecordCommand(string(name), outcome)
	}()

	switch name {
	case Claim:
		return s.claim(ctx, inv)
	case ThreadClaim:
		return s.threadClaim(ctx, inv)
	case Unclaim:
		return s.unclaim(ctx, inv)
	case Close:
		return s.close(ctx, inv)
	case SetClaimLimit:
		return s.setClaimLimit(ctx, inv)
	case ClaimEnforcement:
		return s.claimEnforcement(ctx, inv)
	case MyClaims:
		return s.myClaims(ctx, inv)
	default:
		return rejected(msgUnknown)
	}
}

func (s *Surface) claim(ctx context.Context, inv Invocation) Result {
	if res, denied := guardTicket(inv, domain.PermissionSupport); denied {
		return res
	}
	policy, err := s.claims.DefaultPolicy(ctx)
	if err != nil {
		return s.reject(Claim, inv, err)
	}
	return s.doClaim(ctx, Claim, inv, policy)
}

func (s *Surface) threadClaim(ctx context.Context, inv Invocation) Result {
	if res, denied := guardTicket(inv, domain.PermissionSupport); denied {
		return res
	}
	return s.doClaim(ctx, ThreadClaim, inv, service.ClaimPolicyEnforceLimit)
}

func (s *Surface) doClaim(ctx context.Context, name Name, inv Invocation, policy service.ClaimPolicy) Result {
	res, err := s.claims.Claim(ctx, service.ClaimRequest{
		TicketID: inv.ConversationID,
		GroupID:  inv.GroupID,
		AgentID:  inv.AgentID,
	}, policy)
	if err != nil {
		return s.reject(name, inv, err)
	}
	if res.Policy == service.ClaimPolicyEnforceLimit {
		return ok("Ticket claimed. You now hold %d of %d allowed tickets.", res.ActiveClaims, res.ClaimLimit)
	}
	return ok("Ticket claimed.")
}

func (s *Surface) unclaim(ctx context.Context, inv Invocation) Result {
	if res, denied := guardTicket(inv, domain.PermissionSupport); denied {
		return res
	}
	if _, err := s.tickets.Unclaim(ctx, inv.ConversationID, inv.GroupID); err != nil {
		return s.reject(Unclaim, inv, err)
	}
	return ok("Ticket unclaimed.")
}

func (s *Surface) close(ctx context.Context, inv Invocation) Result {
	if res, denied := guardTicket(inv, domain.PermissionSupport); denied {
		return res
	}
	agent := inv.AgentID
	tr, err := s.tickets.Close(ctx, inv.ConversationID, inv.GroupID, &agent, events.SourceCommand, "closed by agent")
	if err != nil {
		return s.reject(Close, inv, err)
	}
	if tr.Repeated {
		return ok("Ticket is already closed.")
	}
	return ok("Ticket closed.")
}

func (s *Surface) setClaimLimit(ctx context.Context, inv Invocation) Result {
	if !inv.Level.Allows(domain.PermissionAdmin) {
		return rejected(msgNoPermission)
	}
	if inv.IntArg == nil {
		return rejected(msgMissingLimit)
	}
	limit := int(*inv.IntArg)
	if int64(limit) != *inv.IntArg {
		return rejected("The claim limit is too large.")
	}
	rec, err := s.settings.SetClaimLimit(ctx, inv.AgentID, limit)
	if err != nil {
		return s.reject(SetClaimLimit, inv, err)
	}
	return ok("Claim limit set to %d.", rec.ClaimLimit)
}

func (s *Surface) claimEnforcement(ctx context.Context, inv Invocation) Result {
	if !inv.Level.Allows(domain.PermissionAdmin) {
		return rejected(msgNoPermission)
	}
	if inv.BoolArg == nil {
		return rejected(msgMissingToggle)
	}
	rec, err := s.settings.SetEnforceOnClaim(ctx, *inv.BoolArg)
	if err != nil {
		return s.reject(ClaimEnforcement, inv, err)
	}
	if rec.EnforceOnClaim {
		return ok("The claim command now enforces the claim limit of %d.", rec.ClaimLimit)
	}
	return ok("The claim command no longer enforces the claim limit.")
}

func (s *Surface) myClaims(ctx context.Context, inv Invocation) Result {
	if !inv.Level.Allows(domain.PermissionSupport) {
		return rejected(msgNoPermission)
	}
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return s.reject(MyClaims, inv, err)
	}
	active, err := s.claims.ActiveClaims(ctx, inv.AgentID)
	if err != nil {
		return s.reject(MyClaims, inv, err)
	}
	return ok("You hold %d active tickets. The claim limit is %d.", active, settings.ClaimLimit)
}

// guardTicket checks the ticket context before the permission level.
func guardTicket(inv Invocation, required domain.PermissionLevel) (Result, bool) {
	if !inv.InTicket || inv.ConversationID == "" {
		return rejected(msgNotInTicket), true
	}
	if !inv.Level.Allows(required) {
		return rejected(msgNoPermission), true
	}
	return Result{}, false
}

func (s *Surface) reject(name Name, inv Invocation, err error) Result {
	de := apperrors.ToDomainError(err)
	fields := []zap.Field{
		zap.String("command", string(name)),
		zap.String("agent_id", inv.AgentID),
		zap.String("ticket_id", inv.ConversationID),
		zap.String("code", de.Code),
		zap.Error(err),
	}
	switch {
	case de.Code == apperrors.CodeInternal:
		s.logger.Error("command failed", fields...)
		return rejected(msgInternal)
	case apperrors.IsInternal(err):
		s.logger.Warn("command rejected", fields...)
	default:
		s.logger.Info("command rejected", fields...)
	}
	return rejected(de.Message)
}
