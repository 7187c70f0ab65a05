package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

type harness struct {
	tickets *repository.MemoryTicketRepository
	configs *repository.MemoryConfigRepository
	metrics *observability.Metrics
	ticket  *service.TicketService
	surface *Surface
}

func newHarness(t *testing.T, tickets repository.TicketRepository) *harness {
	t.Helper()
	h := &harness{
		tickets: repository.NewMemoryTicketRepository(),
		configs: repository.NewMemoryConfigRepository(),
		metrics: observability.NewMetrics(),
	}
	if tickets == nil {
		tickets = h.tickets
	}
	h.ticket = service.NewTicketService(service.TicketDependencies{TicketRepo: tickets})
	settings := service.NewConfigService(service.ConfigDependencies{ConfigRepo: h.configs, DefaultLimit: 2})
	claims := service.NewClaimService(service.ClaimDependencies{Tickets: h.ticket, Settings: settings})
	h.surface = NewSurface(Dependencies{
		Tickets:  h.ticket,
		Claims:   claims,
		Settings: settings,
		Metrics:  h.metrics,
	})
	return h
}

func support(agent, ticket string) Invocation {
	return Invocation{AgentID: agent, GroupID: "g1", ConversationID: ticket, InTicket: true, Level: domain.PermissionSupport}
}

func admin(agent string) Invocation {
	return Invocation{AgentID: agent, GroupID: "g1", Level: domain.PermissionAdmin}
}

func int64p(v int64) *int64 { return &v }
func boolp(v bool) *bool    { return &v }

func TestClaimOutsideTicketIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	inv := support("a1", "c1")
	inv.InTicket = false

	for _, name := range []Name{Claim, ThreadClaim, Unclaim, Close} {
		res := h.surface.Execute(context.Background(), name, inv)
		assert.True(t, res.Rejected, name)
		assert.Equal(t, msgNotInTicket, res.Message)
	}

	n, err := h.tickets.Count(context.Background(), repository.TicketFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClaimRequiresSupportLevel(t *testing.T) {
	h := newHarness(t, nil)
	inv := support("a1", "c1")
	inv.Level = domain.PermissionNone

	res := h.surface.Execute(context.Background(), Claim, inv)
	assert.True(t, res.Rejected)
	assert.Equal(t, msgNoPermission, res.Message)

	_, err := h.tickets.GetByID(context.Background(), "c1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClaimIgnoresLimitByDefault(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for _, ticket := range []string{"c1", "c2", "c3"} {
		res := h.surface.Execute(ctx, Claim, support("a1", ticket))
		require.False(t, res.Rejected, res.Message)
	}

	rec, err := h.tickets.GetByID(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateClaimed, rec.CurrentState)
	require.NotNil(t, rec.LastUserID)
	assert.Equal(t, "a1", *rec.LastUserID)
}

func TestThreadClaimEnforcesLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.False(t, h.surface.Execute(ctx, ThreadClaim, support("a1", "c1")).Rejected)
	res := h.surface.Execute(ctx, ThreadClaim, support("a1", "c2"))
	require.False(t, res.Rejected)
	assert.Contains(t, res.Message, "2 of 2")

	res = h.surface.Execute(ctx, ThreadClaim, support("a1", "c3"))
	assert.True(t, res.Rejected)
	assert.Contains(t, res.Message, "claim limit (2/2)")

	_, err := h.tickets.GetByID(ctx, "c3")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClaimEnforcementToggle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	inv := admin("boss")
	inv.BoolArg = boolp(true)
	res := h.surface.Execute(ctx, ClaimEnforcement, inv)
	require.False(t, res.Rejected, res.Message)

	require.False(t, h.surface.Execute(ctx, Claim, support("a1", "c1")).Rejected)
	require.False(t, h.surface.Execute(ctx, Claim, support("a1", "c2")).Rejected)
	assert.True(t, h.surface.Execute(ctx, Claim, support("a1", "c3")).Rejected)
}

func TestClaimEnforcementRequiresAdmin(t *testing.T) {
	h := newHarness(t, nil)
	inv := support("a1", "")
	inv.BoolArg = boolp(true)

	res := h.surface.Execute(context.Background(), ClaimEnforcement, inv)
	assert.True(t, res.Rejected)
	assert.Equal(t, msgNoPermission, res.Message)
}

func TestUnclaimByAnotherAgent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.False(t, h.surface.Execute(ctx, Claim, support("a1", "c1")).Rejected)
	res := h.surface.Execute(ctx, Unclaim, support("a2", "c1"))
	require.False(t, res.Rejected, res.Message)

	rec, err := h.tickets.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateUnclaimed, rec.CurrentState)
	assert.Nil(t, rec.LastUserID)
	assert.Nil(t, rec.ModeratorID)
}

func TestCloseTwice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res := h.surface.Execute(ctx, Close, support("a1", "c1"))
	require.False(t, res.Rejected)
	assert.Equal(t, "Ticket closed.", res.Message)

	first, err := h.tickets.GetByID(ctx, "c1")
	require.NoError(t, err)

	res = h.surface.Execute(ctx, Close, support("a1", "c1"))
	require.False(t, res.Rejected)
	assert.Equal(t, "Ticket is already closed.", res.Message)

	second, err := h.tickets.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ClosedAt, second.ClosedAt)
}

func TestClosedTicketRejectsClaimAndUnclaim(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.False(t, h.surface.Execute(ctx, Claim, support("a1", "c1")).Rejected)
	require.False(t, h.surface.Execute(ctx, Close, support("a1", "c1")).Rejected)
	closed, err := h.tickets.GetByID(ctx, "c1")
	require.NoError(t, err)

	for _, name := range []Name{Claim, ThreadClaim, Unclaim} {
		res := h.surface.Execute(ctx, name, support("a2", "c1"))
		assert.True(t, res.Rejected, name)
		assert.Equal(t, "This ticket is closed.", res.Message, name)
	}

	rec, err := h.tickets.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateClosed, rec.CurrentState)
	assert.Equal(t, closed.ClosedAt, rec.ClosedAt)
	assert.Equal(t, "a1", *rec.LastUserID)

	res := h.surface.Execute(ctx, Close, support("a2", "c1"))
	require.False(t, res.Rejected)
	assert.Equal(t, "Ticket is already closed.", res.Message)
}

func TestSetClaimLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	inv := admin("boss")
	inv.IntArg = int64p(7)
	res := h.surface.Execute(ctx, SetClaimLimit, inv)
	require.False(t, res.Rejected, res.Message)
	assert.Equal(t, "Claim limit set to 7.", res.Message)

	rec, err := h.configs.Get(ctx, domain.SettingsKey)
	require.NoError(t, err)
	assert.Equal(t, 7, rec.ClaimLimit)
}

func TestSetClaimLimitRejectsNegative(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	inv := admin("boss")
	inv.IntArg = int64p(-1)
	res := h.surface.Execute(ctx, SetClaimLimit, inv)
	assert.True(t, res.Rejected)
	assert.Equal(t, "The claim limit cannot be negative.", res.Message)

	_, err := h.configs.Get(ctx, domain.SettingsKey)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetClaimLimitValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res := h.surface.Execute(ctx, SetClaimLimit, admin("boss"))
	assert.True(t, res.Rejected)
	assert.Equal(t, msgMissingLimit, res.Message)

	inv := support("a1", "")
	inv.IntArg = int64p(3)
	res = h.surface.Execute(ctx, SetClaimLimit, inv)
	assert.True(t, res.Rejected)
	assert.Equal(t, msgNoPermission, res.Message)
}

func TestMyClaims(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.False(t, h.surface.Execute(ctx, Claim, support("a1", "c1")).Rejected)
	res := h.surface.Execute(ctx, MyClaims, support("a1", ""))
	require.False(t, res.Rejected)
	assert.Equal(t, "You hold 1 active tickets. The claim limit is 2.", res.Message)
}

type brokenTickets struct {
	*repository.MemoryTicketRepository
	panic bool
}

func (b brokenTickets) GetByID(ctx context.Context, id string) (*domain.TicketRecord, error) {
	if b.panic {
		panic("corrupt row")
	}
	return nil, errors.New("connection reset")
}

func TestStoreFailureBecomesGenericMessage(t *testing.T) {
	h := newHarness(t, brokenTickets{MemoryTicketRepository: repository.NewMemoryTicketRepository()})

	res := h.surface.Execute(context.Background(), Close, support("a1", "c1"))
	assert.True(t, res.Rejected)
	assert.Equal(t, msgInternal, res.Message)
}

func TestPanicBecomesGenericMessage(t *testing.T) {
	h := newHarness(t, brokenTickets{MemoryTicketRepository: repository.NewMemoryTicketRepository(), panic: true})

	res := h.surface.Execute(context.Background(), Unclaim, support("a1", "c1"))
	assert.True(t, res.Rejected)
	assert.Equal(t, msgInternal, res.Message)

	snap := h.metrics.Snapshot()
	assert.NotEmpty(t, snap.Commands)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)
	res := h.surface.Execute(context.Background(), Name("dance"), support("a1", "c1"))
	assert.True(t, res.Rejected)
	assert.Equal(t, msgUnknown, res.Message)
}
