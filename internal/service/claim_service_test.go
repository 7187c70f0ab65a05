package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

func TestClaimLimitBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.settings.SetClaimLimit(ctx, "admin", 2)
	require.NoError(t, err)

	for _, id := range []string{"t1", "t2"} {
		_, err := f.claims.Claim(ctx, ClaimRequest{TicketID: id, GroupID: "g1", AgentID: "a1"}, ClaimPolicyEnforceLimit)
		require.NoError(t, err)
	}

	_, err = f.claims.Claim(ctx, ClaimRequest{TicketID: "t3", GroupID: "g1", AgentID: "a1"}, ClaimPolicyEnforceLimit)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeClaimLimit))

	_, err = f.tickets.GetByID(ctx, "t3")
	assert.Error(t, err, "rejected claim must not create a record")

	_, err = f.ticket.Close(ctx, "t1", "g1", nil, events.SourceReconcile, "")
	require.NoError(t, err)

	res, err := f.claims.Claim(ctx, ClaimRequest{TicketID: "t3", GroupID: "g1", AgentID: "a1"}, ClaimPolicyEnforceLimit)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateClaimed, res.Record.CurrentState)
	assert.Equal(t, 2, res.ActiveClaims)
	assert.Equal(t, 2, res.ClaimLimit)
}

func TestReclaimOwnTicketAtLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.settings.SetClaimLimit(ctx, "admin", 1)
	require.NoError(t, err)

	_, err = f.claims.Claim(ctx, ClaimRequest{TicketID: "t1", GroupID: "g1", AgentID: "a1"}, ClaimPolicyEnforceLimit)
	require.NoError(t, err)

	res, err := f.claims.Claim(ctx, ClaimRequest{TicketID: "t1", GroupID: "g1", AgentID: "a1"}, ClaimPolicyEnforceLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ActiveClaims)
}

func TestUnconditionalClaimIgnoresLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.settings.SetClaimLimit(ctx, "admin", 0)
	require.NoError(t, err)

	res, err := f.claims.Claim(ctx, ClaimRequest{TicketID: "t1", GroupID: "g1", AgentID: "a1"}, ClaimPolicyUnconditional)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStateClaimed, res.Record.CurrentState)
	require.NotNil(t, res.Record.LastUserID)
	assert.Equal(t, "a1", *res.Record.LastUserID)
}

func TestConcurrentClaimsRespectLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.settings.SetClaimLimit(ctx, "admin", 2)
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.claims.Claim(ctx, ClaimRequest{TicketID: fmt.Sprintf("t%d", i), GroupID: "g1", AgentID: "a1"}, ClaimPolicyEnforceLimit)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, accepted)
	count, err := f.claims.ActiveClaims(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDefaultPolicyFollowsSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	policy, err := f.claims.DefaultPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, ClaimPolicyUnconditional, policy)

	_, err = f.settings.SetEnforceOnClaim(ctx, true)
	require.NoError(t, err)
	policy, err = f.claims.DefaultPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, ClaimPolicyEnforceLimit, policy)
}

func TestLocalClaimLockerHonoursContext(t *testing.T) {
	locker := NewLocalClaimLocker()
	unlock, err := locker.Lock(context.Background(), "a1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "a1")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBusy))

	other, err := locker.Lock(context.Background(), "a2")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "a1")
	require.NoError(t, err)
	again()
	assert.Empty(t, locker.locks)
}
