package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestApplyTransitionFieldAgreement(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, state := range []TicketState{TicketStateOpen, TicketStateClaimed, TicketStateUnclaimed, TicketStateClosed} {
		t.Run(string(state), func(t *testing.T) {
			tr, err := ApplyTransition(nil, TransitionRequest{TicketID: "100", GroupID: "g1", State: state, ActorID: strPtr("agent")}, now)
			require.NoError(t, err)

			rec := tr.Record
			assert.True(t, rec.Consistent())
			assert.Equal(t, state == TicketStateClosed, rec.IsClosed)
			assert.Equal(t, state == TicketStateClosed, rec.Status == TicketStatusClosed)
			assert.Equal(t, now, rec.LastUpdated)
			if state == TicketStateClosed {
				require.NotNil(t, rec.ClosedAt)
				assert.Equal(t, now, *rec.ClosedAt)
			} else {
				assert.Nil(t, rec.ClosedAt)
			}
		})
	}
}

func TestApplyTransitionCreatesRecord(t *testing.T) {
	now := time.Now().UTC()
	tr, err := ApplyTransition(nil, TransitionRequest{TicketID: "100", GroupID: "g1", State: TicketStateClaimed, ActorID: strPtr("a1")}, now)
	require.NoError(t, err)

	assert.True(t, tr.Created())
	assert.Equal(t, "100", tr.Record.TicketID)
	assert.Equal(t, "g1", tr.Record.GroupID)
	assert.Equal(t, now, tr.Record.CreatedAt)
	require.NotNil(t, tr.Record.LastUserID)
	require.NotNil(t, tr.Record.ModeratorID)
	assert.Equal(t, "a1", *tr.Record.LastUserID)
	assert.Equal(t, "a1", *tr.Record.ModeratorID)
}

func TestApplyTransitionIdempotentClose(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	existing := NewTicketRecord("100", "g1", first.Add(-time.Hour))
	closed, err := ApplyTransition(&existing, TransitionRequest{TicketID: "100", State: TicketStateClosed}, first)
	require.NoError(t, err)
	assert.False(t, closed.Repeated)

	again, err := ApplyTransition(&closed.Record, TransitionRequest{TicketID: "100", State: TicketStateClosed}, second)
	require.NoError(t, err)
	assert.True(t, again.Repeated)
	require.NotNil(t, again.Record.ClosedAt)
	assert.Equal(t, first, *again.Record.ClosedAt)
	assert.Equal(t, second, again.Record.LastUpdated)
}

func TestApplyTransitionUnclaimClearsActor(t *testing.T) {
	now := time.Now().UTC()
	existing := NewTicketRecord("100", "g1", now)
	existing.CurrentState = TicketStateClaimed
	existing.LastUserID = strPtr("a1")
	existing.ModeratorID = strPtr("a1")

	tr, err := ApplyTransition(&existing, TransitionRequest{TicketID: "100", State: TicketStateUnclaimed}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, tr.Record.ClosedAt)
	assert.Nil(t, tr.Record.LastUserID)
	assert.Nil(t, tr.Record.ModeratorID)
	assert.Equal(t, "g1", tr.Record.GroupID)
	assert.Equal(t, now, tr.Record.CreatedAt)
	require.NotNil(t, tr.Previous)
	assert.Equal(t, TicketStateClaimed, *tr.Previous)
}

func TestApplyTransitionClosedIsTerminal(t *testing.T) {
	closedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	existing := NewTicketRecord("100", "g1", closedAt.Add(-time.Hour))
	closed, err := ApplyTransition(&existing, TransitionRequest{TicketID: "100", State: TicketStateClosed}, closedAt)
	require.NoError(t, err)

	for _, state := range []TicketState{TicketStateOpen, TicketStateClaimed, TicketStateUnclaimed} {
		t.Run(string(state), func(t *testing.T) {
			_, err := ApplyTransition(&closed.Record, TransitionRequest{TicketID: "100", State: state, ActorID: strPtr("a1")}, closedAt.Add(time.Minute))
			assert.ErrorIs(t, err, ErrTicketClosed)
		})
	}
	require.NotNil(t, closed.Record.ClosedAt)
	assert.Equal(t, closedAt, *closed.Record.ClosedAt)
}

func TestApplyTransitionRejectsUnknownState(t *testing.T) {
	_, err := ApplyTransition(nil, TransitionRequest{TicketID: "100", State: "archived"}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestApplyTransitionRejectsMismatchedTicket(t *testing.T) {
	existing := NewTicketRecord("100", "g1", time.Now())
	_, err := ApplyTransition(&existing, TransitionRequest{TicketID: "200", State: TicketStateClosed}, time.Now())
	assert.ErrorIs(t, err, ErrTicketMismatch)
}

func TestTicketRecordHeldBy(t *testing.T) {
	rec := NewTicketRecord("100", "g1", time.Now())
	rec.LastUserID = strPtr("a1")
	assert.True(t, rec.HeldBy("a1"))
	assert.False(t, rec.HeldBy("a2"))

	rec.CurrentState = TicketStateClosed
	assert.False(t, rec.HeldBy("a1"))
}
