package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	clock    *testClock
	tickets  *repository.MemoryTicketRepository
	configs  *repository.MemoryConfigRepository
	recorded *recordedEvents
	events   events.Dispatcher
	ticket   *TicketService
	settings *ConfigService
	claims   *ClaimService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:    newTestClock(),
		tickets:  repository.NewMemoryTicketRepository(),
		configs:  repository.NewMemoryConfigRepository(),
		recorded: &recordedEvents{},
	}
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, et := range []events.EventType{
		events.EventTicketOpened, events.EventTicketClaimed, events.EventTicketUnclaimed,
		events.EventTicketClosed, events.EventClaimLimitChanged,
	} {
		dispatcher.Subscribe(et, f.recorded.handle)
	}
	f.events = dispatcher

	f.ticket = NewTicketService(TicketDependencies{TicketRepo: f.tickets, Dispatcher: dispatcher, Clock: f.clock.Now})
	f.settings = NewConfigService(ConfigDependencies{ConfigRepo: f.configs, DefaultLimit: domain.DefaultClaimLimit, Dispatcher: dispatcher, Clock: f.clock.Now})
	f.claims = NewClaimService(ClaimDependencies{Tickets: f.ticket, Settings: f.settings})
	return f
}
