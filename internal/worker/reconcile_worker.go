package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/host"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

const defaultTicketTimeout = 15 * time.Second

// Close reasons recorded on reconciliation-driven closures.
const (
	ReasonGroupUnavailable   = "group_unavailable"
	ReasonThreadMissing      = "thread_missing"
	ReasonThreadClosedOnHost = "thread_closed_on_host"
)

// ReconcilerConfig configures one reconciliation loop.
type ReconcilerConfig struct {
	Name     string
	Period   time.Duration
	Tickets  *service.TicketService
	Resolver host.Resolver
	// Connection gates the first sweep and ends the loop once it is no longer alive.
	Connection    host.Connection
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	TicketTimeout time.Duration
	Clock         func() time.Time
}

// SweepResult summarizes one pass over the active tickets.
type SweepResult struct {
	Checked int
	Closed  int
	Failed  int
	Err     error
}

// Reconciler force-closes active tickets whose guild or thread is gone or
// closed on the host. Several reconcilers may run over the same store; the
// closed transition is idempotent so their sweeps may overlap.
type Reconciler struct {
	name          string
	period        time.Duration
	tickets       *service.TicketService
	resolver      host.Resolver
	conn          host.Connection
	logger        *zap.Logger
	metrics       *observability.Metrics
	ticketTimeout time.Duration
	now           func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconciler builds a reconciler; Start launches its loop.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.TicketTimeout
	if timeout <= 0 {
		timeout = defaultTicketTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		name:          cfg.Name,
		period:        cfg.Period,
		tickets:       cfg.Tickets,
		resolver:      cfg.Resolver,
		conn:          cfg.Connection,
		logger:        logger.With(zap.String("loop", cfg.Name)),
		metrics:       cfg.Metrics,
		ticketTimeout: timeout,
		now:           clock,
	}
}

// Name returns the loop name.
func (r *Reconciler) Name() string {
	return r.name
}

// Start runs the loop in a goroutine until Stop or ctx is done.
func (r *Reconciler) Start(ctx context.Context) error {
	if r.period <= 0 {
		return fmt.Errorf("reconciler %s: period must be positive", r.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("reconciler %s already started", r.name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx, r.done)
	return nil
}

// Stop signals the loop and waits for the in-flight sweep to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if r.conn != nil {
		if err := r.conn.WaitReady(ctx); err != nil {
			r.logger.Info("reconciler not started", zap.Error(err))
			return
		}
	}
	r.logger.Info("reconciler started", zap.Duration("period", r.period))

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		if r.conn != nil && !r.conn.Alive() {
			r.logger.Info("host connection closed; reconciler exiting")
			return
		}
		r.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce evaluates every active ticket once. A failure on one ticket is
// logged and the sweep moves on; a failure to list tickets ends the sweep.
func (r *Reconciler) SweepOnce(ctx context.Context) (result SweepResult) {
	start := r.now()
	defer func() {
		if rec := recover(); rec != nil {
			result.Err = fmt.Errorf("sweep panicked: %v", rec)
			r.logger.Error("sweep panicked", zap.Any("panic", rec))
		}
		r.metrics.RecordSweep(r.name, result.Checked, result.Closed, result.Failed, result.Err != nil, start, r.now().Sub(start))
	}()

	active, err := r.tickets.Active(ctx)
	if err != nil {
		r.logger.Error("list active tickets failed", zap.Error(err))
		result.Err = err
		return result
	}

	for _, rec := range active {
		if ctx.Err() != nil {
			break
		}
		result.Checked++
		closed, err := r.reconcileTicket(ctx, rec)
		if err != nil {
			result.Failed++
			r.logger.Warn("reconcile ticket failed",
				zap.String("ticket_id", rec.TicketID),
				zap.String("group_id", rec.GroupID),
				zap.Error(err))
			continue
		}
		if closed {
			result.Closed++
		}
	}

	if result.Closed > 0 || result.Failed > 0 {
		r.logger.Info("sweep finished",
			zap.Int("checked", result.Checked),
			zap.Int("closed", result.Closed),
			zap.Int("failed", result.Failed))
	}
	return result
}

func (r *Reconciler) reconcileTicket(parent context.Context, rec domain.TicketRecord) (closed bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, r.ticketTimeout)
	defer cancel()

	group, err := r.resolver.ResolveGroup(ctx, rec.GroupID)
	if errors.Is(err, host.ErrNotFound) {
		return true, r.forceClose(ctx, rec, ReasonGroupUnavailable)
	}
	if err != nil {
		return false, err
	}

	conv, err := r.resolver.ResolveConversation(ctx, group, rec.TicketID)
	if errors.Is(err, host.ErrNotFound) {
		return true, r.forceClose(ctx, rec, ReasonThreadMissing)
	}
	if err != nil {
		return false, err
	}
	if conv.Closed {
		return true, r.forceClose(ctx, rec, ReasonThreadClosedOnHost)
	}
	return false, nil
}

func (r *Reconciler) forceClose(ctx context.Context, rec domain.TicketRecord, reason string) error {
	if _, err := r.tickets.Close(ctx, rec.TicketID, "", nil, events.SourceReconcile, reason); err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}
	return nil
}
