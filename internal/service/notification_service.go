package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/observability"
)

// NotificationService records the outcome of lifecycle events: a structured
// log line per persisted transition plus counters. Nothing here can fail the
// write that produced the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketOpened, n.handleTransition)
	n.dispatcher.Subscribe(events.EventTicketClaimed, n.handleTransition)
	n.dispatcher.Subscribe(events.EventTicketUnclaimed, n.handleTransition)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTransition)
	n.dispatcher.Subscribe(events.EventClaimLimitChanged, n.handleClaimLimitChanged)
}

func (n *NotificationService) handleTransition(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("source", string(event.Actor.Source)),
	}
	if event.Actor.AgentID != nil {
		fields = append(fields, zap.String("agent_id", *event.Actor.AgentID))
	}
	if payload, ok := event.Payload.(events.TicketTransitionPayload); ok {
		fields = append(fields,
			zap.String("group_id", payload.GroupID),
			zap.String("state", string(payload.State)),
			zap.String("status", string(payload.Status)))
		if payload.PreviousState != nil {
			fields = append(fields, zap.String("previous_state", string(*payload.PreviousState)))
		}
		if payload.Reason != "" {
			fields = append(fields, zap.String("reason", payload.Reason))
		}
	}
	n.logger.Info("ticket state changed", fields...)
	n.metrics.RecordTransition(string(event.Type), string(event.Actor.Source))
	return nil
}

func (n *NotificationService) handleClaimLimitChanged(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.Any("payload", event.Payload)}
	if event.Actor.AgentID != nil {
		fields = append(fields, zap.String("agent_id", *event.Actor.AgentID))
	}
	n.logger.Info("claim limit changed", fields...)
	n.metrics.RecordTransition(string(event.Type), string(event.Actor.Source))
	return nil
}
