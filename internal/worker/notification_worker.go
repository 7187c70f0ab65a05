package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/events"
	"github.com/spec-kit/ticket-tracker/internal/observability"
	"github.com/spec-kit/ticket-tracker/internal/repository"
	"github.com/spec-kit/ticket-tracker/internal/service"
)

// StartNotificationWorker subscribes the transition logger to the dispatcher.
func StartNotificationWorker(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *service.NotificationService {
	if dispatcher == nil {
		return nil
	}
	notifications := service.NewNotificationService(dispatcher, logger.Named("notifications"), metrics)
	notifications.RegisterHandlers()
	return notifications
}

// StartHistoryWorker subscribes the audit trail writer to the dispatcher.
func StartHistoryWorker(dispatcher events.Dispatcher, history repository.TicketHistoryRepository) *service.HistoryService {
	historyService := service.NewHistoryService(history, dispatcher)
	historyService.RegisterHandlers()
	return historyService
}
