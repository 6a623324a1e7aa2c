package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-ticket-service/internal/events"
)

// NotificationService turns ticket events into structured log lines for the
// desk's downstream consumers.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketTransitioned, n.handleTicketTransitioned)
	n.dispatcher.Subscribe(events.EventTicketPriorityChanged, n.handlePriorityChanged)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", eventFields(event)...)
	return nil
}

func (n *NotificationService) handleTicketTransitioned(_ context.Context, event events.Event) error {
	n.logger.Info("TicketTransitioned", eventFields(event)...)
	return nil
}

func (n *NotificationService) handlePriorityChanged(_ context.Context, event events.Event) error {
	n.logger.Info("TicketPriorityChanged", eventFields(event)...)
	return nil
}

func (n *NotificationService) handleTicketEscalated(_ context.Context, event events.Event) error {
	n.logger.Warn("TicketEscalated", eventFields(event)...)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("hotel_id", event.HotelID),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_role", string(event.Actor.Role)),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload),
	}
}
