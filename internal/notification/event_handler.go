package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marvellous-media/marvellous-manager/internal/core/events"
)

// EventHandler turns notifiable domain events into push messages.
type EventHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewEventHandler(notifier Notifier, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		notifier: notifier,
		logger:   logger,
	}
}

func (h *EventHandler) HandleNotifiable(ctx context.Context, event events.Event) error {
	n, ok := event.(events.Notifiable)
	if !ok {
		h.logger.Error("invalid event type for notification handler", "event_type", event.EventType())
		return fmt.Errorf("expected notifiable event, got %T", event)
	}

	recipients := n.NotificationRecipients()
	if len(recipients) == 0 {
		h.logger.Debug("notifiable event without recipients", "event_type", event.EventType(), "event_id", event.EventID())
		return nil
	}

	var data map[string]interface{}
	if payload, ok := event.Payload().(map[string]interface{}); ok {
		data = payload
	}

	h.notifier.Notify(ctx, Message{
		UserIDs: recipients,
		Title:   n.NotificationTitle(),
		Body:    n.NotificationBody(),
		Data:    data,
	})

	h.logger.Info("notification dispatched for event",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"recipients", len(recipients))
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	for _, eventType := range events.NotificationTypes {
		eventBus.Subscribe(eventType, h.HandleNotifiable)
	}

	h.logger.Info("notification event handlers registered", "handlers", events.NotificationTypes)
}
