package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeLeaveSubmitted = "leave.submitted"
	EventTypeLeaveApproved  = "leave.approved"
	EventTypeLeaveRejected  = "leave.rejected"

	EventTypeShiftCreated = "shift.created"
	EventTypeShiftUpdated = "shift.updated"
	EventTypeShiftDeleted = "shift.deleted"

	EventTypeSwapRequested = "swap.requested"
	EventTypeSwapApproved  = "swap.approved"
	EventTypeSwapRejected  = "swap.rejected"

	EventTypeTaskAssigned      = "task.assigned"
	EventTypeTaskStatusChanged = "task.status_changed"
	EventTypeTaskDeleted       = "task.deleted"
)

// NotificationTypes lists every event the push notifier listens to.
var NotificationTypes = []string{
	EventTypeLeaveSubmitted, EventTypeLeaveApproved, EventTypeLeaveRejected,
	EventTypeShiftCreated, EventTypeShiftUpdated, EventTypeShiftDeleted,
	EventTypeSwapRequested, EventTypeSwapApproved, EventTypeSwapRejected,
	EventTypeTaskAssigned, EventTypeTaskStatusChanged, EventTypeTaskDeleted,
}

// Notifiable events carry who should hear about them and what to say.
type Notifiable interface {
	Event
	NotificationRecipients() []string
	NotificationTitle() string
	NotificationBody() string
}

type NotificationEvent struct {
	BaseEvent
	Recipients []string `json:"recipients"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
}

func (e *NotificationEvent) NotificationRecipients() []string { return e.Recipients }
func (e *NotificationEvent) NotificationTitle() string        { return e.Title }
func (e *NotificationEvent) NotificationBody() string         { return e.Body }

func NewNotificationEvent(eventType string, recipients []string, title, body string, data map[string]interface{}) *NotificationEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["type"] = eventType
	return &NotificationEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		Recipients: recipients,
		Title:      title,
		Body:       body,
	}
}
