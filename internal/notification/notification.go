package notification

import (
	"context"
	"encoding/json"
	"time"

	notificationDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/notification"
)

// Message is one push addressed to a set of users.
type Message struct {
	UserIDs []string               `json:"userIds"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Notifier delivers messages on a best-effort basis and never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

const (
	ReasonQueueFull = "queue_full"
	ReasonStopped   = "dispatcher_stopped"
)

type Failure struct {
	ID         string                 `json:"id"`
	UserIDs    []string               `json:"user_ids"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Reason     string                 `json:"reason"`
	StatusCode int                    `json:"status_code,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

func NewFailure(msg Message, reason string, statusCode int) *Failure {
	return &Failure{
		UserIDs:    msg.UserIDs,
		Title:      msg.Title,
		Body:       msg.Body,
		Data:       msg.Data,
		Reason:     reason,
		StatusCode: statusCode,
	}
}

func FailureToDataModel(f *Failure) (*notificationDatamodel.NotificationFailure, error) {
	userIDs, err := json.Marshal(f.UserIDs)
	if err != nil {
		return nil, err
	}
	data := []byte("{}")
	if f.Data != nil {
		if data, err = json.Marshal(f.Data); err != nil {
			return nil, err
		}
	}
	return &notificationDatamodel.NotificationFailure{
		ID:         f.ID,
		UserIDs:    string(userIDs),
		Title:      f.Title,
		Body:       f.Body,
		Data:       string(data),
		Reason:     f.Reason,
		StatusCode: f.StatusCode,
		CreatedAt:  f.CreatedAt,
	}, nil
}

func FailureFromDataModel(dm *notificationDatamodel.NotificationFailure) *Failure {
	f := &Failure{
		ID:         dm.ID,
		Title:      dm.Title,
		Body:       dm.Body,
		Reason:     dm.Reason,
		StatusCode: dm.StatusCode,
		CreatedAt:  dm.CreatedAt,
	}
	_ = json.Unmarshal([]byte(dm.UserIDs), &f.UserIDs)
	if dm.Data != "" {
		_ = json.Unmarshal([]byte(dm.Data), &f.Data)
	}
	return f
}

type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func SubscriptionToDataModel(s *PushSubscription) *notificationDatamodel.PushSubscription {
	return &notificationDatamodel.PushSubscription{
		ID:        s.ID,
		UserID:    s.UserID,
		Endpoint:  s.Endpoint,
		P256dh:    s.P256dh,
		Auth:      s.Auth,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func SubscriptionFromDataModel(dm *notificationDatamodel.PushSubscription) *PushSubscription {
	return &PushSubscription{
		ID:        dm.ID,
		UserID:    dm.UserID,
		Endpoint:  dm.Endpoint,
		P256dh:    dm.P256dh,
		Auth:      dm.Auth,
		CreatedAt: dm.CreatedAt,
		UpdatedAt: dm.UpdatedAt,
	}
}
