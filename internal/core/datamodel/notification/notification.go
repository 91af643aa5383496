package notification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PushSubscription struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	UserID    string    `gorm:"column:user_id;type:uuid;not null;index"`
	Endpoint  string    `gorm:"column:endpoint;uniqueIndex;not null"`
	P256dh    string    `gorm:"column:p256dh"`
	Auth      string    `gorm:"column:auth"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}

func (p *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// NotificationFailure is one undelivered push. UserIDs and Data hold JSON text.
type NotificationFailure struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	UserIDs    string    `gorm:"column:user_ids;not null"`
	Title      string    `gorm:"column:title"`
	Body       string    `gorm:"column:body"`
	Data       string    `gorm:"column:data"`
	Reason     string    `gorm:"column:reason;not null"`
	StatusCode int       `gorm:"column:status_code"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (NotificationFailure) TableName() string {
	return "notification_failures"
}

func (f *NotificationFailure) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
