package leave

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LeaveRequest struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	UserID     string    `gorm:"column:user_id;type:uuid;not null;index"`
	LeaveType  string    `gorm:"column:leave_type;not null"`
	StartDate  time.Time `gorm:"column:start_date;type:date;not null"`
	EndDate    time.Time `gorm:"column:end_date;type:date;not null"`
	Reason     string    `gorm:"column:reason;not null"`
	Status     string    `gorm:"column:status;not null;default:'pending';index"`
	ReviewerID *string   `gorm:"column:reviewer_id;type:uuid"`
	Notes      *string   `gorm:"column:notes"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (LeaveRequest) TableName() string {
	return "leave_requests"
}

func (r *LeaveRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
