package swap

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SwapRequest struct {
	ID              string    `gorm:"primaryKey;type:uuid"`
	RequesterID     string    `gorm:"column:requester_id;type:uuid;not null;index"`
	RequestedUserID string    `gorm:"column:requested_user_id;type:uuid;not null;index"`
	ShiftID         string    `gorm:"column:shift_id;type:uuid;not null"`
	ProposedShiftID *string   `gorm:"column:proposed_shift_id;type:uuid"`
	Notes           string    `gorm:"column:notes"`
	Status          string    `gorm:"column:status;not null;default:'pending'"`
	StartDate       time.Time `gorm:"column:start_date"`
	EndDate         time.Time `gorm:"column:end_date"`
	ReviewerID      *string   `gorm:"column:reviewer_id;type:uuid"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SwapRequest) TableName() string {
	return "shift_swap_requests"
}

func (s *SwapRequest) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
