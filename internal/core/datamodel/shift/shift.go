package shift

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Shift struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	UserID      string    `gorm:"column:user_id;type:uuid;not null;index"`
	ShiftType   string    `gorm:"column:shift_type;not null"`
	Title       string    `gorm:"column:title"`
	StartTime   time.Time `gorm:"column:start_time;not null;index"`
	EndTime     time.Time `gorm:"column:end_time;not null"`
	Notes       string    `gorm:"column:notes"`
	Color       string    `gorm:"column:color"`
	Status      string    `gorm:"column:status;not null;default:'active'"`
	CreatedBy   *string   `gorm:"column:created_by;type:uuid"`
	RepeatDays  string    `gorm:"column:repeat_days"`
	SeriesID    *string   `gorm:"column:series_id;type:uuid;index"`
	SeriesIndex *int      `gorm:"column:series_index"`
	Version     int64     `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Shift) TableName() string {
	return "shifts"
}

func (s *Shift) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type ShiftTemplate struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	Name      string    `gorm:"column:name;not null"`
	ShiftType string    `gorm:"column:shift_type;not null;index"`
	StartTime string    `gorm:"column:start_time;not null"`
	EndTime   string    `gorm:"column:end_time;not null"`
	Color     string    `gorm:"column:color"`
	UserID    *string   `gorm:"column:user_id;type:uuid"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ShiftTemplate) TableName() string {
	return "shift_templates"
}

func (t *ShiftTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
