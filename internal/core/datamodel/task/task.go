package task

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Board struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description"`
	CreatedBy   string    `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Board) TableName() string {
	return "boards"
}

func (b *Board) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type Task struct {
	ID          string     `gorm:"primaryKey;type:uuid"`
	BoardID     string     `gorm:"column:board_id;type:uuid;not null;index"`
	Title       string     `gorm:"column:title;not null"`
	Description string     `gorm:"column:description"`
	Status      string     `gorm:"column:status;not null;default:'todo'"`
	Priority    string     `gorm:"column:priority;not null;default:'medium'"`
	DueDate     *time.Time `gorm:"column:due_date"`
	Position    int        `gorm:"column:position;not null;default:0"`
	CreatedBy   string     `gorm:"column:created_by;type:uuid;not null"`
	Version     int64      `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type TaskAssignment struct {
	TaskID    string    `gorm:"primaryKey;column:task_id;type:uuid"`
	UserID    string    `gorm:"primaryKey;column:user_id;type:uuid"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (TaskAssignment) TableName() string {
	return "task_assignments"
}

type Subtask struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	TaskID    string    `gorm:"column:task_id;type:uuid;not null;index"`
	Title     string    `gorm:"column:title;not null"`
	Completed bool      `gorm:"column:completed;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subtask) TableName() string {
	return "subtasks"
}

func (s *Subtask) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
