package task

import (
	"time"

	"github.com/marvellous-media/marvellous-manager/internal/core/common/validation"
)

type BoardDTO struct {
	Name        string `json:"name" validate:"notblank,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

func (d BoardDTO) Validate() error {
	return validation.Struct(d)
}

type CreateTaskDTO struct {
	Title       string     `json:"title" validate:"notblank,max=200"`
	Description string     `json:"description" validate:"max=10000"`
	Status      string     `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress review done"`
	Priority    string     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Position    int        `json:"position" validate:"gte=0"`
	Assignees   []string   `json:"assignees,omitempty" validate:"omitempty,dive,notblank"`
}

func (d CreateTaskDTO) Validate() error {
	return validation.Struct(d)
}

type UpdateTaskDTO struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,notblank,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=10000"`
	Status      *string    `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress review done"`
	Priority    *string    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Position    *int       `json:"position,omitempty" validate:"omitempty,gte=0"`
	// Version, when sent, must match the stored version.
	Version *int64 `json:"version,omitempty"`
}

func (d UpdateTaskDTO) Validate() error {
	return validation.Struct(d)
}

type AssignDTO struct {
	UserID string `json:"user_id" validate:"notblank"`
}

func (d AssignDTO) Validate() error {
	return validation.Struct(d)
}

type SubtaskDTO struct {
	Title string `json:"title" validate:"notblank,max=200"`
}

func (d SubtaskDTO) Validate() error {
	return validation.Struct(d)
}

type ToggleSubtaskDTO struct {
	Completed *bool `json:"completed,omitempty"`
}
