package shift

import (
	"time"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/core/common/validation"
)

type RepeatDTO struct {
	Weekly bool     `json:"weekly"`
	Days   []string `json:"days" validate:"omitempty,dive,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	Weeks  int      `json:"weeks,omitempty" validate:"omitempty,min=1,max=52"`
}

// CreateShiftDTO creates one shift, or a weekly series when Repeat is set. With TemplateID
// the template's type, title, color and clock times are applied on Date.
type CreateShiftDTO struct {
	UserID     string     `json:"user_id,omitempty"`
	TemplateID string     `json:"template_id,omitempty"`
	Date       string     `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ShiftType  string     `json:"shift_type,omitempty" validate:"max=64"`
	Title      string     `json:"title,omitempty" validate:"max=200"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Color      string     `json:"color,omitempty" validate:"omitempty,hexcolor6"`
	Repeat     *RepeatDTO `json:"repeat,omitempty"`
}

func (d CreateShiftDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	if d.TemplateID == "" {
		if d.StartTime == nil || d.EndTime == nil {
			return appErrors.NewValidationFieldError("start_time", "start_time and end_time are required without a template", appErrors.ErrCodeInvalidClock)
		}
		if d.ShiftType == "" {
			return appErrors.NewValidationFieldError("shift_type", "shift_type is required without a template", appErrors.ErrCodeValidationFailed)
		}
		if !d.EndTime.After(*d.StartTime) && (d.Repeat == nil || !d.Repeat.Weekly) {
			return appErrors.NewValidationFieldError("end_time", "end_time must be after start_time", appErrors.ErrCodeInvalidDateRange)
		}
	} else if d.Date == "" && d.StartTime == nil {
		return appErrors.NewValidationFieldError("date", "date is required with a template", appErrors.ErrCodeValidationFailed)
	}
	if d.Repeat != nil && d.Repeat.Weekly && len(d.Repeat.Days) == 0 {
		return appErrors.NewValidationFieldError("repeat.days", "at least one weekday is required", appErrors.ErrCodeValidationFailed)
	}
	return nil
}

type UpdateShiftDTO struct {
	UserID    *string    `json:"user_id,omitempty"`
	ShiftType *string    `json:"shift_type,omitempty" validate:"omitempty,max=64"`
	Title     *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Color     *string    `json:"color,omitempty" validate:"omitempty,hexcolor6"`
}

func (d UpdateShiftDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	if (d.StartTime == nil) != (d.EndTime == nil) {
		return appErrors.NewValidationFieldError("start_time", "start_time and end_time must be changed together", appErrors.ErrCodeInvalidClock)
	}
	if d.StartTime != nil && !d.EndTime.After(*d.StartTime) {
		return appErrors.NewValidationFieldError("end_time", "end_time must be after start_time", appErrors.ErrCodeInvalidDateRange)
	}
	return nil
}

type TemplateDTO struct {
	Name      string  `json:"name" validate:"notblank,max=100"`
	ShiftType string  `json:"shift_type" validate:"notblank,max=64"`
	StartTime string  `json:"start_time" validate:"clock"`
	EndTime   string  `json:"end_time" validate:"clock"`
	Color     string  `json:"color" validate:"omitempty,hexcolor6"`
	UserID    *string `json:"user_id,omitempty"`
}

func (d TemplateDTO) Validate() error {
	return validation.Struct(d)
}
