package leave

import (
	"strings"
	"time"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/core/common/validation"
)

type SubmitDTO struct {
	UserID    string `json:"user_id,omitempty"`
	LeaveType string `json:"leave_type" validate:"required,oneof=day-off unpaid-leave extra-days public-holiday"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// Parse validates the payload and returns its dates.
func (d SubmitDTO) Parse() (time.Time, time.Time, error) {
	if strings.TrimSpace(d.Reason) == "" {
		return time.Time{}, time.Time{}, appErrors.ErrReasonRequired
	}
	if err := validation.Struct(d); err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := time.Parse(dateLayout, d.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.NewValidationFieldError("start_date", "start_date must be YYYY-MM-DD", appErrors.ErrCodeInvalidDateRange)
	}
	end, err := time.Parse(dateLayout, d.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.NewValidationFieldError("end_date", "end_date must be YYYY-MM-DD", appErrors.ErrCodeInvalidDateRange)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, appErrors.ErrInvalidDateRange
	}
	return start, end, nil
}

type ReviewDTO struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

func (d ReviewDTO) Validate() error {
	return validation.Struct(d)
}
