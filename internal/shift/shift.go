package shift

import (
	"strings"
	"time"

	shiftDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/shift"
)

const (
	StatusActive      = "active"
	StatusPendingSwap = "pending_swap"
)

const (
	TypeDayOff        = "day-off"
	TypePublicHoliday = "public-holiday"
)

// Built-in template keys used when leave is materialized into shifts.
const (
	TemplateKeyDayOff        = "DAY_OFF"
	TemplateKeyPublicHoliday = "PUBLIC_HOLIDAY"
)

// RecurrenceAction selects which members of a series an update or delete touches.
type RecurrenceAction string

const (
	ActionThis     RecurrenceAction = "this"
	ActionFuture   RecurrenceAction = "future"
	ActionPrevious RecurrenceAction = "previous"
)

func ParseRecurrenceAction(s string) (RecurrenceAction, bool) {
	switch RecurrenceAction(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionThis:
		return ActionThis, true
	case ActionFuture:
		return ActionFuture, true
	case ActionPrevious:
		return ActionPrevious, true
	}
	return "", false
}

type Shift struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ShiftType   string    `json:"shift_type"`
	Title       string    `json:"title"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Notes       string    `json:"notes"`
	Color       string    `json:"color"`
	Status      string    `json:"status"`
	CreatedBy   *string   `json:"created_by,omitempty"`
	RepeatDays  []string  `json:"repeat_days,omitempty"`
	SeriesID    *string   `json:"series_id,omitempty"`
	SeriesIndex *int      `json:"series_index,omitempty"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ShiftType string    `json:"shift_type"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Color     string    `json:"color"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Filter struct {
	UserID string
	From   *time.Time
	To     *time.Time
}

func ToDataModel(s *Shift) *shiftDatamodel.Shift {
	return &shiftDatamodel.Shift{
		ID:          s.ID,
		UserID:      s.UserID,
		ShiftType:   s.ShiftType,
		Title:       s.Title,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Notes:       s.Notes,
		Color:       s.Color,
		Status:      s.Status,
		CreatedBy:   s.CreatedBy,
		RepeatDays:  strings.Join(s.RepeatDays, ","),
		SeriesID:    s.SeriesID,
		SeriesIndex: s.SeriesIndex,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func FromDataModel(s *shiftDatamodel.Shift) *Shift {
	var repeat []string
	if s.RepeatDays != "" {
		repeat = strings.Split(s.RepeatDays, ",")
	}
	return &Shift{
		ID:          s.ID,
		UserID:      s.UserID,
		ShiftType:   s.ShiftType,
		Title:       s.Title,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Notes:       s.Notes,
		Color:       s.Color,
		Status:      s.Status,
		CreatedBy:   s.CreatedBy,
		RepeatDays:  repeat,
		SeriesID:    s.SeriesID,
		SeriesIndex: s.SeriesIndex,
		Version:     s.Version,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func FromDataModelSlice(rows []*shiftDatamodel.Shift) []*Shift {
	out := make([]*Shift, len(rows))
	for i, r := range rows {
		out[i] = FromDataModel(r)
	}
	return out
}

func TemplateToDataModel(t *Template) *shiftDatamodel.ShiftTemplate {
	return &shiftDatamodel.ShiftTemplate{
		ID:        t.ID,
		Name:      t.Name,
		ShiftType: t.ShiftType,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Color:     t.Color,
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt,
	}
}

func TemplateFromDataModel(t *shiftDatamodel.ShiftTemplate) *Template {
	return &Template{
		ID:        t.ID,
		Name:      t.Name,
		ShiftType: t.ShiftType,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Color:     t.Color,
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt,
	}
}
