package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/marvellous-media/marvellous-manager/internal/shift"
)

const replacedNote = "replaced original shift"

// ShiftStore is the part of the shift repository materialization writes through.
type ShiftStore interface {
	FindOverlapping(ctx context.Context, userID string, from, to time.Time) ([]*shift.Shift, error)
	Create(ctx context.Context, s *shift.Shift) error
	Update(ctx context.Context, s *shift.Shift) error
}

type ShiftWrite struct {
	Before *shift.Shift
	After  *shift.Shift
}

func (w ShiftWrite) Inserted() bool {
	return w.Before == nil
}

// Span returns the first and last second covered by the request in loc.
func Span(r *LeaveRequest, loc *time.Location) (time.Time, time.Time) {
	sy, sm, sd := r.StartDate.Date()
	ey, em, ed := r.EndDate.Date()
	return time.Date(sy, sm, sd, 0, 0, 0, 0, loc), time.Date(ey, em, ed, 23, 59, 59, 0, loc)
}

// Materialize turns an approved request into calendar shifts. Overlapping shifts are overwritten
// in place; without any, one shift spanning the whole range is inserted.
func Materialize(ctx context.Context, store ShiftStore, r *LeaveRequest, tmpl shift.Materialized, reviewerID string, loc *time.Location) ([]ShiftWrite, error) {
	from, to := Span(r, loc)
	notes := fmt.Sprintf("%s: %s (%s)", tmpl.Title, r.Reason, replacedNote)

	existing, err := store.FindOverlapping(ctx, r.UserID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping shifts: %w", err)
	}

	if len(existing) == 0 {
		createdBy := reviewerID
		sh := &shift.Shift{
			UserID:    r.UserID,
			ShiftType: tmpl.ShiftType,
			Title:     tmpl.Title,
			StartTime: from,
			EndTime:   to,
			Notes:     r.Reason,
			Color:     tmpl.Color,
			Status:    shift.StatusActive,
			CreatedBy: &createdBy,
			Version:   1,
		}
		if err := store.Create(ctx, sh); err != nil {
			return nil, fmt.Errorf("failed to create leave shift: %w", err)
		}
		return []ShiftWrite{{After: sh}}, nil
	}

	writes := make([]ShiftWrite, 0, len(existing))
	for _, sh := range existing {
		before := *sh
		sh.ShiftType = tmpl.ShiftType
		sh.Title = tmpl.Title
		sh.Color = tmpl.Color
		sh.Notes = notes
		if err := store.Update(ctx, sh); err != nil {
			return nil, fmt.Errorf("failed to overwrite shift %s: %w", sh.ID, err)
		}
		writes = append(writes, ShiftWrite{Before: &before, After: sh})
	}
	return writes, nil
}
