package realtime

import (
	"context"
	"time"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

const (
	TableShifts          = "shifts"
	TableTasks           = "tasks"
	TableTaskAssignments = "task_assignments"
	TableSubtasks        = "subtasks"
	TableLeaveRequests   = "leave_requests"
	TableSwapRequests    = "shift_swap_requests"
)

// Change is one row-level event on the change feed.
type Change struct {
	Table     string      `json:"table"`
	EventType string      `json:"eventType"`
	RecordID  string      `json:"id"`
	New       interface{} `json:"new,omitempty"`
	Old       interface{} `json:"old,omitempty"`
	Version   int64       `json:"version,omitempty"`
	At        time.Time   `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

func NewChange(table, eventType, id string, newRow, oldRow interface{}, version int64) Change {
	return Change{
		Table:     table,
		EventType: eventType,
		RecordID:  id,
		New:       newRow,
		Old:       oldRow,
		Version:   version,
		At:        time.Now().UTC(),
	}
}

// PublishQuietly sends a change and only logs failures through the given callback.
func PublishQuietly(ctx context.Context, p Publisher, change Change, onErr func(error)) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, change); err != nil && onErr != nil {
		onErr(err)
	}
}
