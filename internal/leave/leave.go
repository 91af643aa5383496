package leave

import (
	"time"

	leaveDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/leave"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	TypeDayOff        = "day-off"
	TypeUnpaidLeave   = "unpaid-leave"
	TypeExtraDays     = "extra-days"
	TypePublicHoliday = "public-holiday"
)

const dateLayout = "2006-01-02"

type LeaveRequest struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	LeaveType  string    `json:"leave_type"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	ReviewerID *string   `json:"reviewer_id,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Actions    *Actions  `json:"actions,omitempty"`
}

// Actions tells a viewer what they may do with a request.
type Actions struct {
	CanApprove bool `json:"can_approve"`
	CanReject  bool `json:"can_reject"`
	CanDelete  bool `json:"can_delete"`
}

type Filter struct {
	UserID string
	Status string
}

func ToDataModel(r *LeaveRequest) *leaveDatamodel.LeaveRequest {
	return &leaveDatamodel.LeaveRequest{
		ID:         r.ID,
		UserID:     r.UserID,
		LeaveType:  r.LeaveType,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		Reason:     r.Reason,
		Status:     r.Status,
		ReviewerID: r.ReviewerID,
		Notes:      r.Notes,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func FromDataModel(r *leaveDatamodel.LeaveRequest) *LeaveRequest {
	return &LeaveRequest{
		ID:         r.ID,
		UserID:     r.UserID,
		LeaveType:  r.LeaveType,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		Reason:     r.Reason,
		Status:     r.Status,
		ReviewerID: r.ReviewerID,
		Notes:      r.Notes,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func FromDataModelSlice(rows []*leaveDatamodel.LeaveRequest) []*LeaveRequest {
	out := make([]*LeaveRequest, len(rows))
	for i, r := range rows {
		out[i] = FromDataModel(r)
	}
	return out
}
