package swap

import (
	"time"

	swapDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/swap"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type SwapRequest struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requester_id"`
	RequestedUserID string    `json:"requested_user_id"`
	ShiftID         string    `json:"shift_id"`
	ProposedShiftID *string   `json:"proposed_shift_id,omitempty"`
	Notes           string    `json:"notes"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	ReviewerID      *string   `json:"reviewer_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func ToDataModel(s *SwapRequest) *swapDatamodel.SwapRequest {
	return &swapDatamodel.SwapRequest{
		ID:              s.ID,
		RequesterID:     s.RequesterID,
		RequestedUserID: s.RequestedUserID,
		ShiftID:         s.ShiftID,
		ProposedShiftID: s.ProposedShiftID,
		Notes:           s.Notes,
		Status:          s.Status,
		StartDate:       s.StartDate,
		EndDate:         s.EndDate,
		ReviewerID:      s.ReviewerID,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func FromDataModel(s *swapDatamodel.SwapRequest) *SwapRequest {
	return &SwapRequest{
		ID:              s.ID,
		RequesterID:     s.RequesterID,
		RequestedUserID: s.RequestedUserID,
		ShiftID:         s.ShiftID,
		ProposedShiftID: s.ProposedShiftID,
		Notes:           s.Notes,
		Status:          s.Status,
		StartDate:       s.StartDate,
		EndDate:         s.EndDate,
		ReviewerID:      s.ReviewerID,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

type CreateSwapDTO struct {
	ShiftID         string  `json:"shift_id" validate:"notblank"`
	RequestedUserID string  `json:"requested_user_id" validate:"notblank"`
	ProposedShiftID *string `json:"proposed_shift_id,omitempty"`
	Notes           string  `json:"notes" validate:"max=1000"`
}
