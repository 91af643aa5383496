package swap

import (
	"context"
	"fmt"
	"log/slog"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/core/common/validation"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
)

type Repository interface {
	// List returns every request when userID is empty, otherwise those sent or received by userID.
	List(ctx context.Context, userID string) ([]*SwapRequest, error)
	GetByID(ctx context.Context, id string) (*SwapRequest, error)
	Create(ctx context.Context, s *SwapRequest) error
	UpdateStatus(ctx context.Context, s *SwapRequest) error
	Delete(ctx context.Context, id string) error
}

// ShiftStore is the part of the shift repository a swap writes through.
type ShiftStore interface {
	GetByID(ctx context.Context, id string) (*shift.Shift, error)
	Update(ctx context.Context, s *shift.Shift) error
}

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(swaps Repository, shifts ShiftStore) error) error
}

type Service struct {
	repo    Repository
	tx      Transactor
	shifts  ShiftStore
	changes realtime.Publisher
	events  events.Publisher
	logger  *slog.Logger
}

func NewService(repo Repository, tx Transactor, shifts ShiftStore, changes realtime.Publisher, bus events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		tx:      tx,
		shifts:  shifts,
		changes: changes,
		events:  bus,
		logger:  logger,
	}
}

type shiftWrite struct {
	before shift.Shift
	after  *shift.Shift
}

func (s *Service) List(ctx context.Context, actor *auth.User) ([]*SwapRequest, error) {
	userID := actor.ID
	if actor.IsAdministrator() || actor.HasPermission(auth.PermViewAllRequests) {
		userID = ""
	}
	return s.repo.List(ctx, userID)
}

// Create offers the requester's shift to another user and parks the shift as pending_swap.
func (s *Service) Create(ctx context.Context, actor *auth.User, dto CreateSwapDTO) (*SwapRequest, error) {
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}
	if dto.RequestedUserID == actor.ID {
		return nil, appErrors.NewValidationFieldError("requested_user_id", "You cannot swap a shift with yourself", appErrors.ErrCodeValidationFailed)
	}

	sh, err := s.shifts.GetByID(ctx, dto.ShiftID)
	if err != nil {
		return nil, err
	}
	if sh.UserID != actor.ID {
		s.logger.Warn("swap denied: shift not owned by requester", "actor_id", actor.ID, "shift_id", sh.ID)
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if sh.Status != shift.StatusActive {
		return nil, appErrors.ErrShiftUnavailable
	}
	if dto.ProposedShiftID != nil && *dto.ProposedShiftID != "" {
		proposed, err := s.shifts.GetByID(ctx, *dto.ProposedShiftID)
		if err != nil {
			return nil, err
		}
		if proposed.UserID != dto.RequestedUserID {
			return nil, appErrors.NewValidationFieldError("proposed_shift_id", "The proposed shift must belong to the requested user", appErrors.ErrCodeValidationFailed)
		}
	} else {
		dto.ProposedShiftID = nil
	}

	req := &SwapRequest{
		RequesterID:     actor.ID,
		RequestedUserID: dto.RequestedUserID,
		ShiftID:         sh.ID,
		ProposedShiftID: dto.ProposedShiftID,
		Notes:           dto.Notes,
		Status:          StatusPending,
		StartDate:       sh.StartTime,
		EndDate:         sh.EndTime,
	}

	var writes []shiftWrite
	err = s.tx.WithinTransaction(ctx, func(swaps Repository, shifts ShiftStore) error {
		if err := swaps.Create(ctx, req); err != nil {
			return err
		}
		w, err := setShift(ctx, shifts, sh.ID, "", shift.StatusPendingSwap)
		if err != nil {
			return err
		}
		writes = append(writes, w)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to create swap request", "error", err, "shift_id", sh.ID)
		return nil, err
	}

	s.publish(ctx, realtime.EventInsert, req, nil, writes)
	s.notify(ctx, events.EventTypeSwapRequested, []string{req.RequestedUserID}, "Shift swap request",
		fmt.Sprintf("%s wants to swap %s on %s", actor.Username, sh.Title, sh.StartTime.Format("Mon 02 Jan")), req.ID)

	s.logger.Info("swap requested", "swap_id", req.ID, "shift_id", sh.ID, "requested_user_id", req.RequestedUserID)
	return req, nil
}

// setShift reloads a shift inside the transaction and applies a new owner and status.
func setShift(ctx context.Context, shifts ShiftStore, id, ownerID, status string) (shiftWrite, error) {
	sh, err := shifts.GetByID(ctx, id)
	if err != nil {
		return shiftWrite{}, err
	}
	before := *sh
	if ownerID != "" {
		sh.UserID = ownerID
	}
	sh.Status = status
	if err := shifts.Update(ctx, sh); err != nil {
		return shiftWrite{}, err
	}
	return shiftWrite{before: before, after: sh}, nil
}

// Approve hands the shift to the requested user and, when one was proposed, the proposed
// shift to the requester.
func (s *Service) Approve(ctx context.Context, actor *auth.User, id string) (*SwapRequest, error) {
	if !actor.HasPermission(auth.PermApproveRequests) {
		s.logger.Warn("approve swap denied: insufficient permissions", "actor_id", actor.ID, "swap_id", id)
		return nil, appErrors.ErrUnauthorizedAccess
	}

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, appErrors.ErrInvalidSwapStatus
	}

	before := *req
	reviewer := actor.ID
	req.Status = StatusApproved
	req.ReviewerID = &reviewer

	var writes []shiftWrite
	err = s.tx.WithinTransaction(ctx, func(swaps Repository, shifts ShiftStore) error {
		if err := swaps.UpdateStatus(ctx, req); err != nil {
			return err
		}
		w, err := setShift(ctx, shifts, req.ShiftID, req.RequestedUserID, shift.StatusActive)
		if err != nil {
			return err
		}
		writes = append(writes, w)
		if req.ProposedShiftID != nil {
			w, err := setShift(ctx, shifts, *req.ProposedShiftID, req.RequesterID, shift.StatusActive)
			if err != nil {
				return err
			}
			writes = append(writes, w)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to approve swap request", "error", err, "swap_id", id)
		return nil, err
	}

	s.publish(ctx, realtime.EventUpdate, req, &before, writes)
	s.notify(ctx, events.EventTypeSwapApproved, []string{req.RequesterID, req.RequestedUserID},
		"Shift swap approved", "A shift swap you are part of was approved", req.ID)
	return req, nil
}

func (s *Service) Reject(ctx context.Context, actor *auth.User, id string) (*SwapRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.ID != req.RequestedUserID && !actor.HasPermission(auth.PermApproveRequests) {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if req.Status != StatusPending {
		return nil, appErrors.ErrInvalidSwapStatus
	}

	before := *req
	reviewer := actor.ID
	req.Status = StatusRejected
	req.ReviewerID = &reviewer

	writes, err := s.release(ctx, req, func(swaps Repository) error {
		return swaps.UpdateStatus(ctx, req)
	})
	if err != nil {
		s.logger.Error("failed to reject swap request", "error", err, "swap_id", id)
		return nil, err
	}

	s.publish(ctx, realtime.EventUpdate, req, &before, writes)
	s.notify(ctx, events.EventTypeSwapRejected, []string{req.RequesterID},
		"Shift swap rejected", "Your shift swap request was rejected", req.ID)
	return req, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.User, id string) error {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	isOwner := actor.ID == req.RequesterID && req.Status == StatusPending
	if !isOwner && !actor.IsAdministrator() {
		return appErrors.ErrUnauthorizedAccess
	}

	var writes []shiftWrite
	if req.Status == StatusPending {
		writes, err = s.release(ctx, req, func(swaps Repository) error {
			return swaps.Delete(ctx, id)
		})
	} else {
		err = s.repo.Delete(ctx, id)
	}
	if err != nil {
		s.logger.Error("failed to delete swap request", "error", err, "swap_id", id)
		return err
	}

	s.publish(ctx, realtime.EventDelete, nil, req, writes)
	return nil
}

// release runs write and returns the swapped shift to active in one transaction.
func (s *Service) release(ctx context.Context, req *SwapRequest, write func(swaps Repository) error) ([]shiftWrite, error) {
	var writes []shiftWrite
	err := s.tx.WithinTransaction(ctx, func(swaps Repository, shifts ShiftStore) error {
		if err := write(swaps); err != nil {
			return err
		}
		w, err := setShift(ctx, shifts, req.ShiftID, "", shift.StatusActive)
		if err != nil {
			return err
		}
		writes = append(writes, w)
		return nil
	})
	return writes, err
}

func (s *Service) publish(ctx context.Context, eventType string, after, before *SwapRequest, writes []shiftWrite) {
	onErr := func(err error) { s.logger.Warn("failed to publish swap change", "error", err) }

	var id string
	var newRow, oldRow interface{}
	if after != nil {
		id, newRow = after.ID, after
	}
	if before != nil {
		oldRow = before
		if id == "" {
			id = before.ID
		}
	}
	realtime.PublishQuietly(ctx, s.changes, realtime.NewChange(realtime.TableSwapRequests, eventType, id, newRow, oldRow, 0), onErr)

	for _, w := range writes {
		before := w.before
		realtime.PublishQuietly(ctx, s.changes,
			realtime.NewChange(realtime.TableShifts, realtime.EventUpdate, w.after.ID, w.after, &before, w.after.Version), onErr)
	}
}

func (s *Service) notify(ctx context.Context, eventType string, recipients []string, title, body, swapID string) {
	if s.events == nil {
		return
	}
	evt := events.NewNotificationEvent(eventType, recipients, title, body, map[string]interface{}{"swap_id": swapID})
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish swap event", "error", err, "event_type", eventType)
	}
}
