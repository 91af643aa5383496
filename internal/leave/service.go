package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
	"github.com/marvellous-media/marvellous-manager/internal/user"
)

type Repository interface {
	List(ctx context.Context, filter Filter) ([]*LeaveRequest, error)
	GetByID(ctx context.Context, id string) (*LeaveRequest, error)
	GetByIDForUpdate(ctx context.Context, id string) (*LeaveRequest, error)
	Create(ctx context.Context, r *LeaveRequest) error
	UpdateReview(ctx context.Context, r *LeaveRequest) error
	Delete(ctx context.Context, id string) error
}

// Transactor runs fn with repositories bound to one database transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(leaves Repository, shifts ShiftStore) error) error
}

type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (*user.User, error)
	ListAdminIDs(ctx context.Context) ([]string, error)
}

// BalanceReader aggregates every user's balance in one query.
type BalanceReader interface {
	BalanceReport(ctx context.Context) ([]BalanceRow, error)
}

type Options struct {
	Location         *time.Location
	Rules            user.BalanceRules
	DayOffKey        string
	PublicHolidayKey string
}

type Service struct {
	repo      Repository
	tx        Transactor
	templates shift.TemplateRepository
	users     UserDirectory
	balances  BalanceReader
	changes   realtime.Publisher
	events    events.Publisher
	opts      Options
	logger    *slog.Logger
}

func NewService(
	repo Repository,
	tx Transactor,
	templates shift.TemplateRepository,
	users UserDirectory,
	balances BalanceReader,
	changes realtime.Publisher,
	bus events.Publisher,
	opts Options,
	logger *slog.Logger,
) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Rules.HoursPerDay == 0 {
		opts.Rules = user.DefaultBalanceRules()
	}
	if opts.DayOffKey == "" {
		opts.DayOffKey = shift.TemplateKeyDayOff
	}
	if opts.PublicHolidayKey == "" {
		opts.PublicHolidayKey = shift.TemplateKeyPublicHoliday
	}
	return &Service{
		repo:      repo,
		tx:        tx,
		templates: templates,
		users:     users,
		balances:  balances,
		changes:   changes,
		events:    bus,
		opts:      opts,
		logger:    logger,
	}
}

func canSeeAll(viewer *auth.User) bool {
	return viewer.IsAdministrator() || viewer.HasPermission(auth.PermViewAllRequests)
}

// ActionsFor computes what viewer may do with r. Only holders of approve_requests can ever
// approve or reject.
func ActionsFor(viewer *auth.User, r *LeaveRequest) Actions {
	canReview := viewer.HasPermission(auth.PermApproveRequests) && r.Status == StatusPending
	return Actions{
		CanApprove: canReview,
		CanReject:  canReview,
		CanDelete:  viewer.IsAdministrator() || (viewer.ID == r.UserID && r.Status == StatusPending),
	}
}

func (s *Service) List(ctx context.Context, viewer *auth.User, filter Filter) ([]*LeaveRequest, error) {
	if !canSeeAll(viewer) {
		filter.UserID = viewer.ID
	}

	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list leave requests", "error", err, "viewer_id", viewer.ID)
		return nil, err
	}

	for _, r := range requests {
		a := ActionsFor(viewer, r)
		r.Actions = &a
	}
	return requests, nil
}

func (s *Service) Submit(ctx context.Context, actor *auth.User, dto SubmitDTO) (*LeaveRequest, error) {
	start, end, err := dto.Parse()
	if err != nil {
		return nil, err
	}

	ownerID := actor.ID
	if dto.UserID != "" && dto.UserID != actor.ID {
		if !actor.IsAdministrator() {
			s.logger.Warn("submit leave denied: not an administrator", "actor_id", actor.ID, "user_id", dto.UserID)
			return nil, appErrors.ErrUnauthorizedAccess
		}
		ownerID = dto.UserID
	}

	r := &LeaveRequest{
		UserID:    ownerID,
		LeaveType: dto.LeaveType,
		StartDate: start,
		EndDate:   end,
		Reason:    dto.Reason,
		Status:    StatusPending,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		s.logger.Error("failed to create leave request", "error", err, "user_id", ownerID)
		return nil, err
	}

	s.publishChange(ctx, realtime.EventInsert, r, nil)

	if !actor.IsAdministrator() {
		s.notifyAdmins(ctx, actor, r)
	}

	a := ActionsFor(actor, r)
	r.Actions = &a
	s.logger.Info("leave request submitted", "request_id", r.ID, "user_id", ownerID, "leave_type", r.LeaveType)
	return r, nil
}

func (s *Service) notifyAdmins(ctx context.Context, actor *auth.User, r *LeaveRequest) {
	admins, err := s.users.ListAdminIDs(ctx)
	if err != nil {
		s.logger.Warn("failed to look up administrators", "error", err)
		return
	}
	recipients := make([]string, 0, len(admins))
	for _, id := range admins {
		if id != actor.ID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}

	body := fmt.Sprintf("%s requested %s from %s to %s", actor.Username, r.LeaveType,
		r.StartDate.Format(dateLayout), r.EndDate.Format(dateLayout))
	s.notify(ctx, events.EventTypeLeaveSubmitted, recipients, "New leave request", body, r.ID)
}

func (s *Service) templateKey(leaveType string) string {
	if leaveType == TypePublicHoliday {
		return s.opts.PublicHolidayKey
	}
	return s.opts.DayOffKey
}

// Approve marks r approved and materializes it into shifts in the same transaction. A request
// that is already approved can be approved again; the overwrite repeats with no new rows.
func (s *Service) Approve(ctx context.Context, actor *auth.User, id string, dto ReviewDTO) (*LeaveRequest, error) {
	if !actor.HasPermission(auth.PermApproveRequests) {
		s.logger.Warn("approve leave denied: insufficient permissions", "actor_id", actor.ID, "request_id", id)
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusRejected {
		return nil, appErrors.ErrInvalidRequestStatus
	}

	tmpl, err := shift.ResolveBuiltin(ctx, s.templates, s.templateKey(r.LeaveType))
	if err != nil {
		s.logger.Error("failed to resolve leave template", "error", err, "request_id", id)
		return nil, err
	}

	var (
		before LeaveRequest
		writes []ShiftWrite
	)
	reviewer := actor.ID
	err = s.tx.WithinTransaction(ctx, func(leaves Repository, shifts ShiftStore) error {
		current, err := leaves.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusRejected {
			return appErrors.ErrInvalidRequestStatus
		}
		before = *current
		current.Status = StatusApproved
		current.ReviewerID = &reviewer
		if dto.Notes != nil {
			current.Notes = dto.Notes
		}
		if err := leaves.UpdateReview(ctx, current); err != nil {
			return err
		}
		r = current
		writes, err = Materialize(ctx, shifts, r, tmpl, actor.ID, s.opts.Location)
		return err
	})
	if err != nil {
		if !errors.Is(err, appErrors.ErrInvalidRequestStatus) {
			s.logger.Error("failed to approve leave request", "error", err, "request_id", id)
		}
		return nil, err
	}

	s.publishChange(ctx, realtime.EventUpdate, r, &before)
	for _, w := range writes {
		eventType := realtime.EventUpdate
		if w.Inserted() {
			eventType = realtime.EventInsert
		}
		realtime.PublishQuietly(ctx, s.changes,
			realtime.NewChange(realtime.TableShifts, eventType, w.After.ID, w.After, w.Before, w.After.Version),
			func(err error) { s.logger.Warn("failed to publish shift change", "error", err) })
	}

	body := fmt.Sprintf("Your %s request from %s to %s was approved", r.LeaveType,
		r.StartDate.Format(dateLayout), r.EndDate.Format(dateLayout))
	s.notify(ctx, events.EventTypeLeaveApproved, []string{r.UserID}, "Leave approved", body, r.ID)

	a := ActionsFor(actor, r)
	r.Actions = &a
	s.logger.Info("leave request approved", "request_id", r.ID, "reviewer_id", actor.ID, "shifts", len(writes))
	return r, nil
}

func (s *Service) Reject(ctx context.Context, actor *auth.User, id string, dto ReviewDTO) (*LeaveRequest, error) {
	if !actor.HasPermission(auth.PermApproveRequests) {
		s.logger.Warn("reject leave denied: insufficient permissions", "actor_id", actor.ID, "request_id", id)
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, appErrors.ErrInvalidRequestStatus
	}

	var before LeaveRequest
	reviewer := actor.ID
	err = s.tx.WithinTransaction(ctx, func(leaves Repository, _ ShiftStore) error {
		current, err := leaves.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return appErrors.ErrInvalidRequestStatus
		}
		before = *current
		current.Status = StatusRejected
		current.ReviewerID = &reviewer
		if dto.Notes != nil {
			current.Notes = dto.Notes
		}
		r = current
		return leaves.UpdateReview(ctx, current)
	})
	if err != nil {
		if !errors.Is(err, appErrors.ErrInvalidRequestStatus) {
			s.logger.Error("failed to reject leave request", "error", err, "request_id", id)
		}
		return nil, err
	}

	s.publishChange(ctx, realtime.EventUpdate, r, &before)

	body := fmt.Sprintf("Your %s request from %s to %s was rejected", r.LeaveType,
		r.StartDate.Format(dateLayout), r.EndDate.Format(dateLayout))
	s.notify(ctx, events.EventTypeLeaveRejected, []string{r.UserID}, "Leave rejected", body, r.ID)

	a := ActionsFor(actor, r)
	r.Actions = &a
	return r, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.User, id string) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ActionsFor(actor, r).CanDelete {
		s.logger.Warn("delete leave denied", "actor_id", actor.ID, "request_id", id, "status", r.Status)
		return appErrors.ErrUnauthorizedAccess
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete leave request", "error", err, "request_id", id)
		return err
	}

	s.publishChange(ctx, realtime.EventDelete, nil, r)
	return nil
}

// GetBalance is available to the user themself and to administrators.
func (s *Service) GetBalance(ctx context.Context, actor *auth.User, userID string) (*Balance, error) {
	if actor.ID != userID && !actor.IsAdministrator() && !actor.HasPermission(auth.PermManageBalances) {
		return nil, appErrors.ErrUnauthorizedAccess
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	approved, err := s.repo.List(ctx, Filter{UserID: userID, Status: StatusApproved})
	if err != nil {
		s.logger.Error("failed to load approved leave", "error", err, "user_id", userID)
		return nil, err
	}

	b := ComputeBalance(s.opts.Rules, BalanceRow{
		UserID:       u.ID,
		Username:     u.Username,
		BalanceHours: u.Balance,
		ApprovedDays: ApprovedDays(approved),
	})
	return &b, nil
}

func (s *Service) BalanceReport(ctx context.Context, actor *auth.User) ([]Balance, error) {
	if !actor.IsAdministrator() && !actor.HasPermission(auth.PermManageBalances) {
		return nil, appErrors.ErrUnauthorizedAccess
	}

	rows, err := s.balances.BalanceReport(ctx)
	if err != nil {
		s.logger.Error("failed to load balance report", "error", err)
		return nil, err
	}

	out := make([]Balance, len(rows))
	for i, row := range rows {
		out[i] = ComputeBalance(s.opts.Rules, row)
	}
	return out, nil
}

func (s *Service) publishChange(ctx context.Context, eventType string, after, before *LeaveRequest) {
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
	realtime.PublishQuietly(ctx, s.changes,
		realtime.NewChange(realtime.TableLeaveRequests, eventType, id, newRow, oldRow, 0),
		func(err error) { s.logger.Warn("failed to publish leave change", "error", err, "request_id", id) })
}

func (s *Service) notify(ctx context.Context, eventType string, recipients []string, title, body, requestID string) {
	if s.events == nil || len(recipients) == 0 {
		return
	}
	evt := events.NewNotificationEvent(eventType, recipients, title, body,
		map[string]interface{}{"request_id": requestID})
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish leave event", "error", err, "event_type", eventType)
	}
}
