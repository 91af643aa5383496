package shift

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
)

const DefaultRecurrenceWeeks = 4

type Repository interface {
	List(ctx context.Context, filter Filter) ([]*Shift, error)
	GetByID(ctx context.Context, id string) (*Shift, error)
	Create(ctx context.Context, s *Shift) error
	// Update writes s if its stored version still equals s.Version, then bumps s.Version.
	Update(ctx context.Context, s *Shift) error
	Delete(ctx context.Context, id string) error
	ListSeries(ctx context.Context, seriesID string, action RecurrenceAction, pivot time.Time) ([]*Shift, error)
	FindOverlapping(ctx context.Context, userID string, from, to time.Time) ([]*Shift, error)
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}

type TemplateRepository interface {
	ListTemplates(ctx context.Context) ([]*Template, error)
	GetTemplate(ctx context.Context, id string) (*Template, error)
	GetTemplateByKey(ctx context.Context, key string) (*Template, error)
	CreateTemplate(ctx context.Context, t *Template) error
	UpdateTemplate(ctx context.Context, t *Template) error
	DeleteTemplate(ctx context.Context, id string) error
}

type Options struct {
	Location        *time.Location
	RecurrenceWeeks int
	Now             func() time.Time
}

type Service struct {
	repo      Repository
	templates TemplateRepository
	changes   realtime.Publisher
	events    events.Publisher
	loc       *time.Location
	weeks     int
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(repo Repository, templates TemplateRepository, changes realtime.Publisher, bus events.Publisher, opts Options, logger *slog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RecurrenceWeeks <= 0 {
		opts.RecurrenceWeeks = DefaultRecurrenceWeeks
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		repo:      repo,
		templates: templates,
		changes:   changes,
		events:    bus,
		loc:       opts.Location,
		weeks:     opts.RecurrenceWeeks,
		now:       opts.Now,
		logger:    logger,
	}
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Shift, error) {
	shifts, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list shifts", "error", err)
		return nil, err
	}
	return shifts, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*Shift, error) {
	return s.repo.GetByID(ctx, id)
}

var ownership = auth.NewABACPolicy()

func (s *Service) canManage(actor *auth.User, ownerID string) bool {
	return ownership.Allow(actor, ownerID, auth.PermManageShifts, auth.ActionUpdate)
}

// Create inserts a single shift or, with a weekly repeat, one shift per occurrence sharing a
// new series id.
func (s *Service) Create(ctx context.Context, actor *auth.User, dto CreateShiftDTO) ([]*Shift, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	ownerID := dto.UserID
	if ownerID == "" {
		ownerID = actor.ID
	}
	if !s.canManage(actor, ownerID) {
		s.logger.Warn("create shift denied: insufficient permissions", "actor_id", actor.ID, "owner_id", ownerID)
		return nil, appErrors.ErrUnauthorizedAccess
	}

	base, err := s.baseShift(ctx, actor, ownerID, dto)
	if err != nil {
		return nil, err
	}

	var created []*Shift
	if dto.Repeat != nil && dto.Repeat.Weekly {
		created, err = s.createSeries(ctx, base, dto.Repeat)
	} else {
		err = s.repo.Create(ctx, base)
		created = []*Shift{base}
	}
	if err != nil {
		s.logger.Error("failed to create shift", "error", err, "owner_id", ownerID)
		return nil, err
	}

	for _, sh := range created {
		s.publishChange(ctx, realtime.EventInsert, sh, nil)
	}

	if ownerID != actor.ID {
		body := fmt.Sprintf("%s on %s", base.Title, created[0].StartTime.In(s.loc).Format("Mon 02 Jan 15:04"))
		if len(created) > 1 {
			body = fmt.Sprintf("%d %s shifts starting %s", len(created), base.Title, created[0].StartTime.In(s.loc).Format("Mon 02 Jan"))
		}
		s.notify(ctx, events.EventTypeShiftCreated, ownerID, "New shift assigned", body, created[0].ID)
	}

	s.logger.Info("shift created", "owner_id", ownerID, "count", len(created), "actor_id", actor.ID)
	return created, nil
}

func (s *Service) baseShift(ctx context.Context, actor *auth.User, ownerID string, dto CreateShiftDTO) (*Shift, error) {
	createdBy := actor.ID
	sh := &Shift{
		UserID:    ownerID,
		ShiftType: dto.ShiftType,
		Title:     dto.Title,
		Notes:     dto.Notes,
		Color:     dto.Color,
		Status:    StatusActive,
		CreatedBy: &createdBy,
		Version:   1,
	}

	if dto.TemplateID == "" {
		sh.StartTime = *dto.StartTime
		sh.EndTime = *dto.EndTime
	} else {
		t, err := s.templates.GetTemplate(ctx, dto.TemplateID)
		if err != nil {
			return nil, err
		}
		start, err := ParseClock(t.StartTime)
		if err != nil {
			return nil, appErrors.NewValidationFieldError("start_time", err.Error(), appErrors.ErrCodeInvalidClock)
		}
		end, err := ParseClock(t.EndTime)
		if err != nil {
			return nil, appErrors.NewValidationFieldError("end_time", err.Error(), appErrors.ErrCodeInvalidClock)
		}

		var day time.Time
		if dto.Date != "" {
			day, err = time.ParseInLocation("2006-01-02", dto.Date, s.loc)
			if err != nil {
				return nil, appErrors.NewValidationFieldError("date", "date must be YYYY-MM-DD", appErrors.ErrCodeValidationFailed)
			}
		} else {
			day = dto.StartTime.In(s.loc)
		}

		sh.StartTime, sh.EndTime = Span(day, start, end)
		sh.ShiftType = t.ShiftType
		if sh.Title == "" {
			sh.Title = t.Name
		}
		if sh.Color == "" {
			sh.Color = t.Color
		}
	}

	if sh.Title == "" {
		sh.Title = sh.ShiftType
	}
	return sh, nil
}

func (s *Service) createSeries(ctx context.Context, base *Shift, repeat *RepeatDTO) ([]*Shift, error) {
	weekdays, err := ParseWeekdays(repeat.Days)
	if err != nil {
		return nil, appErrors.NewValidationFieldError("repeat.days", err.Error(), appErrors.ErrCodeValidationFailed)
	}
	weeks := repeat.Weeks
	if weeks <= 0 {
		weeks = s.weeks
	}

	occurrences := Occurrences(s.now().In(s.loc), weekdays, weeks,
		ClockOf(base.StartTime.In(s.loc)), ClockOf(base.EndTime.In(s.loc)))

	seriesID := uuid.NewString()
	created := make([]*Shift, 0, len(occurrences))

	err = s.repo.Transaction(ctx, func(repo Repository) error {
		for _, occ := range occurrences {
			idx := occ.Index
			sh := *base
			sh.StartTime = occ.Start
			sh.EndTime = occ.End
			sh.RepeatDays = repeat.Days
			sh.SeriesID = &seriesID
			sh.SeriesIndex = &idx
			if err := repo.Create(ctx, &sh); err != nil {
				return err
			}
			created = append(created, &sh)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// members resolves the shifts a recurrence action addresses. Shifts outside a series only
// ever address themselves.
func (s *Service) members(ctx context.Context, repo Repository, target *Shift, action RecurrenceAction) ([]*Shift, error) {
	if action == ActionThis || target.SeriesID == nil || *target.SeriesID == "" {
		return []*Shift{target}, nil
	}
	return repo.ListSeries(ctx, *target.SeriesID, action, target.StartTime)
}

func (s *Service) Update(ctx context.Context, actor *auth.User, id string, dto UpdateShiftDTO, action RecurrenceAction) ([]*Shift, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canManage(actor, target.UserID) {
		s.logger.Warn("update shift denied: insufficient permissions", "actor_id", actor.ID, "shift_id", id)
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if dto.UserID != nil && *dto.UserID != target.UserID && !actor.HasPermission(auth.PermManageShifts) {
		return nil, appErrors.ErrUnauthorizedAccess
	}

	type pair struct{ before, after *Shift }
	var updated []pair

	err = s.repo.Transaction(ctx, func(repo Repository) error {
		members, err := s.members(ctx, repo, target, action)
		if err != nil {
			return err
		}
		for _, m := range members {
			if !s.canManage(actor, m.UserID) {
				return appErrors.ErrUnauthorizedAccess
			}
			before := *m
			s.apply(m, target.ID, dto)
			if err := repo.Update(ctx, m); err != nil {
				return err
			}
			updated = append(updated, pair{before: &before, after: m})
		}
		return nil
	})
	if err != nil {
		if _, ok := appErrors.IsAppError(err); !ok {
			s.logger.Error("failed to update shift", "error", err, "shift_id", id)
		}
		return nil, err
	}

	out := make([]*Shift, 0, len(updated))
	for _, p := range updated {
		s.publishChange(ctx, realtime.EventUpdate, p.after, p.before)
		out = append(out, p.after)
	}

	if len(out) > 0 && out[0].UserID != actor.ID {
		body := fmt.Sprintf("%s on %s was changed", out[0].Title, out[0].StartTime.In(s.loc).Format("Mon 02 Jan"))
		s.notify(ctx, events.EventTypeShiftUpdated, out[0].UserID, "Shift updated", body, out[0].ID)
	}

	s.logger.Info("shift updated", "shift_id", id, "action", string(action), "count", len(out), "actor_id", actor.ID)
	return out, nil
}

// apply copies the requested changes onto m. Clock changes move each member on its own date.
func (s *Service) apply(m *Shift, targetID string, dto UpdateShiftDTO) {
	if dto.UserID != nil {
		m.UserID = *dto.UserID
	}
	if dto.ShiftType != nil {
		m.ShiftType = *dto.ShiftType
	}
	if dto.Title != nil {
		m.Title = *dto.Title
	}
	if dto.Notes != nil {
		m.Notes = *dto.Notes
	}
	if dto.Color != nil {
		m.Color = *dto.Color
	}
	if dto.StartTime == nil {
		return
	}
	if m.ID == targetID {
		m.StartTime = *dto.StartTime
		m.EndTime = *dto.EndTime
		return
	}
	m.StartTime, m.EndTime = Span(m.StartTime.In(s.loc),
		ClockOf(dto.StartTime.In(s.loc)), ClockOf(dto.EndTime.In(s.loc)))
}

func (s *Service) Delete(ctx context.Context, actor *auth.User, id string, action RecurrenceAction) ([]*Shift, error) {
	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canManage(actor, target.UserID) {
		s.logger.Warn("delete shift denied: insufficient permissions", "actor_id", actor.ID, "shift_id", id)
		return nil, appErrors.ErrUnauthorizedAccess
	}

	var deleted []*Shift
	err = s.repo.Transaction(ctx, func(repo Repository) error {
		members, err := s.members(ctx, repo, target, action)
		if err != nil {
			return err
		}
		for _, m := range members {
			if !s.canManage(actor, m.UserID) {
				return appErrors.ErrUnauthorizedAccess
			}
			if err := repo.Delete(ctx, m.ID); err != nil {
				return err
			}
			deleted = append(deleted, m)
		}
		return nil
	})
	if err != nil {
		if _, ok := appErrors.IsAppError(err); !ok {
			s.logger.Error("failed to delete shift", "error", err, "shift_id", id)
		}
		return nil, err
	}

	for _, d := range deleted {
		s.publishChange(ctx, realtime.EventDelete, nil, d)
	}

	if target.UserID != actor.ID {
		body := fmt.Sprintf("%s on %s was removed", target.Title, target.StartTime.In(s.loc).Format("Mon 02 Jan"))
		s.notify(ctx, events.EventTypeShiftDeleted, target.UserID, "Shift removed", body, target.ID)
	}

	s.logger.Info("shift deleted", "shift_id", id, "action", string(action), "count", len(deleted), "actor_id", actor.ID)
	return deleted, nil
}

// PublishChange lets other packages that write shifts inside their own transactions put
// those writes on the change feed.
func (s *Service) PublishChange(ctx context.Context, eventType string, after, before *Shift) {
	s.publishChange(ctx, eventType, after, before)
}

func (s *Service) publishChange(ctx context.Context, eventType string, after, before *Shift) {
	var id string
	var version int64
	var newRow, oldRow interface{}
	if after != nil {
		id, version, newRow = after.ID, after.Version, after
	}
	if before != nil {
		oldRow = before
		if id == "" {
			id = before.ID
		}
	}
	realtime.PublishQuietly(ctx, s.changes,
		realtime.NewChange(realtime.TableShifts, eventType, id, newRow, oldRow, version),
		func(err error) {
			s.logger.Warn("failed to publish shift change", "error", err, "shift_id", id)
		})
}

func (s *Service) notify(ctx context.Context, eventType, userID, title, body, shiftID string) {
	if s.events == nil {
		return
	}
	evt := events.NewNotificationEvent(eventType, []string{userID}, title, body,
		map[string]interface{}{"shift_id": shiftID})
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish shift event", "error", err, "event_type", eventType)
	}
}

func (s *Service) ListTemplates(ctx context.Context) ([]*Template, error) {
	return s.templates.ListTemplates(ctx)
}

func (s *Service) CreateTemplate(ctx context.Context, actor *auth.User, dto TemplateDTO) (*Template, error) {
	if !actor.HasPermission(auth.PermManageTemplates) {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	t := &Template{
		Name:      dto.Name,
		ShiftType: dto.ShiftType,
		StartTime: dto.StartTime,
		EndTime:   dto.EndTime,
		Color:     dto.Color,
		UserID:    dto.UserID,
	}
	if err := s.templates.CreateTemplate(ctx, t); err != nil {
		s.logger.Error("failed to create template", "error", err)
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, actor *auth.User, id string, dto TemplateDTO) (*Template, error) {
	if !actor.HasPermission(auth.PermManageTemplates) {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name = dto.Name
	t.ShiftType = dto.ShiftType
	t.StartTime = dto.StartTime
	t.EndTime = dto.EndTime
	t.Color = dto.Color
	t.UserID = dto.UserID

	if err := s.templates.UpdateTemplate(ctx, t); err != nil {
		s.logger.Error("failed to update template", "error", err, "template_id", id)
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, actor *auth.User, id string) error {
	if !actor.HasPermission(auth.PermManageTemplates) {
		return appErrors.ErrUnauthorizedAccess
	}
	if _, err := s.templates.GetTemplate(ctx, id); err != nil {
		return err
	}
	return s.templates.DeleteTemplate(ctx, id)
}
