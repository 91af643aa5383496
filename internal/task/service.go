package task

import (
	"context"
	"fmt"
	"log/slog"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	"github.com/marvellous-media/marvellous-manager/internal/auth"
	"github.com/marvellous-media/marvellous-manager/internal/core/events"
	"github.com/marvellous-media/marvellous-manager/internal/realtime"
)

type Repository interface {
	ListBoards(ctx context.Context) ([]*Board, error)
	GetBoard(ctx context.Context, id string) (*Board, error)
	CreateBoard(ctx context.Context, b *Board) error
	UpdateBoard(ctx context.Context, b *Board) error
	// DeleteBoard removes the board together with its tasks, assignments and subtasks.
	DeleteBoard(ctx context.Context, id string) error

	ListTasks(ctx context.Context, boardID string) ([]*Task, error)
	// GetTask loads the task with its assignees and subtasks.
	GetTask(ctx context.Context, id string) (*Task, error)
	CreateTask(ctx context.Context, t *Task) error
	// UpdateTask writes t if its stored version still equals t.Version, then bumps t.Version.
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
	Assign(ctx context.Context, taskID, userID string) error
	Unassign(ctx context.Context, taskID, userID string) error

	GetSubtask(ctx context.Context, id string) (*Subtask, error)
	CreateSubtask(ctx context.Context, s *Subtask) error
	UpdateSubtask(ctx context.Context, s *Subtask) error
	DeleteSubtask(ctx context.Context, id string) error
}

type Service struct {
	repo    Repository
	changes realtime.Publisher
	events  events.Publisher
	logger  *slog.Logger
}

func NewService(repo Repository, changes realtime.Publisher, bus events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		changes: changes,
		events:  bus,
		logger:  logger,
	}
}

func (s *Service) ListBoards(ctx context.Context) ([]*Board, error) {
	return s.repo.ListBoards(ctx)
}

func (s *Service) CreateBoard(ctx context.Context, actor *auth.User, dto BoardDTO) (*Board, error) {
	if !actor.HasPermission(auth.PermManageTasks) {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	b := &Board{Name: dto.Name, Description: dto.Description, CreatedBy: actor.ID}
	if err := s.repo.CreateBoard(ctx, b); err != nil {
		s.logger.Error("failed to create board", "error", err)
		return nil, err
	}
	s.logger.Info("board created", "board_id", b.ID, "actor_id", actor.ID)
	return b, nil
}

func (s *Service) UpdateBoard(ctx context.Context, actor *auth.User, id string, dto BoardDTO) (*Board, error) {
	if !actor.HasPermission(auth.PermManageTasks) {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	b, err := s.repo.GetBoard(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Name = dto.Name
	b.Description = dto.Description
	if err := s.repo.UpdateBoard(ctx, b); err != nil {
		s.logger.Error("failed to update board", "error", err, "board_id", id)
		return nil, err
	}
	return b, nil
}

func (s *Service) DeleteBoard(ctx context.Context, actor *auth.User, id string) error {
	if !actor.HasPermission(auth.PermManageTasks) {
		return appErrors.ErrUnauthorizedAccess
	}
	if _, err := s.repo.GetBoard(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteBoard(ctx, id); err != nil {
		s.logger.Error("failed to delete board", "error", err, "board_id", id)
		return err
	}
	s.logger.Info("board deleted", "board_id", id, "actor_id", actor.ID)
	return nil
}

func (s *Service) ListTasks(ctx context.Context, boardID string) ([]*Task, error) {
	if _, err := s.repo.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, boardID)
}

func (s *Service) GetTask(ctx context.Context, id string) (*Task, error) {
	return s.repo.GetTask(ctx, id)
}

// canEdit allows the creator, any assignee and task managers.
var ownership = auth.NewABACPolicy()

func (s *Service) canEdit(actor *auth.User, t *Task) bool {
	return t.IsAssigned(actor.ID) || ownership.Allow(actor, t.CreatedBy, auth.PermManageTasks, auth.ActionUpdate)
}

func (s *Service) canManage(actor *auth.User, t *Task) bool {
	return ownership.Allow(actor, t.CreatedBy, auth.PermManageTasks, auth.ActionDelete)
}

func (s *Service) CreateTask(ctx context.Context, actor *auth.User, boardID string, dto CreateTaskDTO) (*Task, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}

	t := &Task{
		BoardID:     boardID,
		Title:       dto.Title,
		Description: dto.Description,
		Status:      dto.Status,
		Priority:    dto.Priority,
		DueDate:     dto.DueDate,
		Position:    dto.Position,
		CreatedBy:   actor.ID,
		Version:     1,
		Assignees:   dedupe(dto.Assignees),
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}

	if err := s.repo.CreateTask(ctx, t); err != nil {
		s.logger.Error("failed to create task", "error", err, "board_id", boardID)
		return nil, err
	}

	s.publish(ctx, realtime.TableTasks, realtime.EventInsert, t.ID, t, nil, t.Version)
	for _, userID := range t.Assignees {
		s.publishAssignment(ctx, realtime.EventInsert, t.ID, userID)
	}
	s.notify(ctx, events.EventTypeTaskAssigned, without(t.Assignees, actor.ID),
		"New task assigned", t.Title, t.ID)

	s.logger.Info("task created", "task_id", t.ID, "board_id", boardID, "actor_id", actor.ID)
	return t, nil
}

func (s *Service) UpdateTask(ctx context.Context, actor *auth.User, id string, dto UpdateTaskDTO) (*Task, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canEdit(actor, t) {
		s.logger.Warn("update task denied: insufficient permissions", "actor_id", actor.ID, "task_id", id)
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if dto.Version != nil && *dto.Version != t.Version {
		return nil, appErrors.ErrStaleVersion
	}

	before := *t
	if dto.Title != nil {
		t.Title = *dto.Title
	}
	if dto.Description != nil {
		t.Description = *dto.Description
	}
	if dto.Status != nil {
		t.Status = *dto.Status
	}
	if dto.Priority != nil {
		t.Priority = *dto.Priority
	}
	if dto.DueDate != nil {
		t.DueDate = dto.DueDate
	}
	if dto.Position != nil {
		t.Position = *dto.Position
	}

	if err := s.repo.UpdateTask(ctx, t); err != nil {
		if _, ok := appErrors.IsAppError(err); !ok {
			s.logger.Error("failed to update task", "error", err, "task_id", id)
		}
		return nil, err
	}

	s.publish(ctx, realtime.TableTasks, realtime.EventUpdate, t.ID, t, &before, t.Version)

	if before.Status != t.Status {
		body := fmt.Sprintf("%s moved from %s to %s", t.Title, before.Status, t.Status)
		s.notify(ctx, events.EventTypeTaskStatusChanged, without(t.Assignees, actor.ID),
			"Task status changed", body, t.ID)
	}

	s.logger.Info("task updated", "task_id", id, "version", t.Version, "actor_id", actor.ID)
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, actor *auth.User, id string) error {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !s.canManage(actor, t) {
		s.logger.Warn("delete task denied: insufficient permissions", "actor_id", actor.ID, "task_id", id)
		return appErrors.ErrUnauthorizedAccess
	}

	if err := s.repo.DeleteTask(ctx, id); err != nil {
		s.logger.Error("failed to delete task", "error", err, "task_id", id)
		return err
	}

	s.publish(ctx, realtime.TableTasks, realtime.EventDelete, t.ID, nil, t, 0)
	s.notify(ctx, events.EventTypeTaskDeleted, without(t.Assignees, actor.ID),
		"Task removed", fmt.Sprintf("%s was deleted", t.Title), t.ID)

	s.logger.Info("task deleted", "task_id", id, "actor_id", actor.ID)
	return nil
}

func (s *Service) Assign(ctx context.Context, actor *auth.User, taskID string, dto AssignDTO) (*Task, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !s.canManage(actor, t) {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if t.IsAssigned(dto.UserID) {
		return t, nil
	}

	if err := s.repo.Assign(ctx, taskID, dto.UserID); err != nil {
		s.logger.Error("failed to assign task", "error", err, "task_id", taskID, "user_id", dto.UserID)
		return nil, err
	}
	t.Assignees = append(t.Assignees, dto.UserID)

	s.publishAssignment(ctx, realtime.EventInsert, taskID, dto.UserID)
	s.notify(ctx, events.EventTypeTaskAssigned, without([]string{dto.UserID}, actor.ID),
		"New task assigned", t.Title, t.ID)
	return t, nil
}

func (s *Service) Unassign(ctx context.Context, actor *auth.User, taskID, userID string) (*Task, error) {
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !s.canManage(actor, t) && actor.ID != userID {
		return nil, appErrors.ErrUnauthorizedAccess
	}
	if !t.IsAssigned(userID) {
		return t, nil
	}

	if err := s.repo.Unassign(ctx, taskID, userID); err != nil {
		s.logger.Error("failed to unassign task", "error", err, "task_id", taskID, "user_id", userID)
		return nil, err
	}
	t.Assignees = without(t.Assignees, userID)

	s.publishAssignment(ctx, realtime.EventDelete, taskID, userID)
	return t, nil
}

func (s *Service) AddSubtask(ctx context.Context, actor *auth.User, taskID string, dto SubtaskDTO) (*Subtask, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !s.canEdit(actor, t) {
		return nil, appErrors.ErrUnauthorizedAccess
	}

	st := &Subtask{TaskID: taskID, Title: dto.Title}
	if err := s.repo.CreateSubtask(ctx, st); err != nil {
		s.logger.Error("failed to create subtask", "error", err, "task_id", taskID)
		return nil, err
	}
	s.publish(ctx, realtime.TableSubtasks, realtime.EventInsert, st.ID, st, nil, 0)
	return st, nil
}

// ToggleSubtask flips completion, or sets it when dto.Completed is given.
func (s *Service) ToggleSubtask(ctx context.Context, actor *auth.User, id string, dto ToggleSubtaskDTO) (*Subtask, error) {
	st, t, err := s.subtaskWithTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canEdit(actor, t) {
		return nil, appErrors.ErrUnauthorizedAccess
	}

	before := *st
	if dto.Completed != nil {
		st.Completed = *dto.Completed
	} else {
		st.Completed = !st.Completed
	}
	if err := s.repo.UpdateSubtask(ctx, st); err != nil {
		s.logger.Error("failed to update subtask", "error", err, "subtask_id", id)
		return nil, err
	}
	s.publish(ctx, realtime.TableSubtasks, realtime.EventUpdate, st.ID, st, &before, 0)
	return st, nil
}

func (s *Service) DeleteSubtask(ctx context.Context, actor *auth.User, id string) error {
	st, t, err := s.subtaskWithTask(ctx, id)
	if err != nil {
		return err
	}
	if !s.canEdit(actor, t) {
		return appErrors.ErrUnauthorizedAccess
	}
	if err := s.repo.DeleteSubtask(ctx, id); err != nil {
		s.logger.Error("failed to delete subtask", "error", err, "subtask_id", id)
		return err
	}
	s.publish(ctx, realtime.TableSubtasks, realtime.EventDelete, st.ID, nil, st, 0)
	return nil
}

func (s *Service) subtaskWithTask(ctx context.Context, id string) (*Subtask, *Task, error) {
	st, err := s.repo.GetSubtask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.repo.GetTask(ctx, st.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return st, t, nil
}

func (s *Service) publish(ctx context.Context, table, eventType, id string, newRow, oldRow interface{}, version int64) {
	realtime.PublishQuietly(ctx, s.changes,
		realtime.NewChange(table, eventType, id, newRow, oldRow, version),
		func(err error) {
			s.logger.Warn("failed to publish task change", "error", err, "table", table, "id", id)
		})
}

func (s *Service) publishAssignment(ctx context.Context, eventType, taskID, userID string) {
	row := map[string]string{"task_id": taskID, "user_id": userID}
	if eventType == realtime.EventDelete {
		s.publish(ctx, realtime.TableTaskAssignments, eventType, taskID+":"+userID, nil, row, 0)
		return
	}
	s.publish(ctx, realtime.TableTaskAssignments, eventType, taskID+":"+userID, row, nil, 0)
}

func (s *Service) notify(ctx context.Context, eventType string, recipients []string, title, body, taskID string) {
	if s.events == nil || len(recipients) == 0 {
		return
	}
	evt := events.NewNotificationEvent(eventType, recipients, title, body,
		map[string]interface{}{"task_id": taskID})
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish task event", "error", err, "event_type", eventType)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(ids []string, exclude string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
