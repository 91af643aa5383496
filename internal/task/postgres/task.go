package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	taskDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/task"
	"github.com/marvellous-media/marvellous-manager/internal/task"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) ListBoards(ctx context.Context) ([]*task.Board, error) {
	var rows []*taskDatamodel.Board
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*task.Board, len(rows))
	for i, row := range rows {
		out[i] = task.BoardFromDataModel(row)
	}
	return out, nil
}

func (r *TaskRepository) GetBoard(ctx context.Context, id string) (*task.Board, error) {
	var row taskDatamodel.Board
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrBoardNotFound
		}
		return nil, err
	}
	return task.BoardFromDataModel(&row), nil
}

func (r *TaskRepository) CreateBoard(ctx context.Context, b *task.Board) error {
	dm := task.BoardToDataModel(b)
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	b.ID = dm.ID
	b.CreatedAt = dm.CreatedAt
	b.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *TaskRepository) UpdateBoard(ctx context.Context, b *task.Board) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&taskDatamodel.Board{}).
		Where("id = ?", b.ID).
		Updates(map[string]interface{}{
			"name":        b.Name,
			"description": b.Description,
			"updated_at":  now,
		}).Error
	if err != nil {
		return err
	}
	b.UpdatedAt = now
	return nil
}

func (r *TaskRepository) DeleteBoard(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Model(&taskDatamodel.Task{}).Select("id").Where("board_id = ?", id)
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&taskDatamodel.Subtask{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&taskDatamodel.TaskAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("board_id = ?", id).Delete(&taskDatamodel.Task{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&taskDatamodel.Board{}).Error
	})
}

func (r *TaskRepository) ListTasks(ctx context.Context, boardID string) ([]*task.Task, error) {
	var rows []*taskDatamodel.Task
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("position ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*task.Task, len(rows))
	byID := make(map[string]*task.Task, len(rows))
	ids := make([]string, len(rows))
	for i, row := range rows {
		out[i] = task.FromDataModel(row)
		byID[row.ID] = out[i]
		ids[i] = row.ID
	}
	if len(ids) == 0 {
		return out, nil
	}

	var assignments []*taskDatamodel.TaskAssignment
	if err := r.db.WithContext(ctx).Where("task_id IN ?", ids).Order("created_at ASC").Find(&assignments).Error; err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if t, ok := byID[a.TaskID]; ok {
			t.Assignees = append(t.Assignees, a.UserID)
		}
	}
	return out, nil
}

func (r *TaskRepository) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var row taskDatamodel.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrTaskNotFound
		}
		return nil, err
	}
	t := task.FromDataModel(&row)

	var userIDs []string
	err := r.db.WithContext(ctx).Model(&taskDatamodel.TaskAssignment{}).
		Where("task_id = ?", id).
		Order("created_at ASC").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	t.Assignees = append(t.Assignees, userIDs...)

	var subtasks []*taskDatamodel.Subtask
	if err := r.db.WithContext(ctx).Where("task_id = ?", id).Order("created_at ASC").Find(&subtasks).Error; err != nil {
		return nil, err
	}
	for _, st := range subtasks {
		t.Subtasks = append(t.Subtasks, task.SubtaskFromDataModel(st))
	}
	return t, nil
}

// CreateTask inserts the task and its initial assignees together.
func (r *TaskRepository) CreateTask(ctx context.Context, t *task.Task) error {
	dm := task.ToDataModel(t)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(dm).Error; err != nil {
			return err
		}
		for _, userID := range t.Assignees {
			if err := tx.Create(&taskDatamodel.TaskAssignment{TaskID: dm.ID, UserID: userID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.ID = dm.ID
	t.Version = dm.Version
	t.CreatedAt = dm.CreatedAt
	t.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *TaskRepository) UpdateTask(ctx context.Context, t *task.Task) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&taskDatamodel.Task{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Updates(map[string]interface{}{
			"title":       t.Title,
			"description": t.Description,
			"status":      t.Status,
			"priority":    t.Priority,
			"due_date":    t.DueDate,
			"position":    t.Position,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&taskDatamodel.Task{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return appErrors.ErrTaskNotFound
		}
		return appErrors.ErrStaleVersion
	}
	t.Version++
	t.UpdatedAt = now
	return nil
}

func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&taskDatamodel.Subtask{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", id).Delete(&taskDatamodel.TaskAssignment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&taskDatamodel.Task{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return appErrors.ErrTaskNotFound
		}
		return nil
	})
}

func (r *TaskRepository) Assign(ctx context.Context, taskID, userID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&taskDatamodel.TaskAssignment{TaskID: taskID, UserID: userID}).Error
}

func (r *TaskRepository) Unassign(ctx context.Context, taskID, userID string) error {
	return r.db.WithContext(ctx).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		Delete(&taskDatamodel.TaskAssignment{}).Error
}

func (r *TaskRepository) GetSubtask(ctx context.Context, id string) (*task.Subtask, error) {
	var row taskDatamodel.Subtask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrSubtaskNotFound
		}
		return nil, err
	}
	return task.SubtaskFromDataModel(&row), nil
}

func (r *TaskRepository) CreateSubtask(ctx context.Context, s *task.Subtask) error {
	dm := &taskDatamodel.Subtask{TaskID: s.TaskID, Title: s.Title, Completed: s.Completed}
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	s.ID = dm.ID
	s.CreatedAt = dm.CreatedAt
	s.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *TaskRepository) UpdateSubtask(ctx context.Context, s *task.Subtask) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&taskDatamodel.Subtask{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"title":      s.Title,
			"completed":  s.Completed,
			"updated_at": now,
		}).Error
	if err != nil {
		return err
	}
	s.UpdatedAt = now
	return nil
}

func (r *TaskRepository) DeleteSubtask(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&taskDatamodel.Subtask{}).Error
}
