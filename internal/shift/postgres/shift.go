package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	shiftDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/shift"
	"github.com/marvellous-media/marvellous-manager/internal/shift"
)

// ShiftRepository implements shift.Repository and shift.TemplateRepository using GORM.
type ShiftRepository struct {
	db *gorm.DB
}

func NewShiftRepository(db *gorm.DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

func (r *ShiftRepository) List(ctx context.Context, filter shift.Filter) ([]*shift.Shift, error) {
	q := r.db.WithContext(ctx).Model(&shiftDatamodel.Shift{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.From != nil {
		q = q.Where("end_time >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("start_time <= ?", *filter.To)
	}

	var rows []*shiftDatamodel.Shift
	if err := q.Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return shift.FromDataModelSlice(rows), nil
}

func (r *ShiftRepository) GetByID(ctx context.Context, id string) (*shift.Shift, error) {
	var row shiftDatamodel.Shift
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrShiftNotFound
		}
		return nil, err
	}
	return shift.FromDataModel(&row), nil
}

func (r *ShiftRepository) Create(ctx context.Context, s *shift.Shift) error {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Status == "" {
		s.Status = shift.StatusActive
	}
	dm := shift.ToDataModel(s)
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	s.ID = dm.ID
	s.CreatedAt = dm.CreatedAt
	s.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *ShiftRepository) Update(ctx context.Context, s *shift.Shift) error {
	dm := shift.ToDataModel(s)
	res := r.db.WithContext(ctx).Model(&shiftDatamodel.Shift{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(map[string]interface{}{
			"user_id":     dm.UserID,
			"shift_type":  dm.ShiftType,
			"title":       dm.Title,
			"start_time":  dm.StartTime,
			"end_time":    dm.EndTime,
			"notes":       dm.Notes,
			"color":       dm.Color,
			"status":      dm.Status,
			"repeat_days": dm.RepeatDays,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&shiftDatamodel.Shift{}).Where("id = ?", s.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return appErrors.ErrShiftNotFound
		}
		return appErrors.ErrStaleVersion
	}
	s.Version++
	return nil
}

func (r *ShiftRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&shiftDatamodel.Shift{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErrors.ErrShiftNotFound
	}
	return nil
}

func (r *ShiftRepository) ListSeries(ctx context.Context, seriesID string, action shift.RecurrenceAction, pivot time.Time) ([]*shift.Shift, error) {
	q := r.db.WithContext(ctx).Where("series_id = ?", seriesID)
	switch action {
	case shift.ActionFuture:
		q = q.Where("start_time >= ?", pivot)
	case shift.ActionPrevious:
		q = q.Where("start_time <= ?", pivot)
	}

	var rows []*shiftDatamodel.Shift
	if err := q.Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return shift.FromDataModelSlice(rows), nil
}

// FindOverlapping returns the user's shifts with start <= to and end >= from.
func (r *ShiftRepository) FindOverlapping(ctx context.Context, userID string, from, to time.Time) ([]*shift.Shift, error) {
	var rows []*shiftDatamodel.Shift
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND start_time <= ? AND end_time >= ?", userID, to, from).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return shift.FromDataModelSlice(rows), nil
}

func (r *ShiftRepository) Transaction(ctx context.Context, fn func(repo shift.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewShiftRepository(tx))
	})
}

func (r *ShiftRepository) ListTemplates(ctx context.Context) ([]*shift.Template, error) {
	var rows []*shiftDatamodel.ShiftTemplate
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*shift.Template, len(rows))
	for i, row := range rows {
		out[i] = shift.TemplateFromDataModel(row)
	}
	return out, nil
}

func (r *ShiftRepository) GetTemplate(ctx context.Context, id string) (*shift.Template, error) {
	return r.firstTemplate(ctx, "id = ?", id)
}

func (r *ShiftRepository) GetTemplateByKey(ctx context.Context, key string) (*shift.Template, error) {
	return r.firstTemplate(ctx, "shift_type = ?", key)
}

func (r *ShiftRepository) firstTemplate(ctx context.Context, query string, arg interface{}) (*shift.Template, error) {
	var row shiftDatamodel.ShiftTemplate
	if err := r.db.WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrTemplateNotFound
		}
		return nil, err
	}
	return shift.TemplateFromDataModel(&row), nil
}

func (r *ShiftRepository) CreateTemplate(ctx context.Context, t *shift.Template) error {
	dm := shift.TemplateToDataModel(t)
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	t.ID = dm.ID
	t.CreatedAt = dm.CreatedAt
	return nil
}

func (r *ShiftRepository) UpdateTemplate(ctx context.Context, t *shift.Template) error {
	return r.db.WithContext(ctx).Model(&shiftDatamodel.ShiftTemplate{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"name":       t.Name,
			"shift_type": t.ShiftType,
			"start_time": t.StartTime,
			"end_time":   t.EndTime,
			"color":      t.Color,
			"user_id":    t.UserID,
		}).Error
}

func (r *ShiftRepository) DeleteTemplate(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&shiftDatamodel.ShiftTemplate{}).Error
}
