package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	leaveDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/leave"
	"github.com/marvellous-media/marvellous-manager/internal/leave"
	shiftPostgres "github.com/marvellous-media/marvellous-manager/internal/shift/postgres"
)

// LeaveRepository implements leave.Repository and leave.Transactor using GORM.
type LeaveRepository struct {
	db *gorm.DB
}

func NewLeaveRepository(db *gorm.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

func (r *LeaveRepository) List(ctx context.Context, filter leave.Filter) ([]*leave.LeaveRequest, error) {
	q := r.db.WithContext(ctx).Model(&leaveDatamodel.LeaveRequest{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var rows []*leaveDatamodel.LeaveRequest
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return leave.FromDataModelSlice(rows), nil
}

func (r *LeaveRepository) GetByID(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	return r.getByID(r.db.WithContext(ctx), id)
}

// GetByIDForUpdate row-locks the request until the surrounding transaction ends.
func (r *LeaveRepository) GetByIDForUpdate(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	return r.getByID(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *LeaveRepository) getByID(q *gorm.DB, id string) (*leave.LeaveRequest, error) {
	var row leaveDatamodel.LeaveRequest
	if err := q.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrRequestNotFound
		}
		return nil, err
	}
	return leave.FromDataModel(&row), nil
}

func (r *LeaveRepository) Create(ctx context.Context, req *leave.LeaveRequest) error {
	dm := leave.ToDataModel(req)
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	req.ID = dm.ID
	req.CreatedAt = dm.CreatedAt
	req.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *LeaveRepository) UpdateReview(ctx context.Context, req *leave.LeaveRequest) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&leaveDatamodel.LeaveRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]interface{}{
			"status":      req.Status,
			"reviewer_id": req.ReviewerID,
			"notes":       req.Notes,
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErrors.ErrRequestNotFound
	}
	req.UpdatedAt = now
	return nil
}

func (r *LeaveRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&leaveDatamodel.LeaveRequest{}).Error
}

func (r *LeaveRepository) WithinTransaction(ctx context.Context, fn func(leaves leave.Repository, shifts leave.ShiftStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewLeaveRepository(tx), shiftPostgres.NewShiftRepository(tx))
	})
}
