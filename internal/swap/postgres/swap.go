package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
	swapDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/swap"
	shiftPostgres "github.com/marvellous-media/marvellous-manager/internal/shift/postgres"
	"github.com/marvellous-media/marvellous-manager/internal/swap"
)

type SwapRepository struct {
	db *gorm.DB
}

func NewSwapRepository(db *gorm.DB) *SwapRepository {
	return &SwapRepository{db: db}
}

func (r *SwapRepository) List(ctx context.Context, userID string) ([]*swap.SwapRequest, error) {
	q := r.db.WithContext(ctx).Model(&swapDatamodel.SwapRequest{})
	if userID != "" {
		q = q.Where("requester_id = ? OR requested_user_id = ?", userID, userID)
	}

	var rows []*swapDatamodel.SwapRequest
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*swap.SwapRequest, len(rows))
	for i, row := range rows {
		out[i] = swap.FromDataModel(row)
	}
	return out, nil
}

func (r *SwapRepository) GetByID(ctx context.Context, id string) (*swap.SwapRequest, error) {
	var row swapDatamodel.SwapRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrSwapNotFound
		}
		return nil, err
	}
	return swap.FromDataModel(&row), nil
}

func (r *SwapRepository) Create(ctx context.Context, s *swap.SwapRequest) error {
	dm := swap.ToDataModel(s)
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	s.ID = dm.ID
	s.CreatedAt = dm.CreatedAt
	s.UpdatedAt = dm.UpdatedAt
	return nil
}

func (r *SwapRepository) UpdateStatus(ctx context.Context, s *swap.SwapRequest) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&swapDatamodel.SwapRequest{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"status":      s.Status,
			"reviewer_id": s.ReviewerID,
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErrors.ErrSwapNotFound
	}
	s.UpdatedAt = now
	return nil
}

func (r *SwapRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&swapDatamodel.SwapRequest{}).Error
}

func (r *SwapRepository) WithinTransaction(ctx context.Context, fn func(swaps swap.Repository, shifts swap.ShiftStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewSwapRepository(tx), shiftPostgres.NewShiftRepository(tx))
	})
}
