package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	notificationDatamodel "github.com/marvellous-media/marvellous-manager/internal/core/datamodel/notification"
	"github.com/marvellous-media/marvellous-manager/internal/notification"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// FindByEndpoint returns nil without error when no row holds endpoint.
func (r *NotificationRepository) FindByEndpoint(ctx context.Context, endpoint string) (*notification.PushSubscription, error) {
	var row notificationDatamodel.PushSubscription
	if err := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return notification.SubscriptionFromDataModel(&row), nil
}

// LatestForUser returns nil without error when the user has no subscription.
func (r *NotificationRepository) LatestForUser(ctx context.Context, userID string) (*notification.PushSubscription, error) {
	var row notificationDatamodel.PushSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return notification.SubscriptionFromDataModel(&row), nil
}

func (r *NotificationRepository) Upsert(ctx context.Context, s *notification.PushSubscription) error {
	dm := notification.SubscriptionToDataModel(s)
	dm.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "updated_at"}),
		}).
		Create(dm).Error
	if err != nil {
		return err
	}

	stored, err := r.FindByEndpoint(ctx, s.Endpoint)
	if err != nil {
		return err
	}
	if stored != nil {
		*s = *stored
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, endpoint string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&notificationDatamodel.PushSubscription{}).Error
}

func (r *NotificationRepository) RecordFailure(ctx context.Context, f *notification.Failure) error {
	dm, err := notification.FailureToDataModel(f)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(dm).Error; err != nil {
		return err
	}
	f.ID = dm.ID
	f.CreatedAt = dm.CreatedAt
	return nil
}

func (r *NotificationRepository) ListFailures(ctx context.Context, limit int) ([]*notification.Failure, error) {
	var rows []*notificationDatamodel.NotificationFailure
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*notification.Failure, len(rows))
	for i, row := range rows {
		out[i] = notification.FailureFromDataModel(row)
	}
	return out, nil
}
