package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/model"
)

type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []model.Notification) error
	ListByRecipient(
		ctx context.Context,
		recipientType model.PartyType,
		recipientID uuid.UUID,
		unreadOnly bool,
		limit, offset int,
	) ([]model.Notification, int64, error)
	CountUnread(ctx context.Context, recipientType model.PartyType, recipientID uuid.UUID) (int64, error)
	// MarkRead помечает уведомление прочитанным; false, если у получателя такого нет.
	MarkRead(ctx context.Context, id uuid.UUID, recipientType model.PartyType, recipientID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, recipientType model.PartyType, recipientID uuid.UUID) (int64, error)
	WithTx(tx *gorm.DB) NotificationRepository
}

type GormNotificationRepository struct {
	db *gorm.DB
}

func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

func (r *GormNotificationRepository) WithTx(tx *gorm.DB) NotificationRepository {
	return &GormNotificationRepository{db: tx}
}

func (r *GormNotificationRepository) CreateBatch(ctx context.Context, notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&notifications).Error
}

func (r *GormNotificationRepository) recipient(ctx context.Context, recipientType model.PartyType, recipientID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_type = ? AND recipient_id = ?", recipientType, recipientID)
}

func (r *GormNotificationRepository) ListByRecipient(
	ctx context.Context,
	recipientType model.PartyType,
	recipientID uuid.UUID,
	unreadOnly bool,
	limit, offset int,
) ([]model.Notification, int64, error) {
	var (
		items []model.Notification
		total int64
	)

	q := r.recipient(ctx, recipientType, recipientID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *GormNotificationRepository) CountUnread(ctx context.Context, recipientType model.PartyType, recipientID uuid.UUID) (int64, error) {
	var n int64
	err := r.recipient(ctx, recipientType, recipientID).Where("is_read = ?", false).Count(&n).Error
	return n, err
}

func (r *GormNotificationRepository) MarkRead(
	ctx context.Context,
	id uuid.UUID,
	recipientType model.PartyType,
	recipientID uuid.UUID,
) (bool, error) {
	var n model.Notification
	err := r.recipient(ctx, recipientType, recipientID).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if n.Read {
		return true, nil
	}
	err = r.recipient(ctx, recipientType, recipientID).
		Where("id = ?", id).
		Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()}).Error
	return err == nil, err
}

func (r *GormNotificationRepository) MarkAllRead(ctx context.Context, recipientType model.PartyType, recipientID uuid.UUID) (int64, error) {
	res := r.recipient(ctx, recipientType, recipientID).
		Where("is_read = ?", false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}
