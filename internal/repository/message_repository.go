package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	// ListByBooking возвращает сообщения чата в хронологическом порядке.
	ListByBooking(ctx context.Context, bookingID uuid.UUID, limit int) ([]model.Message, error)
	WithTx(tx *gorm.DB) MessageRepository
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) WithTx(tx *gorm.DB) MessageRepository {
	return &GormMessageRepository{db: tx}
}

func (r *GormMessageRepository) Create(ctx context.Context, m *model.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GormMessageRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID, limit int) ([]model.Message, error) {
	var messages []model.Message
	q := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
