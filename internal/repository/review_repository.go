package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/model"
)

type ReviewRepository interface {
	Create(ctx context.Context, r *model.Review) error
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Review, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]model.Review, int64, error)
	WithTx(tx *gorm.DB) ReviewRepository
}

type GormReviewRepository struct {
	db *gorm.DB
}

func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

func (r *GormReviewRepository) WithTx(tx *gorm.DB) ReviewRepository {
	return &GormReviewRepository{db: tx}
}

func (r *GormReviewRepository) Create(ctx context.Context, review *model.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *GormReviewRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Review, error) {
	var review model.Review
	if err := r.db.WithContext(ctx).First(&review, "booking_id = ?", bookingID).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *GormReviewRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]model.Review, int64, error) {
	var (
		reviews []model.Review
		total   int64
	)
	q := r.db.WithContext(ctx).Model(&model.Review{}).Where("provider_id = ?", providerID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Order("created_at DESC").Find(&reviews).Error; err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}
