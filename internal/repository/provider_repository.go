package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/model"
)

// ProviderFilter задаёт фильтр поиска; пустые поля не применяются.
type ProviderFilter struct {
	City    string
	MaxRate int64
}

type ProviderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	Create(ctx context.Context, p *model.Provider) error
	// ListActive возвращает активных провайдеров по фильтру вместе с расписанием.
	ListActive(ctx context.Context, f ProviderFilter) ([]model.Provider, error)
	// AddRating инкрементально учитывает новую оценку.
	AddRating(ctx context.Context, id uuid.UUID, rating int) error
	// RecomputeRatings пересчитывает суммы по отзывам; возвращает число исправленных провайдеров.
	RecomputeRatings(ctx context.Context) (int, error)
	WithTx(tx *gorm.DB) ProviderRepository
}

type GormProviderRepository struct {
	db *gorm.DB
}

func NewGormProviderRepository(db *gorm.DB) *GormProviderRepository {
	return &GormProviderRepository{db: db}
}

func (r *GormProviderRepository) WithTx(tx *gorm.DB) ProviderRepository {
	return &GormProviderRepository{db: tx}
}

func (r *GormProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormProviderRepository) Create(ctx context.Context, p *model.Provider) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *GormProviderRepository) ListActive(ctx context.Context, f ProviderFilter) ([]model.Provider, error) {
	var providers []model.Provider
	q := r.db.WithContext(ctx).
		Preload("Availability").
		Where("active = ?", true)
	if f.City != "" {
		q = q.Where("LOWER(city) = LOWER(?)", f.City)
	}
	if f.MaxRate > 0 {
		q = q.Where("hourly_rate <= ?", f.MaxRate)
	}
	if err := q.Order("created_at ASC").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *GormProviderRepository) AddRating(ctx context.Context, id uuid.UUID, rating int) error {
	return r.db.WithContext(ctx).
		Model(&model.Provider{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"rating_sum":   gorm.Expr("rating_sum + ?", rating),
			"rating_count": gorm.Expr("rating_count + 1"),
		}).Error
}

type ratingAggregate struct {
	ProviderID  uuid.UUID
	RatingSum   int64
	RatingCount int64
}

func (r *GormProviderRepository) RecomputeRatings(ctx context.Context) (int, error) {
	var aggregates []ratingAggregate
	if err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Select("provider_id, COALESCE(SUM(rating), 0) AS rating_sum, COUNT(*) AS rating_count").
		Group("provider_id").
		Scan(&aggregates).Error; err != nil {
		return 0, err
	}
	byProvider := make(map[uuid.UUID]ratingAggregate, len(aggregates))
	for _, a := range aggregates {
		byProvider[a.ProviderID] = a
	}

	var providers []model.Provider
	if err := r.db.WithContext(ctx).
		Select("id", "rating_sum", "rating_count").
		Find(&providers).Error; err != nil {
		return 0, err
	}

	fixed := 0
	for _, p := range providers {
		want := byProvider[p.ID]
		if p.RatingSum == want.RatingSum && p.RatingCount == want.RatingCount {
			continue
		}
		if err := r.db.WithContext(ctx).
			Model(&model.Provider{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{"rating_sum": want.RatingSum, "rating_count": want.RatingCount}).Error; err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}
