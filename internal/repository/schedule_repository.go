package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visiovate/Test-Backend/internal/model"
)

type ScheduleRepository interface {
	// ListByProvider возвращает недельное расписание провайдера.
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.AvailabilityWindow, error)
	// Upsert задаёт окно на день недели, заменяя существующее.
	Upsert(ctx context.Context, w *model.AvailabilityWindow) error
}

type GormScheduleRepository struct {
	db *gorm.DB
}

func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

func (r *GormScheduleRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]model.AvailabilityWindow, error) {
	var windows []model.AvailabilityWindow
	err := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("weekday ASC").
		Find(&windows).Error
	if err != nil {
		return nil, err
	}
	return windows, nil
}

func (r *GormScheduleRepository) Upsert(ctx context.Context, w *model.AvailabilityWindow) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}, {Name: "weekday"}},
			DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "updated_at"}),
		}).
		Create(w).Error
}
