package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/model"
)

// SlotRepository хранит занятость провайдера по дням.
type SlotRepository interface {
	// LockDay создаёт (если нужно) и блокирует строку (провайдер, день) до конца транзакции.
	LockDay(ctx context.Context, providerID uuid.UUID, day string) error
	// ListBusy возвращает интервалы активных броней провайдера за день.
	ListBusy(ctx context.Context, providerID uuid.UUID, day string) ([]calendar.MinuteRange, error)
	// ListBusyByProviders делает то же для нескольких провайдеров сразу.
	ListBusyByProviders(ctx context.Context, providerIDs []uuid.UUID, day string) (map[uuid.UUID][]calendar.MinuteRange, error)
	WithTx(tx *gorm.DB) SlotRepository
}

type GormSlotRepository struct {
	db *gorm.DB
}

func NewGormSlotRepository(db *gorm.DB) *GormSlotRepository {
	return &GormSlotRepository{db: db}
}

func (r *GormSlotRepository) WithTx(tx *gorm.DB) SlotRepository {
	return &GormSlotRepository{db: tx}
}

func (r *GormSlotRepository) LockDay(ctx context.Context, providerID uuid.UUID, day string) error {
	lock := model.ProviderDayLock{ProviderID: providerID, Day: day}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&lock).Error; err != nil {
		return err
	}

	// sqlite молча игнорирует FOR UPDATE; там транзакции и так сериализованы.
	return r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_id = ? AND day = ?", providerID, day).
		First(&lock).Error
}

func (r *GormSlotRepository) ListBusy(ctx context.Context, providerID uuid.UUID, day string) ([]calendar.MinuteRange, error) {
	busy, err := r.ListBusyByProviders(ctx, []uuid.UUID{providerID}, day)
	if err != nil {
		return nil, err
	}
	return busy[providerID], nil
}

func (r *GormSlotRepository) ListBusyByProviders(
	ctx context.Context,
	providerIDs []uuid.UUID,
	day string,
) (map[uuid.UUID][]calendar.MinuteRange, error) {
	out := make(map[uuid.UUID][]calendar.MinuteRange, len(providerIDs))
	if len(providerIDs) == 0 {
		return out, nil
	}

	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Select("provider_id", "start_minute", "duration_minutes").
		Where("provider_id IN ? AND scheduled_date = ?", providerIDs, day).
		Where("status IN ?", activeStatuses).
		Order("start_minute ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}

	for _, b := range bookings {
		out[b.ProviderID] = append(out[b.ProviderID], calendar.MinuteRange{Start: b.StartMinute, End: b.EndMinute()})
	}
	return out, nil
}

var activeStatuses = []model.BookingStatus{model.BookingStatusPending, model.BookingStatusAccepted}
