package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/model"
)

type BookingRepository interface {
	// Reserve атомарно проверяет пересечения и создаёт бронь.
	Reserve(ctx context.Context, booking *model.Booking) error
	// Получить бронирование по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// GetForUpdate читает бронь с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// Transition меняет статус только если текущий равен from. false, если статус уже другой.
	Transition(ctx context.Context, id uuid.UUID, from, to model.BookingStatus, fields map[string]any) (bool, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error
	// Список бронирований стороны с пагинацией, опционально по статусу.
	ListByParty(
		ctx context.Context,
		partyType model.PartyType,
		partyID uuid.UUID,
		status model.BookingStatus,
		limit, offset int,
	) ([]model.Booking, int64, error)
	WithTx(tx *gorm.DB) BookingRepository
}

// Реализация на GORM.
type GormBookingRepository struct {
	db *gorm.DB
}

func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

func (r *GormBookingRepository) WithTx(tx *gorm.DB) BookingRepository {
	return &GormBookingRepository{db: tx}
}

func (r *GormBookingRepository) Reserve(ctx context.Context, booking *model.Booking) error {
	// Внутри внешней транзакции gorm откроет savepoint.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slots := NewGormSlotRepository(tx)

		if err := slots.LockDay(ctx, booking.ProviderID, booking.ScheduledDate); err != nil {
			return fmt.Errorf("lock provider day: %w", err)
		}

		busy, err := slots.ListBusy(ctx, booking.ProviderID, booking.ScheduledDate)
		if err != nil {
			return fmt.Errorf("list busy intervals: %w", err)
		}
		requested := calendar.MinuteRange{Start: booking.StartMinute, End: booking.EndMinute()}
		if has, _ := calendar.HasOverlap(requested, busy, false); has {
			return apperror.Conflict("time slot is already booked")
		}

		key := model.SlotKey(booking.ProviderID, booking.ScheduledDate, booking.StartMinute)
		booking.SlotKey = &key

		if err := tx.Create(booking).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Conflict("time slot is already booked")
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
}

func (r *GormBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *GormBookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: clause.CurrentTable}}).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *GormBookingRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to model.BookingStatus,
	fields map[string]any,
) (bool, error) {
	update := map[string]any{"status": to}
	for k, v := range fields {
		update[k] = v
	}
	if to.IsTerminal() {
		// освобождаем слот для новых броней
		update["slot_key"] = nil
	}

	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(update)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormBookingRepository) SetPaymentStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("id = ?", id).
		Update("payment_status", status).
		Error
}

func (r *GormBookingRepository) ListByParty(
	ctx context.Context,
	partyType model.PartyType,
	partyID uuid.UUID,
	status model.BookingStatus,
	limit, offset int,
) ([]model.Booking, int64, error) {
	var (
		bookings []model.Booking
		total    int64
	)

	column := "customer_id"
	if partyType == model.PartyProvider {
		column = "provider_id"
	}

	q := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where(column+" = ?", partyID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("scheduled_date DESC, start_minute DESC").Find(&bookings).Error; err != nil {
		return nil, 0, err
	}

	return bookings, total, nil
}
