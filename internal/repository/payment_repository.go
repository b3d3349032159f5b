package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/visiovate/Test-Backend/internal/model"
)

type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) error
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error)
	// GetByIntentForUpdate блокирует платёж по id интента до конца транзакции.
	GetByIntentForUpdate(ctx context.Context, intentID string) (*model.Payment, error)
	GetByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error)
	Update(ctx context.Context, p *model.Payment) error
	// RecordEvent пишет событие шлюза в журнал; false, если событие уже обработано.
	RecordEvent(ctx context.Context, ev *model.PaymentEvent) (bool, error)
	// ListStalePending возвращает платежи в PENDING, созданные раньше before.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
	// ListRefundRequested возвращает оплаченные платежи с заказанным, но не проведённым возвратом.
	ListRefundRequested(ctx context.Context, limit int) ([]model.Payment, error)
	WithTx(tx *gorm.DB) PaymentRepository
}

type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: tx}
}

func (r *GormPaymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *GormPaymentRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	var p model.Payment
	if err := r.db.WithContext(ctx).First(&p, "booking_id = ?", bookingID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentRepository) GetByIntentForUpdate(ctx context.Context, intentID string) (*model.Payment, error) {
	return r.firstForUpdate(ctx, "intent_id = ?", intentID)
}

func (r *GormPaymentRepository) GetByBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	return r.firstForUpdate(ctx, "booking_id = ?", bookingID)
}

func (r *GormPaymentRepository) firstForUpdate(ctx context.Context, query string, arg any) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: clause.CurrentTable}}).
		First(&p, query, arg).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormPaymentRepository) Update(ctx context.Context, p *model.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *GormPaymentRepository) RecordEvent(ctx context.Context, ev *model.PaymentEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormPaymentRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, before).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *GormPaymentRepository) ListRefundRequested(ctx context.Context, limit int) ([]model.Payment, error) {
	var payments []model.Payment
	q := r.db.WithContext(ctx).
		Where("status = ? AND refund_requested_at IS NOT NULL", model.PaymentStatusSucceeded).
		Order("refund_requested_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
