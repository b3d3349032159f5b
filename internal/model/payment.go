package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusSucceeded         PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// Статус платежа двигается только вперёд.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusSucceeded, PaymentStatusFailed},
	PaymentStatusSucceeded: {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// payments
type Payment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	IntentID  string    `gorm:"type:varchar(255);not null;uniqueIndex"`

	Amount   int64         `gorm:"not null"`
	Currency string        `gorm:"type:varchar(3);not null"`
	Status   PaymentStatus `gorm:"type:varchar(32);not null;index"`

	Refunded      bool   `gorm:"not null;default:false"`
	RefundAmount  int64  `gorm:"not null;default:0"`
	RefundID      string `gorm:"type:varchar(255)"`
	FailureReason string `gorm:"type:text"`

	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	SucceededAt *time.Time
	FailedAt    *time.Time
	RefundedAt  *time.Time

	// Возврат заказан, но шлюз его ещё не подтвердил.
	RefundRequestedAt *time.Time `gorm:"index"`

	Booking *Booking `gorm:"foreignKey:BookingID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// payment_events — журнал обработанных событий шлюза, защищает от повторной доставки.
type PaymentEvent struct {
	ID          string    `gorm:"type:varchar(255);primaryKey"`
	Type        string    `gorm:"type:varchar(64);not null"`
	IntentID    string    `gorm:"type:varchar(255);index"`
	ProcessedAt time.Time `gorm:"not null"`
	Error       string    `gorm:"type:text"`
}
