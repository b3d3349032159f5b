package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusAccepted  BookingStatus = "ACCEPTED"
	BookingStatusRejected  BookingStatus = "REJECTED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Допустимые переходы статуса брони. Терминальные статусы сюда не входят.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:  {BookingStatusAccepted, BookingStatusRejected, BookingStatusCancelled},
	BookingStatusAccepted: {BookingStatusCompleted, BookingStatusCancelled},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusAccepted, BookingStatusRejected,
		BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// IsActive сообщает, занимает ли бронь слот провайдера.
func (s BookingStatus) IsActive() bool {
	return s == BookingStatusPending || s == BookingStatusAccepted
}

// bookings
type Booking struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CustomerID uuid.UUID `gorm:"type:uuid;not null;index"`
	ProviderID uuid.UUID `gorm:"type:uuid;not null;index:idx_bookings_provider_day"`

	// Дата в формате YYYY-MM-DD, время — минуты от начала суток.
	ScheduledDate   string `gorm:"type:varchar(10);not null;index:idx_bookings_provider_day"`
	StartMinute     int    `gorm:"not null"`
	DurationMinutes int    `gorm:"not null"`

	Services datatypes.JSONSlice[string] `gorm:"not null"`

	AddressLine string `gorm:"type:varchar(255)"`
	City        string `gorm:"type:varchar(128)"`
	PostalCode  string `gorm:"type:varchar(32)"`

	Status        BookingStatus `gorm:"type:varchar(32);not null;index"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(32);not null"`

	// Суммы в минорных единицах валюты, фиксируются при создании.
	HourlyRate int64  `gorm:"not null"`
	Subtotal   int64  `gorm:"not null"`
	Fee        int64  `gorm:"not null"`
	Total      int64  `gorm:"not null"`
	Currency   string `gorm:"type:varchar(3);not null"`

	Notes        string `gorm:"type:text"`
	CancelReason string `gorm:"type:text"`
	CancelledBy  string `gorm:"type:varchar(16)"`

	// provider|date|start, пока бронь активна; NULL после терминального статуса.
	SlotKey *string `gorm:"type:varchar(96);uniqueIndex"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	Customer *Customer `gorm:"foreignKey:CustomerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// EndMinute возвращает конец интервала, не включительно.
func (b *Booking) EndMinute() int {
	return b.StartMinute + b.DurationMinutes
}

// HasParty сообщает, участвует ли сторона в брони.
func (b *Booking) HasParty(partyType PartyType, id uuid.UUID) bool {
	switch partyType {
	case PartyCustomer:
		return b.CustomerID == id
	case PartyProvider:
		return b.ProviderID == id
	}
	return false
}

func SlotKey(providerID uuid.UUID, date string, startMinute int) string {
	return fmt.Sprintf("%s|%s|%d", providerID, date, startMinute)
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
