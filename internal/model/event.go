package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Тип события аудита.
type EventType string

const (
	EventTypeBookingCreated   EventType = "booking_created"
	EventTypeBookingAccepted  EventType = "booking_accepted"
	EventTypeBookingRejected  EventType = "booking_rejected"
	EventTypeBookingCompleted EventType = "booking_completed"
	EventTypeBookingCancelled EventType = "booking_cancelled"
)

// BookingEventType возвращает тип события аудита для перехода в статус.
func BookingEventType(to BookingStatus) EventType {
	switch to {
	case BookingStatusAccepted:
		return EventTypeBookingAccepted
	case BookingStatusRejected:
		return EventTypeBookingRejected
	case BookingStatusCompleted:
		return EventTypeBookingCompleted
	case BookingStatusCancelled:
		return EventTypeBookingCancelled
	default:
		return EventTypeBookingCreated
	}
}

// events — события аудита
type Event struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	EventType EventType `gorm:"type:varchar(64);not null;index"`

	CreatedAt time.Time `gorm:"not null;index"`

	// Кто инициировал: сторона брони или "system" (шлюз, фоновые задачи).
	ActorType string     `gorm:"type:varchar(16);not null"`
	ActorID   *uuid.UUID `gorm:"type:uuid"`
	BookingID *uuid.UUID `gorm:"type:uuid;index"`

	Details string `gorm:"type:text"`
}

func (e *Event) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
