package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartyType описывает сторону брони.
type PartyType string

const (
	PartyCustomer PartyType = "customer"
	PartyProvider PartyType = "provider"
)

func (p PartyType) Valid() bool {
	return p == PartyCustomer || p == PartyProvider
}

// Room возвращает комнату realtime-канала для стороны.
func (p PartyType) Room(id uuid.UUID) string {
	return string(p) + ":" + id.String()
}

// customers — граничная запись; профиль ведёт сервис идентификации.
type Customer struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayName string    `gorm:"type:varchar(255)"`
	Email       string    `gorm:"type:varchar(255)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
