package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// availability_windows — недельное расписание: не больше одного окна на день недели.
type AvailabilityWindow struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_availability_provider_weekday"`
	Weekday    time.Weekday `gorm:"not null;uniqueIndex:idx_availability_provider_weekday"`

	// "HH:MM"
	StartTime string `gorm:"type:varchar(5);not null"`
	EndTime   string `gorm:"type:varchar(5);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *AvailabilityWindow) BeforeCreate(*gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
