package model

import (
	"time"

	"github.com/google/uuid"
)

// provider_day_locks — строка на (провайдер, день), которую резервирование
// блокирует FOR UPDATE перед проверкой пересечений.
type ProviderDayLock struct {
	ProviderID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Day        string    `gorm:"type:varchar(10);primaryKey"`

	CreatedAt time.Time
}
