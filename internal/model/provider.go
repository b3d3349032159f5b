package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider описывает исполнителя услуг.
type Provider struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Имя/отображаемое название в интерфейсе.
	DisplayName string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`

	// Ставка в час, минорные единицы.
	HourlyRate int64  `gorm:"not null"`
	Currency   string `gorm:"type:varchar(3);not null"`

	Services datatypes.JSONSlice[string]
	City     string `gorm:"type:varchar(128);index"`

	Active   bool `gorm:"not null;index"`
	Verified bool `gorm:"not null;default:false"`

	// Рейтинг хранится суммой и количеством, среднее считается на чтении.
	RatingSum   int64 `gorm:"not null;default:0"`
	RatingCount int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Availability []AvailabilityWindow `gorm:"foreignKey:ProviderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (p *Provider) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Rating возвращает среднюю оценку, 0 если отзывов нет.
func (p *Provider) Rating() float64 {
	if p.RatingCount == 0 {
		return 0
	}
	return float64(p.RatingSum) / float64(p.RatingCount)
}

// Offers проверяет, оказывает ли провайдер услугу (без учёта регистра).
func (p *Provider) Offers(service string) bool {
	for _, s := range p.Services {
		if strings.EqualFold(s, service) {
			return true
		}
	}
	return false
}
