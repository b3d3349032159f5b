package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию всех сущностей ядра бронирования.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Customer{},
		&Provider{},
		&AvailabilityWindow{},
		&ProviderDayLock{},
		&Booking{},
		&Payment{},
		&PaymentEvent{},
		&Notification{},
		&Review{},
		&Message{},
		&Event{},
	)
}
