package repository

import "gorm.io/gorm"

// Repositories собирает все репозитории поверх одного подключения.
type Repositories struct {
	Bookings      BookingRepository
	Customers     CustomerRepository
	Providers     ProviderRepository
	Schedules     ScheduleRepository
	Slots         SlotRepository
	Payments      PaymentRepository
	Notifications NotificationRepository
	Reviews       ReviewRepository
	Messages      MessageRepository
	Events        EventRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Bookings:      NewGormBookingRepository(db),
		Customers:     NewGormCustomerRepository(db),
		Providers:     NewGormProviderRepository(db),
		Schedules:     NewGormScheduleRepository(db),
		Slots:         NewGormSlotRepository(db),
		Payments:      NewGormPaymentRepository(db),
		Notifications: NewGormNotificationRepository(db),
		Reviews:       NewGormReviewRepository(db),
		Messages:      NewGormMessageRepository(db),
		Events:        NewGormEventRepository(db),
	}
}
