package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationBookingRequest   NotificationType = "BOOKING_REQUEST"
	NotificationBookingAccepted  NotificationType = "BOOKING_ACCEPTED"
	NotificationBookingRejected  NotificationType = "BOOKING_REJECTED"
	NotificationBookingCompleted NotificationType = "BOOKING_COMPLETED"
	NotificationBookingCancelled NotificationType = "BOOKING_CANCELLED"
	NotificationPaymentRefunded  NotificationType = "PAYMENT_REFUNDED"
	NotificationNewReview        NotificationType = "NEW_REVIEW"
	NotificationNewMessage       NotificationType = "NEW_MESSAGE"
)

// notifications — каноническая запись уведомления; push лишь дублирует её.
type Notification struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	RecipientType PartyType `gorm:"type:varchar(16);not null;index:idx_notifications_recipient"`
	RecipientID   uuid.UUID `gorm:"type:uuid;not null;index:idx_notifications_recipient"`

	Type    NotificationType  `gorm:"type:varchar(32);not null"`
	Title   string            `gorm:"type:varchar(255);not null"`
	Message string            `gorm:"type:text;not null"`
	Payload datatypes.JSONMap `gorm:"type:json"`

	Read   bool `gorm:"column:is_read;not null;default:false;index:idx_notifications_recipient"`
	ReadAt *time.Time

	CreatedAt time.Time `gorm:"index"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
