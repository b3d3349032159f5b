package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/realtime"
	"github.com/visiovate/Test-Backend/internal/repository"
)

const (
	maxMessageLength = 2000
	previewLength    = 80
)

// MessageService ведёт чат сторон брони.
type MessageService struct {
	db       *gorm.DB
	bookings repository.BookingRepository
	messages repository.MessageRepository
	notifier *NotificationService
}

func NewMessageService(db *gorm.DB, repos repository.Repositories, notifier *NotificationService) *MessageService {
	return &MessageService{
		db:       db,
		bookings: repos.Bookings,
		messages: repos.Messages,
		notifier: notifier,
	}
}

func (s *MessageService) Send(ctx context.Context, p auth.Principal, bookingID uuid.UUID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.Validation("message must not be empty")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, apperror.Validation("message must be at most %d characters", maxMessageLength)
	}

	var (
		out Outbox
		msg *model.Message
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.bookings.WithTx(tx).GetByID(ctx, bookingID)
		if err != nil {
			return notFoundOr(err, "booking not found")
		}
		if !b.HasParty(p.Type, p.ID) {
			return apperror.Forbidden("not a party of this booking")
		}

		msg = &model.Message{
			BookingID:  b.ID,
			SenderType: p.Type,
			SenderID:   p.ID,
			Content:    content,
		}
		if err := s.messages.WithTx(tx).Create(ctx, msg); err != nil {
			return apperror.Internal(err, "insert message")
		}
		out.Push(realtime.BookingRoom(b.ID.String()), realtime.EventChatMessage, msg)

		rt, rid := model.PartyProvider, b.ProviderID
		if p.Type == model.PartyProvider {
			rt, rid = model.PartyCustomer, b.CustomerID
		}
		return s.notifier.Notify(ctx, tx, &out, notification(
			rt, rid,
			model.NotificationNewMessage,
			"New message",
			preview(content),
			map[string]any{"bookingId": b.ID.String(), "messageId": msg.ID.String()},
		))
	})
	if err != nil {
		return nil, asAppError(err, "send message")
	}

	s.notifier.Dispatch(&out)
	return msg, nil
}

func (s *MessageService) List(ctx context.Context, p auth.Principal, bookingID uuid.UUID, limit int) ([]model.Message, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOr(err, "booking not found")
	}
	if !b.HasParty(p.Type, p.ID) {
		return nil, apperror.Forbidden("not a party of this booking")
	}
	_, limit, _ = pageBounds(1, limit)

	msgs, err := s.messages.ListByBooking(ctx, bookingID, limit)
	if err != nil {
		return nil, apperror.Internal(err, "list messages")
	}
	return msgs, nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLength {
		return s
	}
	r := []rune(s)
	return string(r[:previewLength]) + "…"
}
