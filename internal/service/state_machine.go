package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/events"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/realtime"
	"github.com/visiovate/Test-Backend/internal/repository"
)

const actorSystem = "system"

// cause — кто и почему двигает бронь.
type cause struct {
	actorType string
	actorID   *uuid.UUID
	reason    string
	// переход инициирован событием платежа
	viaPayment bool
	// без уведомлений сторонам (компенсация неудачного создания)
	silent bool
}

func partyCause(pt model.PartyType, id uuid.UUID, reason string) cause {
	return cause{actorType: string(pt), actorID: &id, reason: reason}
}

func systemCause(reason string) cause {
	return cause{actorType: actorSystem, reason: reason}
}

func paymentCause(reason string) cause {
	return cause{actorType: actorSystem, reason: reason, viaPayment: true}
}

// stateMachine применяет переходы брони вместе с аудитом и уведомлениями.
type stateMachine struct {
	bookings repository.BookingRepository
	audit    repository.EventRepository
	notifier *NotificationService
	now      Clock
}

// apply переводит бронь в статус to внутри tx. b должна быть прочитана под блокировкой.
func (m *stateMachine) apply(ctx context.Context, tx *gorm.DB, b *model.Booking, to model.BookingStatus, c cause, out *Outbox) error {
	from := b.Status
	if !from.CanTransitionTo(to) {
		return apperror.StateTransition("cannot change booking status from %s to %s", from, to).
			WithDetails(map[string]any{"from": from, "to": to})
	}

	now := m.now()
	fields := map[string]any{}
	switch to {
	case model.BookingStatusAccepted:
		fields["accepted_at"] = now
		b.AcceptedAt = &now
	case model.BookingStatusCompleted:
		fields["completed_at"] = now
		b.CompletedAt = &now
	case model.BookingStatusCancelled:
		fields["cancelled_at"] = now
		fields["cancel_reason"] = c.reason
		fields["cancelled_by"] = c.actorType
		b.CancelledAt = &now
		b.CancelReason = c.reason
		b.CancelledBy = c.actorType
	}

	ok, err := m.bookings.WithTx(tx).Transition(ctx, b.ID, from, to, fields)
	if err != nil {
		return apperror.Internal(err, "update booking status")
	}
	if !ok {
		return apperror.StateTransition("booking status changed concurrently")
	}
	b.Status = to
	if to.IsTerminal() {
		b.SlotKey = nil
	}

	bookingID := b.ID
	details := fmt.Sprintf("%s -> %s", from, to)
	if c.reason != "" {
		details += ": " + c.reason
	}
	if err := m.audit.WithTx(tx).Create(ctx, &model.Event{
		EventType: model.BookingEventType(to),
		CreatedAt: now,
		ActorType: c.actorType,
		ActorID:   c.actorID,
		BookingID: &bookingID,
		Details:   details,
	}); err != nil {
		return apperror.Internal(err, "write audit event")
	}

	out.Emit(events.DomainEvent{
		Type:      "booking." + strings.ToLower(string(to)),
		BookingID: b.ID.String(),
		Status:    string(to),
		Data:      map[string]any{"from": string(from), "actor": c.actorType},
		At:        now,
	})

	if c.silent {
		return nil
	}
	out.Push(realtime.BookingRoom(b.ID.String()), realtime.EventBookingStatus, map[string]any{
		"bookingId": b.ID.String(),
		"status":    to,
	})
	return m.notifier.Notify(ctx, tx, out, transitionNotifications(b, to, c)...)
}

// transitionNotifications собирает уведомления о переходе.
func transitionNotifications(b *model.Booking, to model.BookingStatus, c cause) []model.Notification {
	slot := describeSlot(b)
	payload := map[string]any{"bookingId": b.ID.String(), "status": string(to)}

	switch to {
	case model.BookingStatusAccepted:
		msg := fmt.Sprintf("Booking for %s is confirmed.", slot)
		return both(b, model.NotificationBookingAccepted, "Booking accepted", msg, payload)
	case model.BookingStatusRejected:
		msg := fmt.Sprintf("Your booking for %s was rejected.", slot)
		if c.viaPayment {
			msg = fmt.Sprintf("Payment failed, your booking for %s was rejected.", slot)
		}
		return []model.Notification{notification(model.PartyCustomer, b.CustomerID,
			model.NotificationBookingRejected, "Booking rejected", msg, payload)}
	case model.BookingStatusCompleted:
		msg := fmt.Sprintf("Your booking for %s is complete. Leave a review!", slot)
		return []model.Notification{notification(model.PartyCustomer, b.CustomerID,
			model.NotificationBookingCompleted, "Booking completed", msg, payload)}
	case model.BookingStatusCancelled:
		msg := fmt.Sprintf("Booking for %s was cancelled.", slot)
		if c.reason != "" {
			msg += " Reason: " + c.reason
		}
		return both(b, model.NotificationBookingCancelled, "Booking cancelled", msg, payload)
	}
	return nil
}

func both(b *model.Booking, typ model.NotificationType, title, msg string, payload map[string]any) []model.Notification {
	return []model.Notification{
		notification(model.PartyCustomer, b.CustomerID, typ, title, msg, payload),
		notification(model.PartyProvider, b.ProviderID, typ, title, msg, payload),
	}
}

func notification(
	pt model.PartyType,
	id uuid.UUID,
	typ model.NotificationType,
	title, msg string,
	payload map[string]any,
) model.Notification {
	return model.Notification{
		RecipientType: pt,
		RecipientID:   id,
		Type:          typ,
		Title:         title,
		Message:       msg,
		Payload:       payload,
	}
}

func describeSlot(b *model.Booking) string {
	date, err := calendar.ParseDate(b.ScheduledDate)
	if err != nil {
		return b.ScheduledDate
	}
	return calendar.FormatSlot(date, calendar.MinuteRange{Start: b.StartMinute, End: b.EndMinute()})
}
