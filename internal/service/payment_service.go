package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/events"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/payment"
	"github.com/visiovate/Test-Backend/internal/repository"
)

var (
	// Событие по неизвестному интенту подтверждается без повтора.
	ErrPaymentRecordNotFound = errors.New("payment record not found")
	// Событие пришло раньше предшествующего, шлюз повторит доставку.
	ErrEventOutOfOrder = errors.New("payment event arrived out of order")
)

type PaymentService struct {
	db       *gorm.DB
	payments repository.PaymentRepository
	bookings repository.BookingRepository
	gateway  payment.Gateway
	notifier *NotificationService
	machine  *stateMachine
	log      *zap.Logger
	now      Clock
}

func NewPaymentService(
	db *gorm.DB,
	repos repository.Repositories,
	gateway payment.Gateway,
	notifier *NotificationService,
	log *zap.Logger,
	opts ...Option,
) *PaymentService {
	o := buildOptions(opts)
	return &PaymentService{
		db:       db,
		payments: repos.Payments,
		bookings: repos.Bookings,
		gateway:  gateway,
		notifier: notifier,
		machine: &stateMachine{
			bookings: repos.Bookings,
			audit:    repos.Events,
			notifier: notifier,
			now:      o.now,
		},
		log: log,
		now: o.now,
	}
}

// Apply обрабатывает одно событие шлюза в одной транзакции.
// Повтор события с тем же ID ничего не меняет, кроме доведения заказанного возврата.
func (s *PaymentService) Apply(ctx context.Context, ev payment.Event) error {
	if ev.IntentID == "" {
		return apperror.Validation("payment event has no intent id")
	}

	var (
		out       Outbox
		refundFor uuid.UUID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)

		if ev.ID != "" {
			inserted, err := payments.RecordEvent(ctx, &model.PaymentEvent{
				ID:          ev.ID,
				Type:        string(ev.Kind),
				IntentID:    ev.IntentID,
				ProcessedAt: s.now(),
			})
			if err != nil {
				return apperror.Internal(err, "record payment event")
			}
			if !inserted {
				s.log.Debug("duplicate payment event", zap.String("event_id", ev.ID))
				refundFor, err = pendingRefund(ctx, payments, ev.IntentID)
				return err
			}
		}

		p, err := payments.GetByIntentForUpdate(ctx, ev.IntentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("intent %s: %w", ev.IntentID, ErrPaymentRecordNotFound)
			}
			return apperror.Internal(err, "load payment")
		}

		switch ev.Kind {
		case payment.EventSucceeded:
			refund, err := s.applySucceeded(ctx, tx, p, &out)
			if refund {
				refundFor = p.BookingID
			}
			return err
		case payment.EventFailed:
			return s.applyFailed(ctx, tx, p, ev.FailureReason, &out)
		case payment.EventRefunded:
			return s.applyRefunded(ctx, tx, p, ev.AmountRefunded, &out)
		}
		return apperror.Validation("unknown payment event kind %q", ev.Kind)
	})
	if err != nil {
		return err
	}

	s.notifier.Dispatch(&out)
	if refundFor != uuid.Nil {
		// ошибка шлюза вернёт не-2xx, повтор события доведёт возврат
		if _, err := s.completeRefund(ctx, refundFor); err != nil {
			return err
		}
	}
	return nil
}

// Ingest применяет события по одному; ошибка одного не мешает остальным.
// Возвращает ошибки по индексам событий, nil, если событие применено или отброшено.
func (s *PaymentService) Ingest(ctx context.Context, evs ...payment.Event) []error {
	errs := make([]error, len(evs))
	for i, ev := range evs {
		err := s.Apply(ctx, ev)
		if errors.Is(err, ErrPaymentRecordNotFound) {
			s.log.Warn("payment event for unknown intent dropped",
				zap.String("event_id", ev.ID),
				zap.String("intent_id", ev.IntentID))
			err = nil
		}
		if err != nil {
			s.log.Error("payment event failed",
				zap.String("event_id", ev.ID),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
		}
		errs[i] = err
	}
	return errs
}

// applySucceeded возвращает true, если бронь уже закрыта и после коммита нужен возврат.
func (s *PaymentService) applySucceeded(ctx context.Context, tx *gorm.DB, p *model.Payment, out *Outbox) (bool, error) {
	if p.Status == model.PaymentStatusSucceeded {
		return false, nil
	}
	if !p.Status.CanTransitionTo(model.PaymentStatusSucceeded) {
		s.illegalEdge(p, model.PaymentStatusSucceeded)
		return false, nil
	}

	now := s.now()
	p.Status = model.PaymentStatusSucceeded
	p.SucceededAt = &now
	if err := s.savePayment(ctx, tx, p, out); err != nil {
		return false, err
	}

	b, err := s.bookings.WithTx(tx).GetForUpdate(ctx, p.BookingID)
	if err != nil {
		return false, apperror.Internal(err, "load booking")
	}
	b.PaymentStatus = p.Status

	switch b.Status {
	case model.BookingStatusPending:
		return false, s.machine.apply(ctx, tx, b, model.BookingStatusAccepted, paymentCause("payment succeeded"), out)
	case model.BookingStatusCancelled, model.BookingStatusRejected:
		// бронь уже закрыта, деньги возвращаем
		s.log.Info("payment succeeded for closed booking, refunding",
			zap.String("booking_id", b.ID.String()),
			zap.String("status", string(b.Status)))
		return s.requestRefundTx(ctx, tx, b)
	}
	return false, nil
}

func (s *PaymentService) applyFailed(ctx context.Context, tx *gorm.DB, p *model.Payment, reason string, out *Outbox) error {
	if p.Status == model.PaymentStatusFailed {
		return nil
	}
	if !p.Status.CanTransitionTo(model.PaymentStatusFailed) {
		s.illegalEdge(p, model.PaymentStatusFailed)
		return nil
	}

	now := s.now()
	p.Status = model.PaymentStatusFailed
	p.FailedAt = &now
	p.FailureReason = reason
	if err := s.savePayment(ctx, tx, p, out); err != nil {
		return err
	}

	b, err := s.bookings.WithTx(tx).GetForUpdate(ctx, p.BookingID)
	if err != nil {
		return apperror.Internal(err, "load booking")
	}
	if b.Status != model.BookingStatusPending {
		return nil
	}
	return s.machine.apply(ctx, tx, b, model.BookingStatusRejected, paymentCause(reason), out)
}

func (s *PaymentService) applyRefunded(ctx context.Context, tx *gorm.DB, p *model.Payment, refunded int64, out *Outbox) error {
	if refunded <= 0 {
		refunded = p.Amount
	}
	target := refundStatus(p.Amount, refunded)

	if p.Status == target {
		return nil
	}
	if p.Status == model.PaymentStatusPending {
		return fmt.Errorf("refund for pending payment %s: %w", p.ID, ErrEventOutOfOrder)
	}
	if !p.Status.CanTransitionTo(target) {
		s.illegalEdge(p, target)
		return nil
	}

	now := s.now()
	p.Status = target
	p.Refunded = true
	p.RefundAmount = refunded
	p.RefundedAt = &now
	if err := s.savePayment(ctx, tx, p, out); err != nil {
		return err
	}

	b, err := s.bookings.WithTx(tx).GetByID(ctx, p.BookingID)
	if err != nil {
		return apperror.Internal(err, "load booking")
	}
	return s.notifyRefund(ctx, tx, b, p, out)
}

// requestRefundTx помечает оплаченный платёж брони к полному возврату в рамках tx.
// Сам шлюз вызывается после коммита в completeRefund; false, если возвращать нечего.
func (s *PaymentService) requestRefundTx(ctx context.Context, tx *gorm.DB, b *model.Booking) (bool, error) {
	payments := s.payments.WithTx(tx)
	p, err := payments.GetByBookingForUpdate(ctx, b.ID)
	if err != nil {
		return false, notFoundOr(err, "payment for booking %s not found", b.ID)
	}
	if p.Status != model.PaymentStatusSucceeded {
		return false, nil
	}
	if p.RefundRequestedAt == nil {
		now := s.now()
		p.RefundRequestedAt = &now
		if err := payments.Update(ctx, p); err != nil {
			return false, apperror.Internal(err, "request refund")
		}
	}
	return true, nil
}

// completeRefund проводит заказанный возврат через шлюз и фиксирует результат.
// Ключ идемпотентности привязан к платежу, повторный вызов не создаст второй возврат.
func (s *PaymentService) completeRefund(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	p, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOr(err, "payment for booking %s not found", bookingID)
	}
	if p.Status != model.PaymentStatusSucceeded || p.RefundRequestedAt == nil {
		return p, nil
	}

	rec, err := s.gateway.Refund(ctx, p.IntentID, nil, refundKey(p))
	if err != nil {
		s.log.Warn("payment refund failed",
			zap.String("payment_id", p.ID.String()),
			zap.Error(err))
		return nil, apperror.External(err, "payment refund failed")
	}

	var out Outbox
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.payments.WithTx(tx).GetByBookingForUpdate(ctx, bookingID)
		if err != nil {
			return apperror.Internal(err, "load payment")
		}
		p = locked
		// событие возврата от шлюза могло прийти раньше
		if p.Status != model.PaymentStatusSucceeded {
			return nil
		}

		refunded := rec.Amount
		if refunded <= 0 {
			refunded = p.Amount
		}
		now := s.now()
		p.Status = refundStatus(p.Amount, refunded)
		p.Refunded = true
		p.RefundAmount = refunded
		p.RefundID = rec.ID
		p.RefundedAt = &now
		if err := s.savePayment(ctx, tx, p, &out); err != nil {
			return err
		}

		b, err := s.bookings.WithTx(tx).GetByID(ctx, bookingID)
		if err != nil {
			return apperror.Internal(err, "load booking")
		}
		return s.notifyRefund(ctx, tx, b, p, &out)
	})
	if err != nil {
		return nil, asAppError(err, "record refund")
	}

	s.notifier.Dispatch(&out)
	return p, nil
}

// RetryRefunds доводит возвраты, на которых шлюз ранее ответил ошибкой.
func (s *PaymentService) RetryRefunds(ctx context.Context, limit int) (int, error) {
	queued, err := s.payments.ListRefundRequested(ctx, limit)
	if err != nil {
		return 0, apperror.Internal(err, "list requested refunds")
	}

	done := 0
	for _, p := range queued {
		if _, err := s.completeRefund(ctx, p.BookingID); err != nil {
			continue
		}
		done++
	}
	return done, nil
}

// pendingRefund отдаёт бронь, если её платёж ждёт проведения возврата.
func pendingRefund(ctx context.Context, payments repository.PaymentRepository, intentID string) (uuid.UUID, error) {
	p, err := payments.GetByIntentForUpdate(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, nil
		}
		return uuid.Nil, apperror.Internal(err, "load payment")
	}
	if p.Status == model.PaymentStatusSucceeded && p.RefundRequestedAt != nil {
		return p.BookingID, nil
	}
	return uuid.Nil, nil
}

func refundKey(p *model.Payment) string {
	return "refund-" + p.ID.String()
}

// cancelIntentAsync отменяет неоплаченный интент после коммита, без ожидания.
// Если оплата всё же пройдёт, событие успеха вернёт деньги.
func (s *PaymentService) cancelIntentAsync(intentID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
			s.log.Warn("cancel payment intent failed", zap.String("intent_id", intentID), zap.Error(err))
		}
	}()
}

// SweepStale сверяет PENDING-платежи старше olderThan со шлюзом.
func (s *PaymentService) SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.payments.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, apperror.Internal(err, "list stale payments")
	}

	reconciled := 0
	for _, p := range stale {
		status, err := s.gateway.RetrieveIntent(ctx, p.IntentID)
		if err != nil {
			s.log.Warn("retrieve intent failed", zap.String("intent_id", p.IntentID), zap.Error(err))
			continue
		}

		var kind payment.EventKind
		switch status {
		case payment.IntentSucceeded:
			kind = payment.EventSucceeded
		case payment.IntentFailed:
			kind = payment.EventFailed
		default:
			continue
		}

		// без ID: опрос не попадает в журнал событий шлюза
		ev := payment.Event{Kind: kind, IntentID: p.IntentID, Amount: p.Amount, FailureReason: "reconciled by sweep"}
		if err := s.Apply(ctx, ev); err != nil {
			s.log.Error("reconcile payment failed", zap.String("payment_id", p.ID.String()), zap.Error(err))
			continue
		}
		reconciled++
	}
	return reconciled, nil
}

func (s *PaymentService) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	p, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOr(err, "payment for booking %s not found", bookingID)
	}
	return p, nil
}

func (s *PaymentService) savePayment(ctx context.Context, tx *gorm.DB, p *model.Payment, out *Outbox) error {
	if err := s.payments.WithTx(tx).Update(ctx, p); err != nil {
		return apperror.Internal(err, "update payment")
	}
	if err := s.bookings.WithTx(tx).SetPaymentStatus(ctx, p.BookingID, p.Status); err != nil {
		return apperror.Internal(err, "update booking payment status")
	}
	out.Emit(events.DomainEvent{
		Type:      "payment." + strings.ToLower(string(p.Status)),
		BookingID: p.BookingID.String(),
		Status:    string(p.Status),
		Data:      map[string]any{"intentId": p.IntentID, "amount": p.Amount, "refundAmount": p.RefundAmount},
		At:        s.now(),
	})
	return nil
}

func (s *PaymentService) notifyRefund(ctx context.Context, tx *gorm.DB, b *model.Booking, p *model.Payment, out *Outbox) error {
	msg := fmt.Sprintf("A refund of %s %s was issued for booking on %s.",
		formatMinor(p.RefundAmount), p.Currency, describeSlot(b))
	payload := map[string]any{
		"bookingId":    b.ID.String(),
		"refundAmount": p.RefundAmount,
		"status":       string(p.Status),
	}
	return s.notifier.Notify(ctx, tx, out, both(b, model.NotificationPaymentRefunded, "Payment refunded", msg, payload)...)
}

func (s *PaymentService) illegalEdge(p *model.Payment, to model.PaymentStatus) {
	s.log.Warn("ignored payment transition",
		zap.String("payment_id", p.ID.String()),
		zap.String("from", string(p.Status)),
		zap.String("to", string(to)))
}

func refundStatus(amount, refunded int64) model.PaymentStatus {
	if refunded >= amount {
		return model.PaymentStatusRefunded
	}
	return model.PaymentStatusPartiallyRefunded
}

func formatMinor(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}
