package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/events"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/payment"
	"github.com/visiovate/Test-Backend/internal/repository"
)

// BookingOptions задаёт настраиваемые правила жизненного цикла брони.
type BookingOptions struct {
	// Валюта по умолчанию, если у провайдера не задана.
	Currency string
	// Провайдер может принять бронь только после успешной оплаты.
	RequirePaymentForAccept bool
}

type Address struct {
	Line       string
	City       string
	PostalCode string
}

// CreateBookingInput описывает проверенный запрос на создание брони.
type CreateBookingInput struct {
	CustomerID      uuid.UUID
	ProviderID      uuid.UUID
	Date            string
	StartMinute     int
	DurationMinutes int
	Services        []string
	Address         Address
	Notes           string
}

type CreateBookingResult struct {
	Booking      *model.Booking
	Payment      *model.Payment
	ClientSecret string
}

// CancelInput: оплаченная бронь при отмене всегда возвращается полностью.
type CancelInput struct {
	Reason string
}

// BookingPage описывает страницу истории броней стороны.
type BookingPage struct {
	Items []model.Booking
	Total int64
	Page  int
	Limit int
}

type BookingService struct {
	db        *gorm.DB
	bookings  repository.BookingRepository
	customers repository.CustomerRepository
	providers repository.ProviderRepository
	schedules repository.ScheduleRepository
	payments  repository.PaymentRepository
	audit     repository.EventRepository

	gateway  payment.Gateway
	payment  *PaymentService
	notifier *NotificationService
	machine  *stateMachine

	cfg BookingOptions
	log *zap.Logger
	now Clock
}

func NewBookingService(
	db *gorm.DB,
	repos repository.Repositories,
	gateway payment.Gateway,
	payments *PaymentService,
	notifier *NotificationService,
	cfg BookingOptions,
	log *zap.Logger,
	opts ...Option,
) *BookingService {
	o := buildOptions(opts)
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &BookingService{
		db:        db,
		bookings:  repos.Bookings,
		customers: repos.Customers,
		providers: repos.Providers,
		schedules: repos.Schedules,
		payments:  repos.Payments,
		audit:     repos.Events,
		gateway:   gateway,
		payment:   payments,
		notifier:  notifier,
		machine: &stateMachine{
			bookings: repos.Bookings,
			audit:    repos.Events,
			notifier: notifier,
			now:      o.now,
		},
		cfg: cfg,
		log: log,
		now: o.now,
	}
}

// Create резервирует слот, затем открывает платёж.
// Если шлюз или запись платежа падают, бронь отменяется без уведомлений.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (*CreateBookingResult, error) {
	date, err := calendar.ParseDate(in.Date)
	if err != nil {
		return nil, apperror.Validation("invalid date %q, expected YYYY-MM-DD", in.Date)
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return nil, apperror.Validation("booking date %s is in the past", in.Date)
	}

	provider, err := s.providers.GetByID(ctx, in.ProviderID)
	if err != nil {
		return nil, notFoundOr(err, "provider not found")
	}
	if !provider.Active {
		return nil, apperror.NotFound("provider not found")
	}
	services, err := normalizeServices(provider, in.Services)
	if err != nil {
		return nil, err
	}

	if err := s.checkAvailability(ctx, provider.ID, date, in.StartMinute, in.DurationMinutes); err != nil {
		return nil, err
	}

	currency := provider.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	price := Quote(provider.HourlyRate, in.DurationMinutes)

	b := &model.Booking{
		CustomerID:      in.CustomerID,
		ProviderID:      provider.ID,
		ScheduledDate:   date.Format(calendar.DateLayout),
		StartMinute:     in.StartMinute,
		DurationMinutes: in.DurationMinutes,
		Services:        datatypes.JSONSlice[string](services),
		AddressLine:     in.Address.Line,
		City:            in.Address.City,
		PostalCode:      in.Address.PostalCode,
		Status:          model.BookingStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		HourlyRate:      price.HourlyRate,
		Subtotal:        price.Subtotal,
		Fee:             price.Fee,
		Total:           price.Total,
		Currency:        currency,
		Notes:           in.Notes,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.customers.WithTx(tx).Ensure(ctx, in.CustomerID); err != nil {
			return notFoundOr(err, "customer not found")
		}
		if err := s.bookings.WithTx(tx).Reserve(ctx, b); err != nil {
			return asAppError(err, "reserve booking")
		}
		bookingID := b.ID
		return s.audit.WithTx(tx).Create(ctx, &model.Event{
			EventType: model.EventTypeBookingCreated,
			CreatedAt: s.now(),
			ActorType: string(model.PartyCustomer),
			ActorID:   &in.CustomerID,
			BookingID: &bookingID,
			Details:   describeSlot(b),
		})
	})
	if err != nil {
		return nil, asAppError(err, "create booking")
	}

	intent, err := s.gateway.CreateIntent(ctx, b.Total, b.Currency, map[string]string{
		"booking_id":  b.ID.String(),
		"customer_id": b.CustomerID.String(),
		"provider_id": b.ProviderID.String(),
	})
	if err != nil {
		s.compensate(ctx, b, "payment initialization failed")
		return nil, apperror.External(err, "payment gateway unavailable")
	}

	p := &model.Payment{
		BookingID: b.ID,
		IntentID:  intent.ID,
		Amount:    b.Total,
		Currency:  b.Currency,
		Status:    model.PaymentStatusPending,
	}
	var out Outbox
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).Create(ctx, p); err != nil {
			return apperror.Internal(err, "insert payment")
		}
		out.Emit(events.DomainEvent{
			Type:      "booking.created",
			BookingID: b.ID.String(),
			Status:    string(b.Status),
			Data:      map[string]any{"total": b.Total, "currency": b.Currency},
			At:        s.now(),
		})
		return s.notifier.Notify(ctx, tx, &out, notification(
			model.PartyProvider, b.ProviderID,
			model.NotificationBookingRequest,
			"New booking request",
			"New booking request for "+describeSlot(b)+".",
			map[string]any{"bookingId": b.ID.String(), "status": string(b.Status)},
		))
	})
	if err != nil {
		s.payment.cancelIntentAsync(intent.ID)
		s.compensate(ctx, b, "payment record failed")
		return nil, asAppError(err, "create payment")
	}

	s.notifier.Dispatch(&out)
	s.log.Info("booking created",
		zap.String("booking_id", b.ID.String()),
		zap.String("provider_id", b.ProviderID.String()),
		zap.Int64("total", b.Total))

	return &CreateBookingResult{Booking: b, Payment: p, ClientSecret: intent.ClientSecret}, nil
}

// compensate закрывает бронь, для которой не удалось открыть платёж.
func (s *BookingService) compensate(ctx context.Context, b *model.Booking, reason string) {
	var out Outbox
	c := systemCause(reason)
	c.silent = true

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.bookings.WithTx(tx).GetForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		return s.machine.apply(ctx, tx, locked, model.BookingStatusCancelled, c, &out)
	})
	if err != nil {
		s.log.Error("compensating cancel failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
		return
	}
	s.notifier.Dispatch(&out)
}

func (s *BookingService) checkAvailability(ctx context.Context, providerID uuid.UUID, date time.Time, start, duration int) error {
	windows, err := s.schedules.ListByProvider(ctx, providerID)
	if err != nil {
		return apperror.Internal(err, "load availability")
	}
	schedule, err := weeklySchedule(windows)
	if err != nil {
		return apperror.Internal(err, "parse availability")
	}

	err = calendar.ResolveAvailability(schedule, date, start, duration)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, calendar.ErrNoAvailabilityOnDay):
		return apperror.Validation("provider is not available on %s", date.Weekday())
	case errors.Is(err, calendar.ErrOutsideAvailabilityWindow):
		w := schedule[date.Weekday()]
		return apperror.Validation("requested time is outside provider availability %s-%s",
			calendar.FormatClock(w.Start), calendar.FormatClock(w.End))
	default:
		return apperror.Validation("%s", err.Error())
	}
}

func (s *BookingService) Get(ctx context.Context, p auth.Principal, id uuid.UUID) (*model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "booking not found")
	}
	if !b.HasParty(p.Type, p.ID) {
		return nil, apperror.Forbidden("not a party of this booking")
	}
	return b, nil
}

func (s *BookingService) List(
	ctx context.Context,
	p auth.Principal,
	status model.BookingStatus,
	page, limit int,
) (*BookingPage, error) {
	if status != "" && !status.Valid() {
		return nil, apperror.Validation("unknown booking status %q", status)
	}
	page, limit, offset := pageBounds(page, limit)

	items, total, err := s.bookings.ListByParty(ctx, p.Type, p.ID, status, limit, offset)
	if err != nil {
		return nil, apperror.Internal(err, "list bookings")
	}
	return &BookingPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// UpdateStatus выполняет действия провайдера над бронью.
func (s *BookingService) UpdateStatus(ctx context.Context, p auth.Principal, id uuid.UUID, to model.BookingStatus) (*model.Booking, error) {
	switch to {
	case model.BookingStatusAccepted, model.BookingStatusRejected, model.BookingStatusCompleted:
	default:
		return nil, apperror.Validation("status must be one of ACCEPTED, REJECTED, COMPLETED")
	}
	if p.Type != model.PartyProvider {
		return nil, apperror.Forbidden("only the provider can change booking status")
	}

	var (
		out    Outbox
		b      *model.Booking
		settle settlement
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		b, err = s.bookings.WithTx(tx).GetForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "booking not found")
		}
		if !b.HasParty(p.Type, p.ID) {
			return apperror.Forbidden("not the provider of this booking")
		}
		if to == model.BookingStatusAccepted && s.cfg.RequirePaymentForAccept &&
			b.PaymentStatus != model.PaymentStatusSucceeded {
			return apperror.StateTransition("booking cannot be accepted before payment succeeds")
		}

		if err := s.machine.apply(ctx, tx, b, to, partyCause(p.Type, p.ID, ""), &out); err != nil {
			return err
		}
		if to == model.BookingStatusRejected {
			settle, err = s.settleClosed(ctx, tx, b)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err, "update booking status")
	}

	s.notifier.Dispatch(&out)
	s.afterClose(ctx, b, settle)
	return b, nil
}

// Cancel отменяет бронь по запросу любой стороны. Оплаченная бронь возвращается полностью после коммита.
func (s *BookingService) Cancel(ctx context.Context, p auth.Principal, id uuid.UUID, in CancelInput) (*model.Booking, error) {
	reason := strings.TrimSpace(in.Reason)

	var (
		out    Outbox
		b      *model.Booking
		settle settlement
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		b, err = s.bookings.WithTx(tx).GetForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "booking not found")
		}
		if !b.HasParty(p.Type, p.ID) {
			return apperror.Forbidden("not a party of this booking")
		}

		if err := s.machine.apply(ctx, tx, b, model.BookingStatusCancelled, partyCause(p.Type, p.ID, reason), &out); err != nil {
			return err
		}
		settle, err = s.settleClosed(ctx, tx, b)
		return err
	})
	if err != nil {
		return nil, asAppError(err, "cancel booking")
	}

	s.notifier.Dispatch(&out)
	s.afterClose(ctx, b, settle)
	return b, nil
}

// settlement описывает, что сделать с платежом закрытой брони после коммита.
type settlement struct {
	cancelIntent string
	refund       bool
}

// settleClosed разбирается с платежом закрытой брони: оплаченный помечает к возврату,
// для неоплаченного отдаёт интент на отмену после коммита.
func (s *BookingService) settleClosed(ctx context.Context, tx *gorm.DB, b *model.Booking) (settlement, error) {
	switch b.PaymentStatus {
	case model.PaymentStatusSucceeded:
		refund, err := s.payment.requestRefundTx(ctx, tx, b)
		return settlement{refund: refund}, err
	case model.PaymentStatusPending:
		p, err := s.payments.WithTx(tx).GetByBookingID(ctx, b.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return settlement{}, nil
			}
			return settlement{}, apperror.Internal(err, "load payment")
		}
		return settlement{cancelIntent: p.IntentID}, nil
	}
	return settlement{}, nil
}

// afterClose выполняет settlement. Бронь уже закрыта, поэтому ошибка шлюза
// не отменяет ответ: возврат остаётся заказанным и его доведёт RetryRefunds.
func (s *BookingService) afterClose(ctx context.Context, b *model.Booking, st settlement) {
	if st.cancelIntent != "" {
		s.payment.cancelIntentAsync(st.cancelIntent)
	}
	if !st.refund {
		return
	}
	p, err := s.payment.completeRefund(ctx, b.ID)
	if err != nil {
		s.log.Warn("refund deferred", zap.String("booking_id", b.ID.String()), zap.Error(err))
		return
	}
	b.PaymentStatus = p.Status
}

// History возвращает журнал аудита брони её сторонам.
func (s *BookingService) History(ctx context.Context, p auth.Principal, id uuid.UUID) ([]model.Event, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	evs, err := s.audit.ListByBooking(ctx, id)
	if err != nil {
		return nil, apperror.Internal(err, "list booking events")
	}
	return evs, nil
}

// normalizeServices проверяет, что провайдер оказывает запрошенные услуги.
func normalizeServices(p *model.Provider, requested []string) ([]string, error) {
	out := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, svc := range requested {
		svc = strings.TrimSpace(svc)
		if svc == "" {
			continue
		}
		key := strings.ToLower(svc)
		if _, ok := seen[key]; ok {
			continue
		}
		if len(p.Services) > 0 && !p.Offers(svc) {
			return nil, apperror.Validation("provider does not offer %q", svc)
		}
		seen[key] = struct{}{}
		out = append(out, svc)
	}
	if len(out) == 0 {
		return nil, apperror.Validation("at least one service is required")
	}
	return out, nil
}

func weeklySchedule(windows []model.AvailabilityWindow) (calendar.WeeklySchedule, error) {
	schedule := calendar.WeeklySchedule{}
	for _, w := range windows {
		if err := schedule.AddWindow(w.Weekday, w.StartTime, w.EndTime); err != nil {
			return nil, err
		}
	}
	return schedule, nil
}
