package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/events"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/realtime"
	"github.com/visiovate/Test-Backend/internal/repository"
)

// Push уходит в комнату реального времени после коммита.
type Push struct {
	Room    string
	Event   string
	Payload any
}

// Outbox копит push-сообщения и доменные события внутри транзакции.
type Outbox struct {
	pushes []Push
	events []events.DomainEvent
}

func (o *Outbox) Push(room, event string, payload any) {
	o.pushes = append(o.pushes, Push{Room: room, Event: event, Payload: payload})
}

func (o *Outbox) Emit(ev events.DomainEvent) {
	o.events = append(o.events, ev)
}

func (o *Outbox) Pushes() []Push { return o.pushes }

func (o *Outbox) Events() []events.DomainEvent { return o.events }

// NotificationPage описывает страницу уведомлений получателя.
type NotificationPage struct {
	Items  []model.Notification
	Total  int64
	Unread int64
	Page   int
	Limit  int
}

type NotificationService struct {
	repo        repository.NotificationRepository
	publisher   realtime.Publisher
	sink        events.Sink
	log         *zap.Logger
	pushTimeout time.Duration
}

func NewNotificationService(
	repo repository.NotificationRepository,
	publisher realtime.Publisher,
	sink events.Sink,
	log *zap.Logger,
	pushTimeout time.Duration,
) *NotificationService {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if pushTimeout <= 0 {
		pushTimeout = 5 * time.Second
	}
	return &NotificationService{
		repo:        repo,
		publisher:   publisher,
		sink:        sink,
		log:         log,
		pushTimeout: pushTimeout,
	}
}

// Notify сохраняет уведомления в транзакции вызывающего и ставит push в outbox.
func (s *NotificationService) Notify(ctx context.Context, tx *gorm.DB, out *Outbox, notifications ...model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := s.repo.WithTx(tx).CreateBatch(ctx, notifications); err != nil {
		return apperror.Internal(err, "persist notifications")
	}
	for i := range notifications {
		n := notifications[i]
		out.Push(n.RecipientType.Room(n.RecipientID), realtime.EventNotification, n)
	}
	return nil
}

// Dispatch отправляет накопленное без ожидания результата, в порядке накопления.
// Ошибки доставки только логируются: запись уведомления уже сохранена.
func (s *NotificationService) Dispatch(out *Outbox) {
	if out == nil || (len(out.pushes) == 0 && len(out.events) == 0) {
		return
	}
	pushes, evs := out.pushes, out.events
	out.pushes, out.events = nil, nil

	go func() {
		for _, p := range pushes {
			s.push(p)
		}
		for _, ev := range evs {
			s.emit(ev)
		}
	}()
}

func (s *NotificationService) push(p Push) {
	ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, p.Room, p.Event, p.Payload); err != nil {
		s.log.Warn("realtime push failed",
			zap.String("room", p.Room),
			zap.String("event", p.Event),
			zap.Error(err))
	}
}

func (s *NotificationService) emit(ev events.DomainEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
	defer cancel()

	if err := s.sink.Emit(ctx, ev); err != nil {
		s.log.Warn("domain event emit failed",
			zap.String("type", ev.Type),
			zap.String("booking_id", ev.BookingID),
			zap.Error(err))
	}
}

func (s *NotificationService) List(
	ctx context.Context,
	recipientType model.PartyType,
	recipientID uuid.UUID,
	unreadOnly bool,
	page, limit int,
) (*NotificationPage, error) {
	page, limit, offset := pageBounds(page, limit)

	items, total, err := s.repo.ListByRecipient(ctx, recipientType, recipientID, unreadOnly, limit, offset)
	if err != nil {
		return nil, apperror.Internal(err, "list notifications")
	}
	unread, err := s.repo.CountUnread(ctx, recipientType, recipientID)
	if err != nil {
		return nil, apperror.Internal(err, "count unread notifications")
	}
	return &NotificationPage{Items: items, Total: total, Unread: unread, Page: page, Limit: limit}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID, recipientType model.PartyType, recipientID uuid.UUID) error {
	ok, err := s.repo.MarkRead(ctx, id, recipientType, recipientID)
	if err != nil {
		return apperror.Internal(err, "mark notification read")
	}
	if !ok {
		return apperror.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientType model.PartyType, recipientID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, recipientType, recipientID)
	if err != nil {
		return 0, apperror.Internal(err, "mark all notifications read")
	}
	return n, nil
}
