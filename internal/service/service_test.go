package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/config"
	"github.com/visiovate/Test-Backend/internal/db"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/payment"
	"github.com/visiovate/Test-Backend/internal/payment/paymenttest"
	"github.com/visiovate/Test-Backend/internal/repository"
)

// Понедельник через неделю после "сегодня" тестовых часов.
const testMonday = "2026-01-12"

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type published struct {
	room  string
	event string
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, room, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{room: room, event: event})
	return nil
}

func (p *recordingPublisher) has(room, event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.msgs {
		if m.room == room && m.event == event {
			return true
		}
	}
	return false
}

type fixture struct {
	db       *gorm.DB
	repos    repository.Repositories
	gateway  *paymenttest.Gateway
	pub      *recordingPublisher
	clock    *testClock
	notifier *NotificationService
	payments *PaymentService
	bookings *BookingService
	reviews  *ReviewService
	messages *MessageService
	search   *SearchService

	customer model.Customer
	provider model.Provider
}

func newFixture(t *testing.T, cfg BookingOptions) *fixture {
	t.Helper()

	gdb, err := db.NewGormDB(&config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "service.db"),
	})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		db:      gdb,
		repos:   repository.NewRepositories(gdb),
		gateway: paymenttest.New(),
		pub:     &recordingPublisher{},
		clock:   &testClock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)},
	}
	log := zap.NewNop()
	clock := WithClock(f.clock.Now)

	f.notifier = NewNotificationService(f.repos.Notifications, f.pub, nil, log, time.Second)
	f.payments = NewPaymentService(gdb, f.repos, f.gateway, f.notifier, log, clock)
	f.bookings = NewBookingService(gdb, f.repos, f.gateway, f.payments, f.notifier, cfg, log, clock)
	f.reviews = NewReviewService(gdb, f.repos, f.notifier, log)
	f.messages = NewMessageService(gdb, f.repos, f.notifier)
	f.search = NewSearchService(f.repos)

	f.customer = model.Customer{DisplayName: "Alice"}
	require.NoError(t, gdb.Create(&f.customer).Error)
	f.provider = f.addProvider(t, "Bob", 2500, "cleaning", "laundry")
	return f
}

// addProvider создаёт активного провайдера с окном MONDAY 09:00-17:00.
func (f *fixture) addProvider(t *testing.T, name string, rate int64, services ...string) model.Provider {
	t.Helper()

	p := model.Provider{
		DisplayName: name,
		HourlyRate:  rate,
		Currency:    "usd",
		Services:    services,
		Active:      true,
	}
	require.NoError(t, f.db.Create(&p).Error)
	require.NoError(t, f.repos.Schedules.Upsert(context.Background(), &model.AvailabilityWindow{
		ProviderID: p.ID,
		Weekday:    time.Monday,
		StartTime:  "09:00",
		EndTime:    "17:00",
	}))
	return p
}

func (f *fixture) customerP() auth.Principal {
	return auth.Principal{ID: f.customer.ID, Type: model.PartyCustomer}
}

func (f *fixture) providerP() auth.Principal {
	return auth.Principal{ID: f.provider.ID, Type: model.PartyProvider}
}

func (f *fixture) input(start, duration int) CreateBookingInput {
	return CreateBookingInput{
		CustomerID:      f.customer.ID,
		ProviderID:      f.provider.ID,
		Date:            testMonday,
		StartMinute:     start,
		DurationMinutes: duration,
		Services:        []string{"cleaning"},
		Address:         Address{Line: "1 Main St", City: "Springfield"},
	}
}

func (f *fixture) create(t *testing.T, start, duration int) *CreateBookingResult {
	t.Helper()
	res, err := f.bookings.Create(context.Background(), f.input(start, duration))
	require.NoError(t, err)
	return res
}

// pay доставляет событие успешной оплаты брони.
func (f *fixture) pay(t *testing.T, res *CreateBookingResult) {
	t.Helper()
	require.NoError(t, f.payments.Apply(context.Background(), payment.Event{
		ID:       "evt_paid_" + res.Payment.IntentID,
		Kind:     payment.EventSucceeded,
		IntentID: res.Payment.IntentID,
		Amount:   res.Payment.Amount,
	}))
}

func (f *fixture) booking(t *testing.T, id uuid.UUID) model.Booking {
	t.Helper()
	var b model.Booking
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return b
}

func (f *fixture) paymentOf(t *testing.T, bookingID uuid.UUID) model.Payment {
	t.Helper()
	var p model.Payment
	require.NoError(t, f.db.First(&p, "booking_id = ?", bookingID).Error)
	return p
}

func (f *fixture) countNotifications(t *testing.T, typ model.NotificationType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Notification{}).Where("type = ?", typ).Count(&n).Error)
	return n
}
