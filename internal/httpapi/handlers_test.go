package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/config"
	"github.com/visiovate/Test-Backend/internal/db"
	"github.com/visiovate/Test-Backend/internal/health"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/payment"
	"github.com/visiovate/Test-Backend/internal/payment/paymenttest"
	"github.com/visiovate/Test-Backend/internal/realtime"
	"github.com/visiovate/Test-Backend/internal/repository"
	"github.com/visiovate/Test-Backend/internal/service"
)

const (
	jwtSecret     = "http-test-secret"
	webhookSecret = "whsec_http_test"
	monday        = "2026-01-12"
)

type api struct {
	router   http.Handler
	db       *gorm.DB
	gateway  *paymenttest.Gateway
	customer model.Customer
	provider model.Provider
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.NewGormDB(&config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "http.db"),
	})
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := zap.NewNop()
	clock := service.WithClock(func() time.Time { return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) })
	repos := repository.NewRepositories(gdb)
	gw := paymenttest.New()
	hub := realtime.NewHub(log, nil)

	notifier := service.NewNotificationService(repos.Notifications, hub, nil, log, time.Second)
	payments := service.NewPaymentService(gdb, repos, gw, notifier, log, clock)
	bookings := service.NewBookingService(gdb, repos, gw, payments, notifier, service.BookingOptions{}, log, clock)

	router := NewRouter(Options{JWTSecret: jwtSecret}, Deps{
		Bookings:      bookings,
		Payments:      payments,
		Notifications: notifier,
		Reviews:       service.NewReviewService(gdb, repos, notifier, log),
		Messages:      service.NewMessageService(gdb, repos, notifier),
		Search:        service.NewSearchService(repos),
		Webhook:       payment.NewStripeWebhook(webhookSecret),
		Hub:           hub,
		Health:        health.NewChecker(gdb, time.Second, log),
	}, log)

	a := &api{router: router, db: gdb, gateway: gw}
	a.customer = model.Customer{DisplayName: "Alice"}
	require.NoError(t, gdb.Create(&a.customer).Error)
	a.provider = model.Provider{
		DisplayName: "Bob",
		HourlyRate:  2500,
		Currency:    "usd",
		Services:    []string{"cleaning"},
		City:        "Springfield",
		Active:      true,
	}
	require.NoError(t, gdb.Create(&a.provider).Error)
	require.NoError(t, repos.Schedules.Upsert(context.Background(), &model.AvailabilityWindow{
		ProviderID: a.provider.ID,
		Weekday:    time.Monday,
		StartTime:  "09:00",
		EndTime:    "17:00",
	}))
	return a
}

func (a *api) token(t *testing.T, pt model.PartyType, id uuid.UUID) string {
	t.Helper()
	tok, err := auth.IssueToken(jwtSecret, auth.Principal{ID: id, Type: pt}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *api) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1"+path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) bookingBody() string {
	return fmt.Sprintf(`{"providerId":%q,"date":%q,"time":"10:00","durationMinutes":120,
		"services":["cleaning"],"address":{"line":"1 Main St","city":"Springfield"}}`, a.provider.ID, monday)
}

func (a *api) webhook(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func succeeded(eventID, intentID string, amount int64) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":"payment_intent.succeeded",
		"data":{"object":{"id":%q,"object":"payment_intent","amount":%d,"status":"succeeded"}}}`,
		eventID, intentID, amount)
}

func TestCreateBooking_Created(t *testing.T) {
	a := newAPI(t)
	tok := a.token(t, model.PartyCustomer, a.customer.ID)

	rec := a.do(t, http.MethodPost, "/bookings", tok, a.bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := rec.Body.String()
	assert.Equal(t, "PENDING", gjson.Get(body, "booking.status").String())
	assert.Equal(t, "10:00", gjson.Get(body, "booking.time").String())
	assert.Equal(t, "12:00", gjson.Get(body, "booking.endTime").String())
	assert.Equal(t, int64(5000), gjson.Get(body, "booking.pricing.subtotal").Int())
	assert.Equal(t, int64(500), gjson.Get(body, "booking.pricing.fee").Int())
	assert.Equal(t, int64(5500), gjson.Get(body, "booking.pricing.total").Int())
	assert.Equal(t, int64(5500), gjson.Get(body, "payment.amount").Int())
	assert.NotEmpty(t, gjson.Get(body, "payment.clientSecret").String())
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	a := newAPI(t)
	tok := a.token(t, model.PartyCustomer, a.customer.ID)

	const n = 2
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = a.do(t, http.MethodPost, "/bookings", tok, a.bookingBody()).Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
}

func TestCreateBooking_ValidationDetails(t *testing.T) {
	a := newAPI(t)
	tok := a.token(t, model.PartyCustomer, a.customer.ID)

	rec := a.do(t, http.MethodPost, "/bookings", tok, `{"date":"12-01-2026","time":"25:00","durationMinutes":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "required", gjson.Get(body, "details.providerId").String())
	assert.Equal(t, "datetime", gjson.Get(body, "details.date").String())
	assert.Equal(t, "clock", gjson.Get(body, "details.time").String())
	assert.Equal(t, "min", gjson.Get(body, "details.durationMinutes").String())
}

func TestCreateBooking_ProviderForbidden(t *testing.T) {
	a := newAPI(t)
	tok := a.token(t, model.PartyProvider, a.provider.ID)

	rec := a.do(t, http.MethodPost, "/bookings", tok, a.bookingBody())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuth_MissingToken(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, http.MethodGet, "/bookings", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, gjson.Get(rec.Body.String(), "error").String())
}

func TestGetBooking_NonPartyForbidden(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, http.MethodPost, "/bookings", a.token(t, model.PartyCustomer, a.customer.ID), a.bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := gjson.Get(rec.Body.String(), "booking.id").String()

	stranger := a.token(t, model.PartyCustomer, uuid.New())
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/bookings/"+id, stranger, "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/bookings/not-a-uuid", stranger, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/bookings/"+uuid.NewString(), stranger, "").Code)
}

func TestWebhook_SucceededAcceptsBooking(t *testing.T) {
	a := newAPI(t)
	customer := a.token(t, model.PartyCustomer, a.customer.ID)
	rec := a.do(t, http.MethodPost, "/bookings", customer, a.bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := gjson.Get(rec.Body.String(), "booking.id").String()
	intent := gjson.Get(rec.Body.String(), "payment.intentId").String()

	hook := a.webhook(t, succeeded("evt_ok", intent, 5500))
	require.Equal(t, http.StatusOK, hook.Code, hook.Body.String())
	// повтор того же события не меняет результат
	require.Equal(t, http.StatusOK, a.webhook(t, succeeded("evt_ok", intent, 5500)).Code)

	got := a.do(t, http.MethodGet, "/bookings/"+id, customer, "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "ACCEPTED", gjson.Get(got.Body.String(), "booking.status").String())
	assert.Equal(t, "SUCCEEDED", gjson.Get(got.Body.String(), "booking.paymentStatus").String())
	assert.Equal(t, "SUCCEEDED", gjson.Get(got.Body.String(), "payment.status").String())

	history := a.do(t, http.MethodGet, "/bookings/"+id+"/history", customer, "")
	require.Equal(t, http.StatusOK, history.Code)
	assert.Len(t, gjson.Get(history.Body.String(), "events").Array(), 2)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	a := newAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment",
		bytes.NewBufferString(succeeded("evt_bad", "pi_x", 100)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_UnknownIntentAcknowledged(t *testing.T) {
	a := newAPI(t)

	rec := a.webhook(t, succeeded("evt_unknown", "pi_missing", 100))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "received").Bool())
}

func TestWebhook_IgnoredType(t *testing.T) {
	a := newAPI(t)

	rec := a.webhook(t, `{"id":"evt_c","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProviderFlow_OverHTTP(t *testing.T) {
	a := newAPI(t)
	customer := a.token(t, model.PartyCustomer, a.customer.ID)
	provider := a.token(t, model.PartyProvider, a.provider.ID)

	rec := a.do(t, http.MethodPost, "/bookings", customer, a.bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := gjson.Get(rec.Body.String(), "booking.id").String()

	assert.Equal(t, http.StatusBadRequest,
		a.do(t, http.MethodPatch, "/bookings/"+id+"/status", provider, `{"status":"CANCELLED"}`).Code)
	assert.Equal(t, http.StatusForbidden,
		a.do(t, http.MethodPatch, "/bookings/"+id+"/status", customer, `{"status":"ACCEPTED"}`).Code)

	accepted := a.do(t, http.MethodPatch, "/bookings/"+id+"/status", provider, `{"status":"ACCEPTED"}`)
	require.Equal(t, http.StatusOK, accepted.Code, accepted.Body.String())
	assert.Equal(t, "ACCEPTED", gjson.Get(accepted.Body.String(), "booking.status").String())

	again := a.do(t, http.MethodPatch, "/bookings/"+id+"/status", provider, `{"status":"ACCEPTED"}`)
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, "ACCEPTED", gjson.Get(again.Body.String(), "details.from").String())

	msg := a.do(t, http.MethodPost, "/bookings/"+id+"/messages", provider, `{"message":"On my way"}`)
	require.Equal(t, http.StatusCreated, msg.Code)
	msgs := a.do(t, http.MethodGet, "/bookings/"+id+"/messages", customer, "")
	require.Equal(t, http.StatusOK, msgs.Code)
	assert.Equal(t, "On my way", gjson.Get(msgs.Body.String(), "messages.0.message").String())

	completed := a.do(t, http.MethodPatch, "/bookings/"+id+"/status", provider, `{"status":"COMPLETED"}`)
	require.Equal(t, http.StatusOK, completed.Code)

	review := a.do(t, http.MethodPost, "/bookings/"+id+"/review", customer, `{"rating":5,"comment":"great"}`)
	require.Equal(t, http.StatusCreated, review.Code, review.Body.String())
	assert.Equal(t, http.StatusConflict,
		a.do(t, http.MethodPost, "/bookings/"+id+"/review", customer, `{"rating":4}`).Code)

	reviews := a.do(t, http.MethodGet, "/providers/"+a.provider.ID.String()+"/reviews", customer, "")
	require.Equal(t, http.StatusOK, reviews.Code)
	assert.Equal(t, int64(1), gjson.Get(reviews.Body.String(), "pagination.total").Int())

	list := a.do(t, http.MethodGet, "/bookings?status=COMPLETED", provider, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Equal(t, int64(1), gjson.Get(list.Body.String(), "pagination.total").Int())
}

func TestCancelBooking_FreesSlot(t *testing.T) {
	a := newAPI(t)
	customer := a.token(t, model.PartyCustomer, a.customer.ID)

	rec := a.do(t, http.MethodPost, "/bookings", customer, a.bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := gjson.Get(rec.Body.String(), "booking.id").String()

	cancelled := a.do(t, http.MethodPost, "/bookings/"+id+"/cancel", customer, `{"reason":"plans changed"}`)
	require.Equal(t, http.StatusOK, cancelled.Code, cancelled.Body.String())
	assert.Equal(t, "CANCELLED", gjson.Get(cancelled.Body.String(), "booking.status").String())
	assert.Equal(t, "plans changed", gjson.Get(cancelled.Body.String(), "booking.cancelReason").String())

	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/bookings", customer, a.bookingBody()).Code)
}

func TestCancelBooking_ProviderRefundsInFull(t *testing.T) {
	a := newAPI(t)
	customer := a.token(t, model.PartyCustomer, a.customer.ID)
	provider := a.token(t, model.PartyProvider, a.provider.ID)

	rec := a.do(t, http.MethodPost, "/bookings", customer, a.bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := gjson.Get(rec.Body.String(), "booking.id").String()
	intent := gjson.Get(rec.Body.String(), "payment.intentId").String()
	require.Equal(t, http.StatusOK, a.webhook(t, succeeded("evt_paid", intent, 5500)).Code)

	// сумма возврата от клиента не принимается
	cancelled := a.do(t, http.MethodPost, "/bookings/"+id+"/cancel", provider, `{"reason":"no show","refundAmount":1}`)
	require.Equal(t, http.StatusOK, cancelled.Code, cancelled.Body.String())
	assert.Equal(t, "CANCELLED", gjson.Get(cancelled.Body.String(), "booking.status").String())
	assert.Equal(t, "REFUNDED", gjson.Get(cancelled.Body.String(), "booking.paymentStatus").String())

	require.Equal(t, 1, a.gateway.RefundCount())
	assert.Nil(t, a.gateway.Refunds[0].Amount)

	var pay model.Payment
	require.NoError(t, a.db.First(&pay, "intent_id = ?", intent).Error)
	assert.Equal(t, model.PaymentStatusRefunded, pay.Status)
	assert.Equal(t, pay.Amount, pay.RefundAmount)
}

func TestWebhook_RefundGatewayErrorIsBadGateway(t *testing.T) {
	a := newAPI(t)
	customer := a.token(t, model.PartyCustomer, a.customer.ID)

	rec := a.do(t, http.MethodPost, "/bookings", customer, a.bookingBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	id := gjson.Get(rec.Body.String(), "booking.id").String()
	intent := gjson.Get(rec.Body.String(), "payment.intentId").String()
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/bookings/"+id+"/cancel", customer, `{}`).Code)

	// оплата прошла уже после отмены, а шлюз не принимает возврат
	a.gateway.SetRefundErr(errors.New("stripe unavailable"))
	hook := a.webhook(t, succeeded("evt_late", intent, 5500))
	assert.Equal(t, http.StatusBadGateway, hook.Code, hook.Body.String())

	// повтор того же события доводит возврат
	a.gateway.SetRefundErr(nil)
	require.Equal(t, http.StatusOK, a.webhook(t, succeeded("evt_late", intent, 5500)).Code)
	assert.Equal(t, 1, a.gateway.RefundCount())

	got := a.do(t, http.MethodGet, "/bookings/"+id, customer, "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "CANCELLED", gjson.Get(got.Body.String(), "booking.status").String())
	assert.Equal(t, "REFUNDED", gjson.Get(got.Body.String(), "payment.status").String())
}

func TestSearchProviders(t *testing.T) {
	a := newAPI(t)
	tok := a.token(t, model.PartyCustomer, a.customer.ID)

	rec := a.do(t, http.MethodGet, "/providers/search?date="+monday+"&time=10:00&duration=60&service=cleaning", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "pagination.total").Int())
	assert.Equal(t, a.provider.ID.String(), gjson.Get(body, "providers.0.id").String())
	assert.Equal(t, int64(2750), gjson.Get(body, "providers.0.quote.total").Int())

	rec = a.do(t, http.MethodGet, "/providers/search?date="+monday+"&time=18:00&duration=60", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), gjson.Get(rec.Body.String(), "pagination.total").Int())

	rec = a.do(t, http.MethodGet, "/providers/search?date="+monday, tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifications_OverHTTP(t *testing.T) {
	a := newAPI(t)
	customer := a.token(t, model.PartyCustomer, a.customer.ID)
	provider := a.token(t, model.PartyProvider, a.provider.ID)

	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/bookings", customer, a.bookingBody()).Code)

	list := a.do(t, http.MethodGet, "/notifications?unread=true", provider, "")
	require.Equal(t, http.StatusOK, list.Code)
	body := list.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "unread").Int())
	assert.Equal(t, "BOOKING_REQUEST", gjson.Get(body, "notifications.0.type").String())
	nid := gjson.Get(body, "notifications.0.id").String()

	// чужое уведомление не видно
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPatch, "/notifications/"+nid+"/read", customer, "").Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, "/notifications/"+nid+"/read", provider, "").Code)

	all := a.do(t, http.MethodPatch, "/notifications/read-all", provider, "")
	require.Equal(t, http.StatusOK, all.Code)
	assert.Equal(t, int64(0), gjson.Get(all.Body.String(), "updated").Int())
}

func TestWebsocket_ForeignRoomForbidden(t *testing.T) {
	a := newAPI(t)
	tok := a.token(t, model.PartyCustomer, a.customer.ID)

	rec := a.do(t, http.MethodGet, "/ws?room=provider:"+a.provider.ID.String(), tok, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodGet, "/ws?room=booking:"+uuid.NewString(), tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(newRateLimiter(60, 2, zap.NewNop()).middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
