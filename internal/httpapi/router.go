package httpapi

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/health"
	"github.com/visiovate/Test-Backend/internal/payment"
	"github.com/visiovate/Test-Backend/internal/realtime"
	"github.com/visiovate/Test-Backend/internal/service"
)

type Options struct {
	APIPrefix         string
	JWTSecret         string
	CORSOrigins       []string
	RequestsPerMinute int
	Burst             int
}

// Deps содержит сервисы, которые обслуживает REST-граница.
type Deps struct {
	Bookings      *service.BookingService
	Payments      *service.PaymentService
	Notifications *service.NotificationService
	Reviews       *service.ReviewService
	Messages      *service.MessageService
	Search        *service.SearchService
	Webhook       payment.EventParser
	Hub           *realtime.Hub
	Health        *health.Checker
}

type Handler struct {
	Deps
	log *zap.Logger
}

func NewRouter(opts Options, deps Deps, log *zap.Logger) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("clock", clockValidator)
		v.RegisterTagNameFunc(fieldName)
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}

	h := &Handler{Deps: deps, log: log}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log), errorRenderer(log))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET("/health", h.health)

	api := r.Group(opts.APIPrefix)
	if opts.RequestsPerMinute > 0 {
		api.Use(newRateLimiter(opts.RequestsPerMinute, opts.Burst, log).middleware())
	}

	// вебхук подписан шлюзом, токен не нужен
	api.POST("/webhooks/payment", h.paymentWebhook)

	authed := api.Group("")
	authed.Use(auth.Middleware(opts.JWTSecret))
	{
		authed.POST("/bookings", h.createBooking)
		authed.GET("/bookings", h.listBookings)
		authed.GET("/bookings/:id", h.getBooking)
		authed.GET("/bookings/:id/history", h.bookingHistory)
		authed.POST("/bookings/:id/cancel", h.cancelBooking)
		authed.PATCH("/bookings/:id/status", h.updateBookingStatus)
		authed.GET("/bookings/:id/messages", h.listMessages)
		authed.POST("/bookings/:id/messages", h.sendMessage)
		authed.POST("/bookings/:id/review", h.createReview)

		authed.GET("/providers/search", h.searchProviders)
		authed.GET("/providers/:id/reviews", h.providerReviews)

		authed.GET("/notifications", h.listNotifications)
		authed.PATCH("/notifications/read-all", h.markAllNotificationsRead)
		authed.PATCH("/notifications/:id/read", h.markNotificationRead)

		authed.GET("/ws", h.websocket)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.DefaultConfig()
	cc.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	cc.AllowHeaders = append(cc.AllowHeaders, "Authorization", "Stripe-Signature")
	cc.MaxAge = 12 * time.Hour
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}

func (h *Handler) health(c *gin.Context) {
	if h.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := h.Health.Check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fieldName возвращает имя поля в ошибках валидации, как его видит клиент.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}
