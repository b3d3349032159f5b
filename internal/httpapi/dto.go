package httpapi

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/service"
)

// clockValidator проверяет строку "HH:MM".
var clockValidator validator.Func = func(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	m, err := calendar.ParseClock(s)
	return err == nil && m < calendar.MinutesPerDay
}

type addressRequest struct {
	Line       string `json:"line" binding:"max=255"`
	City       string `json:"city" binding:"max=128"`
	PostalCode string `json:"postalCode" binding:"max=32"`
}

type createBookingRequest struct {
	ProviderID      string         `json:"providerId" binding:"required,uuid"`
	Date            string         `json:"date" binding:"required,datetime=2006-01-02"`
	Time            string         `json:"time" binding:"required,clock"`
	DurationMinutes int            `json:"durationMinutes" binding:"required,min=15,max=720"`
	Services        []string       `json:"services" binding:"required,min=1,max=10,dive,required,max=64"`
	Address         addressRequest `json:"address"`
	Notes           string         `json:"notes" binding:"max=1000"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=ACCEPTED REJECTED COMPLETED"`
}

type sendMessageRequest struct {
	Message string `json:"message" binding:"required,max=2000"`
}

type createReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

type listQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

type listBookingsQuery struct {
	listQuery
	Status string `form:"status" binding:"omitempty,oneof=PENDING ACCEPTED REJECTED COMPLETED CANCELLED"`
}

type listNotificationsQuery struct {
	listQuery
	Unread bool `form:"unread"`
}

type searchQuery struct {
	listQuery
	Date      string  `form:"date" binding:"required,datetime=2006-01-02"`
	Time      string  `form:"time" binding:"omitempty,clock"`
	Duration  int     `form:"duration" binding:"required,min=15,max=720"`
	Service   string  `form:"service" binding:"max=64"`
	City      string  `form:"city" binding:"max=128"`
	MinRating float64 `form:"minRating" binding:"omitempty,min=0,max=5"`
	MaxRate   int64   `form:"maxRate" binding:"omitempty,min=0"`
}

type pricingResponse struct {
	HourlyRate int64  `json:"hourlyRate"`
	Subtotal   int64  `json:"subtotal"`
	Fee        int64  `json:"fee"`
	Total      int64  `json:"total"`
	Currency   string `json:"currency,omitempty"`
}

type bookingResponse struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customerId"`
	ProviderID      string          `json:"providerId"`
	Date            string          `json:"date"`
	Time            string          `json:"time"`
	EndTime         string          `json:"endTime"`
	DurationMinutes int             `json:"durationMinutes"`
	Services        []string        `json:"services"`
	Address         addressRequest  `json:"address"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus"`
	Pricing         pricingResponse `json:"pricing"`
	Notes           string          `json:"notes,omitempty"`
	CancelReason    string          `json:"cancelReason,omitempty"`
	CancelledBy     string          `json:"cancelledBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	AcceptedAt      *time.Time      `json:"acceptedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
}

func toBookingResponse(b *model.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID.String(),
		CustomerID:      b.CustomerID.String(),
		ProviderID:      b.ProviderID.String(),
		Date:            b.ScheduledDate,
		Time:            calendar.FormatClock(b.StartMinute),
		EndTime:         calendar.FormatClock(b.EndMinute()),
		DurationMinutes: b.DurationMinutes,
		Services:        []string(b.Services),
		Address:         addressRequest{Line: b.AddressLine, City: b.City, PostalCode: b.PostalCode},
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		Pricing: pricingResponse{
			HourlyRate: b.HourlyRate,
			Subtotal:   b.Subtotal,
			Fee:        b.Fee,
			Total:      b.Total,
			Currency:   b.Currency,
		},
		Notes:        b.Notes,
		CancelReason: b.CancelReason,
		CancelledBy:  b.CancelledBy,
		CreatedAt:    b.CreatedAt,
		AcceptedAt:   b.AcceptedAt,
		CompletedAt:  b.CompletedAt,
		CancelledAt:  b.CancelledAt,
	}
}

func toBookingResponses(items []model.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(items))
	for i := range items {
		out = append(out, toBookingResponse(&items[i]))
	}
	return out
}

type paymentResponse struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type messageResponse struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"bookingId"`
	SenderType string    `json:"senderType"`
	SenderID   string    `json:"senderId"`
	Content    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:         m.ID.String(),
		BookingID:  m.BookingID.String(),
		SenderType: string(m.SenderType),
		SenderID:   m.SenderID.String(),
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

type reviewResponse struct {
	ID         string    `json:"id"`
	BookingID  string    `json:"bookingId"`
	ProviderID string    `json:"providerId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toReviewResponse(r *model.Review) reviewResponse {
	return reviewResponse{
		ID:         r.ID.String(),
		BookingID:  r.BookingID.String(),
		ProviderID: r.ProviderID.String(),
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

type notificationResponse struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func toNotificationResponse(n *model.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID.String(),
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Payload:   n.Payload,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type providerMatchResponse struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"displayName"`
	City        string          `json:"city,omitempty"`
	Services    []string        `json:"services"`
	Rating      float64         `json:"rating"`
	Reviews     int64           `json:"reviews"`
	Verified    bool            `json:"verified"`
	Quote       pricingResponse `json:"quote"`
	FreeSlots   []string        `json:"freeSlots"`
}

func toProviderMatch(m service.ProviderMatch, currency string) providerMatchResponse {
	slots := make([]string, 0, len(m.FreeSlots))
	for _, s := range m.FreeSlots {
		slots = append(slots, calendar.FormatClock(s.Start))
	}
	if m.Provider.Currency != "" {
		currency = m.Provider.Currency
	}
	return providerMatchResponse{
		ID:          m.Provider.ID.String(),
		DisplayName: m.Provider.DisplayName,
		City:        m.Provider.City,
		Services:    []string(m.Provider.Services),
		Rating:      m.Rating,
		Reviews:     m.Provider.RatingCount,
		Verified:    m.Provider.Verified,
		Quote: pricingResponse{
			HourlyRate: m.Price.HourlyRate,
			Subtotal:   m.Price.Subtotal,
			Fee:        m.Price.Fee,
			Total:      m.Price.Total,
			Currency:   currency,
		},
		FreeSlots: slots,
	}
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}
