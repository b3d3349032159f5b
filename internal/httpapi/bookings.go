package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/service"
)

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := auth.FromContext(c)
	if !ok {
		_ = c.Error(apperror.Unauthorized("authentication required"))
	}
	return p, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(apperror.Validation("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) createBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if p.Type != model.PartyCustomer {
		_ = c.Error(apperror.Forbidden("only customers can create bookings"))
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	start, err := calendar.ParseClock(req.Time)
	if err != nil {
		_ = c.Error(apperror.Validation("invalid time"))
		return
	}

	res, err := h.Bookings.Create(c.Request.Context(), service.CreateBookingInput{
		CustomerID:      p.ID,
		ProviderID:      uuid.MustParse(req.ProviderID),
		Date:            req.Date,
		StartMinute:     start,
		DurationMinutes: req.DurationMinutes,
		Services:        req.Services,
		Address: service.Address{
			Line:       req.Address.Line,
			City:       req.Address.City,
			PostalCode: req.Address.PostalCode,
		},
		Notes: req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"booking": toBookingResponse(res.Booking),
		"payment": paymentResponse{
			IntentID:     res.Payment.IntentID,
			ClientSecret: res.ClientSecret,
			Amount:       res.Payment.Amount,
			Currency:     res.Payment.Currency,
			Status:       string(res.Payment.Status),
		},
	})
}

func (h *Handler) listBookings(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var q listBookingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	page, err := h.Bookings.List(c.Request.Context(), p, model.BookingStatus(q.Status), q.Page, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookings":   toBookingResponses(page.Items),
		"pagination": pagination{Page: page.Page, Limit: page.Limit, Total: page.Total},
	})
}

func (h *Handler) getBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	b, err := h.Bookings.Get(c.Request.Context(), p, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	resp := gin.H{"booking": toBookingResponse(b)}
	if pay, err := h.Payments.GetByBooking(c.Request.Context(), id); err == nil {
		resp["payment"] = paymentResponse{
			IntentID: pay.IntentID,
			Amount:   pay.Amount,
			Currency: pay.Currency,
			Status:   string(pay.Status),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) bookingHistory(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	evs, err := h.Bookings.History(c.Request.Context(), p, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]gin.H, 0, len(evs))
	for _, e := range evs {
		out = append(out, gin.H{
			"type":      e.EventType,
			"actor":     e.ActorType,
			"details":   e.Details,
			"createdAt": e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (h *Handler) cancelBooking(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	b, err := h.Bookings.Cancel(c.Request.Context(), p, id, service.CancelInput{Reason: req.Reason})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": toBookingResponse(b)})
}

func (h *Handler) updateBookingStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	b, err := h.Bookings.UpdateStatus(c.Request.Context(), p, id, model.BookingStatus(req.Status))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": toBookingResponse(b)})
}
