package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/payment"
	"github.com/visiovate/Test-Backend/internal/realtime"
	"github.com/visiovate/Test-Backend/internal/service"
)

const maxWebhookBody = 64 << 10

// paymentWebhook принимает события шлюза. 2xx означает «не присылать повторно».
func (h *Handler) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		_ = c.Error(apperror.Validation("read body"))
		return
	}

	ev, err := h.Webhook.Parse(payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		h.log.Warn("webhook signature rejected", zap.Error(err))
		_ = c.Error(apperror.Validation("invalid signature"))
		return
	case errors.Is(err, payment.ErrIgnoredEvent):
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	case err != nil:
		_ = c.Error(apperror.Validation("malformed event"))
		return
	}

	if err := h.Payments.Apply(c.Request.Context(), ev); err != nil {
		if errors.Is(err, service.ErrPaymentRecordNotFound) {
			h.log.Info("webhook for unknown intent", zap.String("intent", ev.IntentID))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		// любой не-2xx заставит шлюз повторить доставку
		h.log.Error("webhook apply failed", zap.String("event", ev.ID), zap.Error(err))
		status := http.StatusInternalServerError
		if apperror.Is(err, apperror.KindExternal) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "retry later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// websocket подписывает клиента на его личную комнату и на комнаты броней из ?room=.
func (h *Handler) websocket(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	rooms, err := h.allowedRooms(c, p, c.QueryArray("room"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.Hub.Serve(c.Writer, c.Request, rooms); err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
	}
}

func (h *Handler) allowedRooms(c *gin.Context, p auth.Principal, requested []string) ([]string, error) {
	own := p.Type.Room(p.ID)
	rooms := []string{own}
	seen := map[string]bool{own: true}

	for _, room := range requested {
		if seen[room] {
			continue
		}
		raw, ok := strings.CutPrefix(room, "booking:")
		if !ok {
			return nil, apperror.Forbidden("room %q is not available", room)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperror.Validation("invalid room %q", room)
		}
		if _, err := h.Bookings.Get(c.Request.Context(), p, id); err != nil {
			return nil, err
		}
		seen[room] = true
		rooms = append(rooms, realtime.BookingRoom(id.String()))
	}
	return rooms, nil
}
