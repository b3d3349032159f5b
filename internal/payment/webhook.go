package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeWebhook проверяет подпись Stripe-Signature и нормализует события.
type StripeWebhook struct {
	secret string
}

func NewStripeWebhook(secret string) *StripeWebhook {
	return &StripeWebhook{secret: secret}
}

func (w *StripeWebhook) Parse(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if ev.Data == nil {
		return Event{}, fmt.Errorf("event %s has no data", ev.ID)
	}

	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("parse payment intent: %w", err)
		}
		out := Event{ID: ev.ID, Kind: EventSucceeded, IntentID: pi.ID, Amount: pi.Amount}
		if ev.Type == "payment_intent.payment_failed" {
			out.Kind = EventFailed
			if pi.LastPaymentError != nil {
				out.FailureReason = pi.LastPaymentError.Msg
			}
		}
		return out, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("parse charge: %w", err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return Event{}, fmt.Errorf("charge %s has no payment intent", ch.ID)
		}
		return Event{
			ID:             ev.ID,
			Kind:           EventRefunded,
			IntentID:       ch.PaymentIntent.ID,
			Amount:         ch.Amount,
			AmountRefunded: ch.AmountRefunded,
		}, nil
	}

	return Event{ID: ev.ID}, fmt.Errorf("%w: %s", ErrIgnoredEvent, ev.Type)
}
