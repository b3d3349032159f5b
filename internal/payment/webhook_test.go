package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header, signed.Payload
}

func TestStripeWebhook_Succeeded(t *testing.T) {
	header, body := sign(t, `{"id":"evt_1","object":"event","type":"payment_intent.succeeded",
		"data":{"object":{"id":"pi_1","object":"payment_intent","amount":5500,"status":"succeeded"}}}`)

	ev, err := NewStripeWebhook(testSecret).Parse(body, header)
	require.NoError(t, err)
	assert.Equal(t, Event{ID: "evt_1", Kind: EventSucceeded, IntentID: "pi_1", Amount: 5500}, ev)
}

func TestStripeWebhook_Failed(t *testing.T) {
	header, body := sign(t, `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed",
		"data":{"object":{"id":"pi_2","object":"payment_intent","amount":5500,
		"last_payment_error":{"message":"Your card was declined."}}}}`)

	ev, err := NewStripeWebhook(testSecret).Parse(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, "pi_2", ev.IntentID)
	assert.Equal(t, "Your card was declined.", ev.FailureReason)
}

func TestStripeWebhook_ChargeRefunded(t *testing.T) {
	header, body := sign(t, `{"id":"evt_3","object":"event","type":"charge.refunded",
		"data":{"object":{"id":"ch_1","object":"charge","amount":5500,"amount_refunded":2000,"payment_intent":"pi_3"}}}`)

	ev, err := NewStripeWebhook(testSecret).Parse(body, header)
	require.NoError(t, err)
	assert.Equal(t, EventRefunded, ev.Kind)
	assert.Equal(t, "pi_3", ev.IntentID)
	assert.EqualValues(t, 5500, ev.Amount)
	assert.EqualValues(t, 2000, ev.AmountRefunded)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	_, body := sign(t, `{"id":"evt_4","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`)

	_, err := NewStripeWebhook(testSecret).Parse(body, "t=1,v1=deadbeef")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestStripeWebhook_IgnoredType(t *testing.T) {
	header, body := sign(t, `{"id":"evt_5","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	ev, err := NewStripeWebhook(testSecret).Parse(body, header)
	assert.True(t, errors.Is(err, ErrIgnoredEvent))
	assert.Equal(t, "evt_5", ev.ID)
}

func TestIntentStatusFromStripe(t *testing.T) {
	assert.Equal(t, IntentSucceeded, intentStatusFromStripe(stripe.PaymentIntentStatusSucceeded))
	assert.Equal(t, IntentFailed, intentStatusFromStripe(stripe.PaymentIntentStatusCanceled))
	assert.Equal(t, IntentPending, intentStatusFromStripe(stripe.PaymentIntentStatusProcessing))
	assert.Equal(t, IntentPending, intentStatusFromStripe(stripe.PaymentIntentStatusRequiresPaymentMethod))
}
