package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
)

// StripeGateway реализует Gateway поверх stripe-go.
type StripeGateway struct {
	sc *stripe.Client
}

func NewStripeGateway(secretKey string) *StripeGateway {
	return &StripeGateway{sc: stripe.NewClient(secretKey)}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if bookingID, ok := metadata["booking_id"]; ok {
		params.SetIdempotencyKey("intent-" + bookingID)
	}

	pi, err := g.sc.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (IntentStatus, error) {
	pi, err := g.sc.V1PaymentIntents.Retrieve(ctx, intentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return "", fmt.Errorf("stripe retrieve payment intent %s: %w", intentID, err)
	}
	return intentStatusFromStripe(pi.Status), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	if _, err := g.sc.V1PaymentIntents.Cancel(ctx, intentID, &stripe.PaymentIntentCancelParams{}); err != nil {
		return fmt.Errorf("stripe cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentID string, amount *int64, idempotencyKey string) (RefundRecord, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(intentID),
	}
	if amount != nil {
		params.Amount = stripe.Int64(*amount)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	r, err := g.sc.V1Refunds.Create(ctx, params)
	if err != nil {
		return RefundRecord{}, fmt.Errorf("stripe refund %s: %w", intentID, err)
	}
	return RefundRecord{ID: r.ID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func intentStatusFromStripe(s stripe.PaymentIntentStatus) IntentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentFailed
	default:
		// requires_payment_method после неудачной попытки тоже остаётся открытым
		return IntentPending
	}
}
