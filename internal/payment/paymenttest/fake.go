// Package paymenttest provides an in-memory payment.Gateway for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/visiovate/Test-Backend/internal/payment"
)

type RefundCall struct {
	IntentID       string
	Amount         *int64
	IdempotencyKey string
}

// Gateway records calls and returns canned results. Set the *Err fields to
// simulate gateway failures.
type Gateway struct {
	mu sync.Mutex

	CreateErr   error
	RetrieveErr error
	CancelErr   error
	RefundErr   error

	// Statuses answered by RetrieveIntent; missing intents are pending.
	Statuses map[string]payment.IntentStatus

	Amounts   map[string]int64
	Created   []string
	Cancelled []string
	Refunds   []RefundCall

	seq int
}

func New() *Gateway {
	return &Gateway{
		Statuses: make(map[string]payment.IntentStatus),
		Amounts:  make(map[string]int64),
	}
}

func (g *Gateway) CreateIntent(_ context.Context, amount int64, _ string, _ map[string]string) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.CreateErr != nil {
		return payment.Intent{}, g.CreateErr
	}
	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	g.Created = append(g.Created, id)
	g.Amounts[id] = amount
	return payment.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *Gateway) RetrieveIntent(_ context.Context, intentID string) (payment.IntentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.RetrieveErr != nil {
		return "", g.RetrieveErr
	}
	if s, ok := g.Statuses[intentID]; ok {
		return s, nil
	}
	return payment.IntentPending, nil
}

func (g *Gateway) CancelIntent(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.CancelErr != nil {
		return g.CancelErr
	}
	g.Cancelled = append(g.Cancelled, intentID)
	return nil
}

func (g *Gateway) Refund(_ context.Context, intentID string, amount *int64, key string) (payment.RefundRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.RefundErr != nil {
		return payment.RefundRecord{}, g.RefundErr
	}
	g.Refunds = append(g.Refunds, RefundCall{IntentID: intentID, Amount: amount, IdempotencyKey: key})

	refunded := g.Amounts[intentID]
	if amount != nil {
		refunded = *amount
	}
	return payment.RefundRecord{
		ID:     fmt.Sprintf("re_test_%d", len(g.Refunds)),
		Amount: refunded,
		Status: "succeeded",
	}, nil
}

// RefundCount is safe to call while other goroutines use the gateway.
func (g *Gateway) RefundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Refunds)
}

// CancelledIntents returns a copy of the cancelled intent ids.
func (g *Gateway) CancelledIntents() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Cancelled...)
}

// SetStatus sets what RetrieveIntent reports for intentID.
func (g *Gateway) SetStatus(intentID string, s payment.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Statuses[intentID] = s
}

// SetRefundErr is the locked counterpart of assigning RefundErr.
func (g *Gateway) SetRefundErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RefundErr = err
}
