package payment

import (
	"context"
	"errors"
)

// EventKind описывает исход платежа, о котором сообщает шлюз.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventRefunded  EventKind = "refunded"
)

// Event — нормализованное событие шлюза.
type Event struct {
	// ID события у шлюза; пустой для событий, полученных опросом.
	ID             string
	Kind           EventKind
	IntentID       string
	Amount         int64
	AmountRefunded int64
	FailureReason  string
}

type Intent struct {
	ID           string
	ClientSecret string
}

// IntentStatus описывает состояние интента при опросе шлюза.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
)

type RefundRecord struct {
	ID     string
	Amount int64
	Status string
}

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrIgnoredEvent     = errors.New("event type is not handled")
)

// Gateway описывает порт платёжного шлюза.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (IntentStatus, error)
	CancelIntent(ctx context.Context, intentID string) error
	// Refund возвращает amount, либо всю сумму при amount == nil.
	Refund(ctx context.Context, intentID string, amount *int64, idempotencyKey string) (RefundRecord, error)
}

// EventParser проверяет подпись и разбирает тело вебхука.
type EventParser interface {
	Parse(payload []byte, signature string) (Event, error)
}
