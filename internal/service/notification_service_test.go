package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// slowFirstPublisher задерживает первое сообщение, чтобы параллельная отправка его обогнала.
type slowFirstPublisher struct {
	recordingPublisher
	started atomic.Bool
}

func (p *slowFirstPublisher) Publish(ctx context.Context, room, event string, payload any) error {
	if p.started.CompareAndSwap(false, true) {
		time.Sleep(50 * time.Millisecond)
	}
	return p.recordingPublisher.Publish(ctx, room, event, payload)
}

func (p *slowFirstPublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.event)
	}
	return out
}

func TestDispatch_KeepsOutboxOrder(t *testing.T) {
	pub := &slowFirstPublisher{}
	notifier := NewNotificationService(nil, pub, nil, zap.NewNop(), time.Second)

	var out Outbox
	out.Push("booking:1", "booking.accepted", nil)
	out.Push("booking:1", "booking.cancelled", nil)
	out.Push("customer:1", "notification", nil)
	notifier.Dispatch(&out)
	assert.Empty(t, out.Pushes())

	require.Eventually(t, func() bool {
		return len(pub.events()) == 3
	}, testWait, testTick)
	assert.Equal(t, []string{"booking.accepted", "booking.cancelled", "notification"}, pub.events())
}
