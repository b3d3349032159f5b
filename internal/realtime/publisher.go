package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Имена событий realtime-канала.
const (
	EventNotification  = "notification:new"
	EventBookingStatus = "booking:status"
	EventChatMessage   = "chat:message"
)

// Message описывает конверт, который получает websocket-клиент.
type Message struct {
	Room    string `json:"room"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Publisher отправляет событие в комнату. Доставка at-most-once.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// BookingRoom возвращает комнату чата и статусов конкретной брони.
func BookingRoom(bookingID string) string {
	return "booking:" + bookingID
}

// RedisPublisher публикует в канал prefix+room; Hub каждого инстанса ретранслирует его клиентам.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, room, event string, payload any) error {
	data, err := json.Marshal(Message{Room: room, Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal realtime message: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.prefix+room, string(data)).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", room, err)
	}
	return nil
}

// NopPublisher молча отбрасывает события.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
