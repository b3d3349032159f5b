package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
)

// DomainEvent описывает событие жизненного цикла брони для внешних потребителей.
type DomainEvent struct {
	Type      string         `json:"type"`
	BookingID string         `json:"bookingId"`
	Status    string         `json:"status,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

type Sink interface {
	Emit(ctx context.Context, ev DomainEvent) error
}

// NopSink используется, когда брокер не настроен.
type NopSink struct{}

func (NopSink) Emit(context.Context, DomainEvent) error { return nil }

// KafkaSink пишет события в топик, с ключом по id брони, чтобы сохранить порядок в пределах брони.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	log      *zap.Logger
}

func NewKafkaSink(brokers, topic string, log *zap.Logger) (*KafkaSink, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "booking-core",
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	s := &KafkaSink{producer: p, topic: topic, log: log}
	go s.deliveryReports()
	return s, nil
}

func (s *KafkaSink) Emit(_ context.Context, ev DomainEvent) error {
	value, err := encode(ev)
	if err != nil {
		return err
	}
	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.BookingID),
		Value:          value,
	}, nil)
}

func (s *KafkaSink) deliveryReports() {
	for e := range s.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			s.log.Warn("kafka delivery failed",
				zap.String("key", string(m.Key)),
				zap.Error(m.TopicPartition.Error))
		}
	}
}

// Close дожидается отправки буфера и закрывает продюсер.
func (s *KafkaSink) Close() {
	s.producer.Flush(5000)
	s.producer.Close()
}

func encode(ev DomainEvent) ([]byte, error) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal domain event: %w", err)
	}
	return data, nil
}
