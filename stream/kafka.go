package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/api/config"
	"storefront/api/models"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher streams recorded analytics events. Messages are keyed by
// session id so one session's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 100 * time.Millisecond,
			Async:        true,
		},
	}
}

type eventMessage struct {
	EventID   string           `json:"eventId"`
	EventType models.EventType `json:"eventType"`
	SessionID string           `json:"sessionId"`
	OrderID   string           `json:"orderId,omitempty"`
	Path      string           `json:"path,omitempty"`
	Title     string           `json:"title,omitempty"`
	Revenue   float64          `json:"revenue,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func encodeEvent(ev models.ReportEvent) (kafka.Message, error) {
	data, err := json.Marshal(eventMessage{
		EventID:   ev.EventID,
		EventType: ev.EventType,
		SessionID: ev.SessionID,
		OrderID:   ev.OrderID,
		Path:      ev.Path,
		Title:     ev.Title,
		Revenue:   ev.Revenue,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s: %w", ev.EventID, err)
	}
	return kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.ReportEvent) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
