// Package events publishes API-key lifecycle events for downstream consumers
// such as audit pipelines and gateway caches.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type Type string

const (
	KeyCreated     Type = "api_key.created"
	KeyDeactivated Type = "api_key.deactivated"
	KeyRemoved     Type = "api_key.removed"
	KeyRotated     Type = "api_key.rotated"
)

// KeyEvent never carries secret material.
type KeyEvent struct {
	Type        Type      `json:"type"`
	TenantID    int64     `json:"tenant_id"`
	KID         string    `json:"kid"`
	PreviousKID string    `json:"previous_kid,omitempty"`
	Environment string    `json:"environment,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher delivers key events. Callers treat delivery as best-effort.
type Publisher interface {
	Publish(ctx context.Context, ev KeyEvent) error
}

// MessageWriter is the part of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a topic keyed by tenant id, so one
// tenant's events stay ordered within a partition.
type KafkaPublisher struct {
	w MessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev KeyEvent) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Message encodes ev as a Kafka message.
func Message(ev KeyEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.TenantID, 10)),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}

// LogPublisher writes events to a structured logger. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev KeyEvent) error {
	p.logger.InfoContext(ctx, "api key event",
		"type", ev.Type,
		"tenant_id", ev.TenantID,
		"kid", ev.KID,
		"previous_kid", ev.PreviousKID,
	)
	return nil
}
