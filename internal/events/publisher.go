package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/segmentio/kafka-go"
)

// Publisher публикует события заказа после коммита транзакции
type Publisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
	Close() error
}

// MessageWriter — часть kafka.Writer, которая нужна публикатору
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w   MessageWriter
	log *slog.Logger
}

// NewKafkaPublisher пишет события в topic; ключ сообщения — id заказа,
// поэтому события одного заказа попадают в одну партицию и не перемешиваются.
func NewKafkaPublisher(log *slog.Logger, brokers []string, topic string) *KafkaPublisher {
	return NewPublisherWithWriter(log, &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 5 * time.Second,
	})
}

func NewPublisherWithWriter(log *slog.Logger, w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	const op = "events.KafkaPublisher.Publish"

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal event: %w", op, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(event.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: failed to write message: %w", op, err)
	}

	p.log.Debug("event published",
		slog.String("op", op),
		slog.String("type", event.Type),
		slog.String("orderID", event.OrderID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher используется, когда брокеры не настроены
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.OrderEvent) error { return nil }
func (NopPublisher) Close() error                                     { return nil }
