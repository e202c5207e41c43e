package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicremind/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards events. Used when no Kafka brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event synchronously to the topic named after its type.
type KafkaPublisher struct {
	writer       messageWriter
	writeTimeout time.Duration
	newID        func() string
}

func NewKafkaPublisher(brokers []string, writeTimeout time.Duration) *KafkaPublisher {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &KafkaPublisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.Hash{},
		}),
		writeTimeout: writeTimeout,
		newID:        uuid.NewString,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg := buildMessage(ctx, ev, p.newID())
	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(ctx context.Context, ev Event, eventID string) kafka.Message {
	msg := kafka.Message{
		Topic:   ev.EventType,
		Key:     []byte(ev.AggregateID),
		Value:   ev.Payload,
		Headers: kafkax.MetaHeaders(eventID, ev.EventType),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return msg
}

// Emit publishes ev and logs failures. Event delivery never changes the outcome of the
// operation that produced it.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, ev Event, buildErr error) {
	if p == nil {
		return
	}
	if buildErr != nil {
		logger.WarnContext(ctx, "event build failed", "event_type", ev.EventType, "err", buildErr)
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			"event_type", ev.EventType,
			"aggregate_id", ev.AggregateID,
			"err", err,
		)
	}
}
