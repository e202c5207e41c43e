package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicremind/libs/kafkax"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaPublisherMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &captureWriter{}
	p := &KafkaPublisher{writer: w, writeTimeout: time.Second, newID: func() string { return "evt-1" }}

	sentAt := time.Date(2026, 1, 20, 15, 0, 0, 0, time.UTC)
	ev, err := ReminderSent("clinic-a", model.Appointment{ID: "a1", PatientID: "p1", Date: "2026-01-20", Time: "10:30"}, "wamid.1", sentAt)
	if err != nil {
		t.Fatalf("ReminderSent failed: %v", err)
	}
	if err := p.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != TypeReminderSent || string(msg.Key) != "a1" {
		t.Fatalf("unexpected topic/key %q %q", msg.Topic, msg.Key)
	}
	if got := kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID); got != "evt-1" {
		t.Fatalf("unexpected event_id header %q", got)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got == "" {
		t.Fatalf("expected traceparent header")
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["provider_message_id"] != "wamid.1" || payload["sent_at"] != "2026-01-20T15:00:00Z" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestStatusChanged(t *testing.T) {
	at := time.Date(2026, 1, 20, 15, 0, 0, 0, time.UTC)
	ev, ok, err := StatusChanged("clinic-a", model.Appointment{
		ID:           "a1",
		Status:       model.StatusCancelled,
		CancelledAt:  &at,
		CancelledVia: model.ChannelWhatsApp,
	})
	if err != nil || !ok {
		t.Fatalf("expected event, got ok=%v err=%v", ok, err)
	}
	if ev.EventType != TypeAppointmentCancelled {
		t.Fatalf("unexpected event type %q", ev.EventType)
	}

	if _, ok, _ := StatusChanged("clinic-a", model.Appointment{ID: "a2", Status: model.StatusScheduled}); ok {
		t.Fatalf("expected no event for scheduled appointment")
	}
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, writeTimeout: time.Second, newID: func() string { return "evt" }}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	Emit(context.Background(), p, logger, Event{AggregateID: "a1", EventType: TypeReminderFailed}, nil)
	if len(w.msgs) != 1 {
		t.Fatalf("expected publish attempt")
	}
	Emit(context.Background(), nil, logger, Event{}, nil)
}
