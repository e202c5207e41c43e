package events

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

// Event types. The Kafka topic name equals the event type.
const (
	TypeReminderSent         = "reminder.sent.v1"
	TypeReminderFailed       = "reminder.failed.v1"
	TypeAppointmentConfirmed = "appointment.confirmed.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
)

// Event is a domain event keyed by the appointment it concerns.
type Event struct {
	AggregateID string
	EventType   string
	Payload     []byte
}

func ReminderSent(tenantID string, a model.Appointment, providerMessageID string, sentAt time.Time) (Event, error) {
	return newEvent(a.ID, TypeReminderSent, map[string]any{
		"tenant_id":           tenantID,
		"appointment_id":      a.ID,
		"patient_id":          a.PatientID,
		"date":                a.Date,
		"time":                a.Time,
		"provider_message_id": providerMessageID,
		"sent_at":             sentAt.UTC().Format(time.RFC3339),
	})
}

func ReminderFailed(tenantID string, a model.Appointment, reason string, failedAt time.Time) (Event, error) {
	return newEvent(a.ID, TypeReminderFailed, map[string]any{
		"tenant_id":      tenantID,
		"appointment_id": a.ID,
		"patient_id":     a.PatientID,
		"date":           a.Date,
		"time":           a.Time,
		"reason":         reason,
		"failed_at":      failedAt.UTC().Format(time.RFC3339),
	})
}

// StatusChanged builds the confirmed/cancelled event for an appointment that just left
// the scheduled state. ok is false for any other status.
func StatusChanged(tenantID string, a model.Appointment) (ev Event, ok bool, err error) {
	var (
		eventType string
		at        *time.Time
		via       string
	)
	switch a.Status {
	case model.StatusConfirmed:
		eventType, at, via = TypeAppointmentConfirmed, a.ConfirmedAt, a.ConfirmedVia
	case model.StatusCancelled:
		eventType, at, via = TypeAppointmentCancelled, a.CancelledAt, a.CancelledVia
	default:
		return Event{}, false, nil
	}
	payload := map[string]any{
		"tenant_id":      tenantID,
		"appointment_id": a.ID,
		"patient_id":     a.PatientID,
		"status":         string(a.Status),
		"via":            via,
	}
	if at != nil {
		payload["changed_at"] = at.UTC().Format(time.RFC3339)
	}
	ev, err = newEvent(a.ID, eventType, payload)
	return ev, err == nil, err
}

func newEvent(aggregateID, eventType string, payload map[string]any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateID: aggregateID, EventType: eventType, Payload: raw}, nil
}
