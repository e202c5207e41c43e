package store

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

var (
	ErrNotFound            = errors.New("appointment not found")
	ErrReminderAlreadySent = errors.New("reminder already sent")
)

// Mutator edits one appointment in place. Returning an error aborts the update and leaves
// the stored record untouched.
type Mutator func(*model.Appointment) error

// Store is the persistence contract for appointments and the tenant configuration.
type Store interface {
	// LoadConfig returns nil, nil when no configuration has been saved.
	LoadConfig(ctx context.Context) (*model.TenantConfig, error)
	SaveConfig(ctx context.Context, cfg model.TenantConfig) error
	LoadAppointments(ctx context.Context) ([]model.Appointment, error)
	// SaveAppointments upserts the whole collection.
	SaveAppointments(ctx context.Context, appts []model.Appointment) error
	// UpdateAppointment atomically reads, mutates and writes a single record.
	UpdateAppointment(ctx context.Context, id string, fn Mutator) (model.Appointment, error)
}

// MarkReminderSent returns a Mutator enforcing that reminderSent flips false→true once.
func MarkReminderSent(at time.Time) Mutator {
	return func(a *model.Appointment) error {
		if a.ReminderSent {
			return ErrReminderAlreadySent
		}
		a.ReminderSent = true
		sentAt := at.UTC()
		a.ReminderSentAt = &sentAt
		return nil
	}
}

func cloneAppointments(in []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, len(in))
	for i, a := range in {
		out[i] = cloneAppointment(a)
	}
	return out
}

// cloneAppointment deep-copies the timestamp pointers so callers never share state with
// the store.
func cloneAppointment(a model.Appointment) model.Appointment {
	a.ReminderSentAt = cloneTime(a.ReminderSentAt)
	a.ConfirmedAt = cloneTime(a.ConfirmedAt)
	a.CancelledAt = cloneTime(a.CancelledAt)
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
