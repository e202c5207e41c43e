package store

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

// Memory keeps everything in process memory. Used by tests and STORE_BACKEND=memory.
type Memory struct {
	mu     sync.Mutex
	cfg    *model.TenantConfig
	appts  []model.Appointment
	writes int
}

func NewMemory(cfg *model.TenantConfig, appts []model.Appointment) *Memory {
	m := &Memory{appts: cloneAppointments(appts)}
	if cfg != nil {
		c := *cfg
		m.cfg = &c
	}
	return m
}

func (m *Memory) LoadConfig(_ context.Context) (*model.TenantConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, nil
	}
	c := *m.cfg
	return &c, nil
}

func (m *Memory) SaveConfig(_ context.Context, cfg model.TenantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = &cfg
	return nil
}

func (m *Memory) LoadAppointments(_ context.Context) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAppointments(m.appts), nil
}

func (m *Memory) SaveAppointments(_ context.Context, appts []model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts = upsert(m.appts, appts)
	m.writes++
	return nil
}

func (m *Memory) UpdateAppointment(_ context.Context, id string, fn Mutator) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated, err := applyMutator(m.appts, id, fn)
	if err != nil {
		return model.Appointment{}, err
	}
	m.writes++
	return updated, nil
}

// Writes counts successful mutations; tests use it to assert that nothing was persisted.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// applyMutator runs fn against a copy of the record with the given id and, on success,
// stores the copy back into appts.
func applyMutator(appts []model.Appointment, id string, fn Mutator) (model.Appointment, error) {
	for i := range appts {
		if appts[i].ID != id {
			continue
		}
		working := cloneAppointment(appts[i])
		if err := fn(&working); err != nil {
			return model.Appointment{}, err
		}
		working.ID = id
		appts[i] = working
		return cloneAppointment(working), nil
	}
	return model.Appointment{}, ErrNotFound
}

// upsert replaces records with matching ids and appends new ones, preserving order.
func upsert(existing, incoming []model.Appointment) []model.Appointment {
	index := make(map[string]int, len(existing))
	out := cloneAppointments(existing)
	for i, a := range out {
		index[a.ID] = i
	}
	for _, a := range incoming {
		if i, ok := index[a.ID]; ok {
			out[i] = cloneAppointment(a)
			continue
		}
		index[a.ID] = len(out)
		out = append(out, cloneAppointment(a))
	}
	return out
}
