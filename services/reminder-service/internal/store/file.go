package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

// document is the on-disk layout of the file store.
type document struct {
	Config       *model.TenantConfig `json:"config"`
	Appointments []model.Appointment `json:"appointments"`
}

// File persists the configuration and every appointment in one JSON document. Writes go to
// a temp file that is renamed over the original. The mutex serialises writers inside this
// process only; running several replicas against one file is not supported.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: strings.TrimSpace(path)}
}

func (f *File) LoadConfig(_ context.Context) (*model.TenantConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.Config, nil
}

func (f *File) SaveConfig(_ context.Context, cfg model.TenantConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Config = &cfg
	return f.write(doc)
}

func (f *File) LoadAppointments(_ context.Context) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.Appointments, nil
}

func (f *File) SaveAppointments(_ context.Context, appts []model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Appointments = upsert(doc.Appointments, appts)
	return f.write(doc)
}

func (f *File) UpdateAppointment(_ context.Context, id string, fn Mutator) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return model.Appointment{}, err
	}
	updated, err := applyMutator(doc.Appointments, id, fn)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := f.write(doc); err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

// Ping verifies the document is readable; used by /readyz.
func (f *File) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.read()
	return err
}

func (f *File) read() (document, error) {
	var doc document
	if f.path == "" {
		return doc, errors.New("file store path not configured")
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *File) write(doc document) error {
	if doc.Appointments == nil {
		doc.Appointments = []model.Appointment{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
