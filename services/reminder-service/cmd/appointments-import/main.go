package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicremind/libs/config"
	"github.com/md-rashed-zaman/clinicremind/libs/db"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/store"
)

type seedDocument struct {
	Config       *model.TenantConfig `json:"config"`
	Appointments []model.Appointment `json:"appointments"`
}

func main() {
	_ = config.LoadDotEnv()
	var (
		input     = flag.String("file", "", "seed JSON with {config, appointments}; - reads stdin")
		backend   = flag.String("backend", config.String("STORE_BACKEND", "postgres"), "postgres or file")
		dbURL     = flag.String("database-url", config.String("DATABASE_URL", ""), "postgres connection string")
		storeFile = flag.String("store-file", config.String("STORE_FILE", "data/store.json"), "file store path")
		tenantID  = flag.String("tenant", config.String("TENANT_ID", "default"), "tenant id")
	)
	flag.Parse()

	if strings.TrimSpace(*input) == "" {
		fatal("-file is required")
	}
	raw, err := readInput(*input)
	if err != nil {
		fatal(err.Error())
	}
	doc, err := parseSeed(raw)
	if err != nil {
		fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var st store.Store
	switch strings.ToLower(*backend) {
	case "file":
		st = store.NewFile(*storeFile)
	case "postgres":
		if strings.TrimSpace(*dbURL) == "" {
			fatal("DATABASE_URL is required for the postgres backend")
		}
		pool, err := db.Open(ctx, *dbURL, db.Options{MaxConns: 2})
		if err != nil {
			fatal(err.Error())
		}
		defer pool.Close()
		if err := store.Migrate(ctx, pool); err != nil {
			fatal(err.Error())
		}
		st = store.NewPostgres(pool, *tenantID)
	default:
		fatal("unsupported backend: " + *backend)
	}

	if doc.Config != nil {
		if err := st.SaveConfig(ctx, *doc.Config); err != nil {
			fatal(err.Error())
		}
	}
	if err := st.SaveAppointments(ctx, doc.Appointments); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("config=%t appointments=%d\n", doc.Config != nil, len(doc.Appointments))
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// parseSeed decodes and validates a seed document. Missing ids get a UUID and missing
// statuses default to scheduled.
func parseSeed(raw []byte) (seedDocument, error) {
	var doc seedDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode seed: %w", err)
	}
	if doc.Config != nil {
		if _, err := doc.Config.Location(); err != nil {
			return doc, fmt.Errorf("config: timezone: %w", err)
		}
	}

	seen := make(map[string]bool, len(doc.Appointments))
	var errs []error
	for i := range doc.Appointments {
		a := &doc.Appointments[i]
		if strings.TrimSpace(a.ID) == "" {
			a.ID = uuid.NewString()
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("appointment %s: duplicate id", a.ID))
		}
		seen[a.ID] = true
		if a.Status == "" {
			a.Status = model.StatusScheduled
		}
		if !a.Status.Valid() {
			errs = append(errs, fmt.Errorf("appointment %s: invalid status %q", a.ID, a.Status))
		}
		if _, err := time.Parse(model.DateLayout, a.Date); err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: date %q must be YYYY-MM-DD", a.ID, a.Date))
		}
		if tod, err := time.Parse(model.TimeLayout, strings.TrimSpace(a.Time)); err != nil {
			errs = append(errs, fmt.Errorf("appointment %s: time %q must be HH:MM", a.ID, a.Time))
		} else {
			a.Time = tod.Format(model.TimeLayout)
		}
	}
	return doc, errors.Join(errs...)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
