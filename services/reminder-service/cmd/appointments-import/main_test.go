package main

import (
	"strings"
	"testing"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

func TestParseSeed(t *testing.T) {
	raw := `{
		"config": {"apiKey":"k","senderNumber":"1","templateName":"t","reminderHour":"9","timezone":"America/Mexico_City"},
		"appointments": [
			{"patientName":"Ana","phone":"+525512345678","date":"2026-01-20","time":"11:00"},
			{"id":"a2","patientName":"Luis","phone":"5587654321","date":"2026-01-21","time":"9:30","status":"confirmed"}
		]
	}`
	doc, err := parseSeed([]byte(raw))
	if err != nil {
		t.Fatalf("parseSeed failed: %v", err)
	}
	if doc.Config == nil || doc.Config.ReminderHour != 9 {
		t.Fatalf("unexpected config %+v", doc.Config)
	}
	first := doc.Appointments[0]
	if first.ID == "" || first.Status != model.StatusScheduled {
		t.Fatalf("expected generated id and default status, got %+v", first)
	}
	if doc.Appointments[1].Status != model.StatusConfirmed {
		t.Fatalf("expected explicit status to be kept")
	}
	if got := doc.Appointments[1].Time; got != "09:30" {
		t.Fatalf("expected time padded to 09:30, got %q", got)
	}
}

func TestParseSeedReportsEveryProblem(t *testing.T) {
	raw := `{"appointments": [
		{"id":"a1","date":"20/01/2026","time":"11:00"},
		{"id":"a1","date":"2026-01-20","time":"9am","status":"pending"}
	]}`
	_, err := parseSeed([]byte(raw))
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"YYYY-MM-DD", "duplicate id", "invalid status", "HH:MM"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}
