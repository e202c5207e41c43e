package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

func testConfig() model.TenantConfig {
	return model.TenantConfig{
		APIKey:       "secret-token",
		SenderNumber: "1098765",
		TemplateName: "appointment_reminder",
		ReminderHour: 9,
		Timezone:     "America/Mexico_City",
	}
}

func TestSendTemplatedReminderRequest(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody outboundMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC"}]}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIVersion: "v20.0"})
	res, err := c.SendTemplatedReminder(context.Background(), "+52 55-1234-5678", "Ana López", "10:30", testConfig())
	if err != nil {
		t.Fatalf("SendTemplatedReminder failed: %v", err)
	}
	if !res.Success || res.ProviderMessageID != "wamid.ABC" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/v20.0/1098765/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody.To != "525512345678" || gotBody.Type != "template" || gotBody.Template == nil {
		t.Fatalf("unexpected message %+v", gotBody)
	}
	tpl := gotBody.Template
	if tpl.Name != "appointment_reminder" || tpl.Language.Code != model.DefaultLanguage {
		t.Fatalf("unexpected template header %+v", tpl)
	}
	if len(tpl.Components) != 3 {
		t.Fatalf("expected body + 2 buttons, got %d components", len(tpl.Components))
	}
	body := tpl.Components[0]
	if body.Type != "body" || body.Parameters[0].Text != "Ana López" || body.Parameters[1].Text != "10:30" {
		t.Fatalf("unexpected body component %+v", body)
	}
	for i, want := range []string{PayloadConfirm, PayloadCancel} {
		btn := tpl.Components[i+1]
		if btn.Type != "button" || btn.SubType != "quick_reply" || btn.Parameters[0].Payload != want {
			t.Fatalf("button %d: unexpected component %+v", i, btn)
		}
	}
}

func TestSendFreeTextOutsideWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), `"type":"text"`) {
			t.Errorf("expected text message, got %s", raw)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Re-engagement message","code":131047}}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.SendFreeText(context.Background(), "525512345678", "Gracias", testConfig())
	if err == nil {
		t.Fatalf("expected delivery error")
	}
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %T", err)
	}
	if de.StatusCode != http.StatusBadRequest || de.Code != 131047 || de.Message != "Re-engagement message" {
		t.Fatalf("unexpected delivery error %+v", de)
	}
	if !IsOutsideWindow(err) {
		t.Fatalf("expected IsOutsideWindow to recognise code 131047")
	}
}

func TestSendNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream unavailable")
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.SendTemplatedReminder(context.Background(), "5512345678", "Ana", "10:00", testConfig())
	var de *DeliveryError
	if !errors.As(err, &de) || de.Message != "upstream unavailable" || IsOutsideWindow(err) {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSendRejectsIncompleteConfig(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:0"})
	cfg := testConfig()
	cfg.APIKey = ""
	if _, err := c.SendTemplatedReminder(context.Background(), "5512345678", "Ana", "10:00", cfg); err == nil {
		t.Fatalf("expected error for missing apiKey")
	}
	if _, err := c.SendFreeText(context.Background(), "  ", "hi", testConfig()); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestDryRunGateway(t *testing.T) {
	g := NewDryRunGateway(slog.New(slog.NewTextHandler(io.Discard, nil)))
	res, err := g.SendTemplatedReminder(context.Background(), "+5255", "Ana", "10:00", testConfig())
	if err != nil || !res.Success || !strings.HasPrefix(res.ProviderMessageID, "dryrun-") {
		t.Fatalf("unexpected dry-run result %+v %v", res, err)
	}
}

func TestNormalizeRecipient(t *testing.T) {
	if got := NormalizeRecipient(" +52 (55) 1234-5678 "); got != "525512345678" {
		t.Fatalf("unexpected normalized phone %q", got)
	}
}
