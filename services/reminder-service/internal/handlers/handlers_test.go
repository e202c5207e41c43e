package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/clock"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/dispatch"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/inbound"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/store"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/whatsapp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeGateway struct {
	mu        sync.Mutex
	templates []string
	texts     []string
}

func (g *fakeGateway) SendTemplatedReminder(_ context.Context, phone, patientName, appointmentTime string, _ model.TenantConfig) (whatsapp.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.templates = append(g.templates, phone+"|"+patientName+"|"+appointmentTime)
	return whatsapp.SendResult{Success: true, ProviderMessageID: "wamid.1"}, nil
}

func (g *fakeGateway) SendFreeText(_ context.Context, phone, message string, _ model.TenantConfig) (whatsapp.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts = append(g.texts, phone+"|"+message)
	return whatsapp.SendResult{Success: true}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMux(svc InboundService, job Dispatcher, m *metrics.Metrics, adminKey string) *http.ServeMux {
	mux := http.NewServeMux()
	var admin *AdminHandler
	if adminKey != "" {
		admin = NewAdminHandler(job, adminKey, discardLogger())
	}
	Register(mux, NewWebhookHandler(svc, discardLogger(), m, "verify-me"), admin)
	return mux
}

func postWebhook(t *testing.T, h http.Handler, body string) inbound.Result {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp-inbound", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res inbound.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res
}

func TestReminderThenConfirmEndToEnd(t *testing.T) {
	hour, err := model.ParseReminderHour("9")
	if err != nil {
		t.Fatalf("ParseReminderHour: %v", err)
	}
	st := store.NewMemory(&model.TenantConfig{
		APIKey:       "key",
		SenderNumber: "1098765",
		TemplateName: "appointment_reminder",
		ReminderHour: hour,
		Timezone:     "America/Mexico_City",
	}, []model.Appointment{
		{ID: "a1", PatientName: "Ana López", Phone: "+525512345678", Date: "2026-01-20", Time: "11:00", Status: model.StatusScheduled},
	})
	gw := &fakeGateway{}
	// 08:00 in Mexico City.
	clk := clock.NewFake(time.Date(2026, 1, 20, 14, 0, 0, 0, time.UTC))
	job := dispatch.New(st, gw, clk, discardLogger(), dispatch.Config{TenantID: "clinic-a"})

	if res := job.Run(context.Background()); res.Skipped != dispatch.SkipNotReminderHour {
		t.Fatalf("expected 08:00 run to be gated, got %+v", res)
	}
	clk.Advance(time.Hour)
	if res := job.Run(context.Background()); res.Sent != 1 {
		t.Fatalf("expected one reminder at 09:00, got %+v", res)
	}
	if len(gw.templates) != 1 || gw.templates[0] != "+525512345678|Ana López|11:00" {
		t.Fatalf("unexpected templated sends %v", gw.templates)
	}
	appts, _ := st.LoadAppointments(context.Background())
	if !appts[0].ReminderSent {
		t.Fatalf("expected reminderSent to be persisted")
	}

	m := metrics.New()
	svc := inbound.NewService(st, gw, clk, discardLogger(), inbound.Config{TenantID: "clinic-a", Metrics: m})
	res := postWebhook(t, newMux(svc, job, m, ""), `{"from":"525512345678","button":"CONFIRM"}`)
	if res.Status != inbound.StatusOK || res.Action != inbound.ActionConfirmed || res.AppointmentID != "a1" {
		t.Fatalf("unexpected webhook result %+v", res)
	}
	appts, _ = st.LoadAppointments(context.Background())
	if appts[0].Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", appts[0].Status)
	}
	if got := testutil.ToFloat64(m.WebhookEvents.WithLabelValues(inbound.StatusOK)); got != 1 {
		t.Fatalf("expected webhook metric, got %v", got)
	}
}

type panickingService struct{}

func (panickingService) Handle(context.Context, inbound.Envelope) (inbound.Result, error) {
	panic("boom")
}

func TestWebhookAlwaysAnswers200(t *testing.T) {
	mux := newMux(panickingService{}, nil, nil, "")

	res := postWebhook(t, mux, `{"from":"5512345678","button":"CONFIRM"}`)
	if res.Status != inbound.StatusError || res.Error != "boom" {
		t.Fatalf("expected recovered panic, got %+v", res)
	}

	res = postWebhook(t, mux, `not json`)
	if res.Status != inbound.StatusError {
		t.Fatalf("expected error status for malformed body, got %+v", res)
	}
}

func TestWebhookNoSender(t *testing.T) {
	st := store.NewMemory(nil, nil)
	svc := inbound.NewService(st, &fakeGateway{}, nil, discardLogger(), inbound.Config{})
	res := postWebhook(t, newMux(svc, nil, nil, ""), `{"button":"CONFIRM"}`)
	if res.Status != inbound.StatusNoSender {
		t.Fatalf("expected no sender, got %+v", res)
	}
}

func TestVerifyHandshake(t *testing.T) {
	mux := newMux(panickingService{}, nil, nil, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp-inbound?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp-inbound?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

type stubDispatcher struct {
	calls int
	res   dispatch.Result
}

func (d *stubDispatcher) RunNow(context.Context) dispatch.Result {
	d.calls++
	return d.res
}

func TestAdminTrigger(t *testing.T) {
	job := &stubDispatcher{res: dispatch.Result{Date: "2026-01-20", Due: 2, Sent: 2}}
	mux := newMux(panickingService{}, job, nil, "admin-secret")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reminders/dispatch", nil))
	if rec.Code != http.StatusUnauthorized || job.calls != 0 {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/reminders/dispatch", nil)
	req.Header.Set("X-API-Key", "admin-secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || job.calls != 1 {
		t.Fatalf("expected 200 and one run, got %d calls=%d", rec.Code, job.calls)
	}
	var res dispatch.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil || res.Sent != 2 {
		t.Fatalf("unexpected body %+v %v", res, err)
	}

	job.res = dispatch.Result{Skipped: dispatch.SkipAlreadyRunning}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while running, got %d", rec.Code)
	}
}

func TestAdminRouteAbsentWithoutKey(t *testing.T) {
	mux := newMux(panickingService{}, &stubDispatcher{}, nil, "")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reminders/dispatch", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
