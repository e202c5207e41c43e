package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicremind/libs/httpx"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/inbound"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/metrics"
)

const maxWebhookBody = 1 << 20

type InboundService interface {
	Handle(ctx context.Context, env inbound.Envelope) (inbound.Result, error)
}

// WebhookHandler receives WhatsApp button replies. POST always answers 200 so the provider
// never retries; the body is diagnostic only.
type WebhookHandler struct {
	svc         InboundService
	logger      *slog.Logger
	metrics     *metrics.Metrics
	verifyToken string
}

func NewWebhookHandler(svc InboundService, logger *slog.Logger, m *metrics.Metrics, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		svc:         svc,
		logger:      logger,
		metrics:     m,
		verifyToken: strings.TrimSpace(verifyToken),
	}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	res := h.receive(r)
	h.metrics.WebhookEvent(res.Status)
	writeJSON(w, http.StatusOK, res)
}

func (h *WebhookHandler) receive(r *http.Request) (res inbound.Result) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.ErrorContext(r.Context(), "webhook handler panicked",
				"request_id", httpx.RequestIDFromContext(r.Context()),
				"panic", p,
			)
			res = inbound.Result{Status: inbound.StatusError, Error: fmt.Sprint(p)}
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook body unreadable", "err", err)
		return inbound.Result{Status: inbound.StatusError, Error: "unreadable body"}
	}
	env, err := inbound.Normalize(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook payload rejected", "err", err)
		return inbound.Result{Status: inbound.StatusError, Error: err.Error()}
	}

	res, err = h.svc.Handle(r.Context(), env)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "webhook processing failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		res.Status = inbound.StatusError
		res.Error = err.Error()
	}
	return res
}

// Verify answers the Cloud API subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken == "" {
		http.Error(w, "webhook verification not configured", http.StatusNotFound)
		return
	}
	if q.Get("hub.mode") != "subscribe" || !secureEqual(q.Get("hub.verify_token"), h.verifyToken) {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
