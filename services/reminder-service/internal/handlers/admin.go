package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/dispatch"
)

type Dispatcher interface {
	RunNow(ctx context.Context) dispatch.Result
}

// AdminHandler exposes operator-only actions guarded by a static API key.
type AdminHandler struct {
	job    Dispatcher
	apiKey string
	logger *slog.Logger
}

func NewAdminHandler(job Dispatcher, apiKey string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{job: job, apiKey: strings.TrimSpace(apiKey), logger: logger}
}

// TriggerDispatch runs the reminder job immediately, ignoring the reminder hour.
func (h *AdminHandler) TriggerDispatch(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" || !secureEqual(r.Header.Get("X-API-Key"), h.apiKey) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	h.logger.InfoContext(r.Context(), "manual dispatch requested")
	res := h.job.RunNow(r.Context())
	code := http.StatusOK
	if res.Skipped == dispatch.SkipAlreadyRunning {
		code = http.StatusConflict
	}
	writeJSON(w, code, res)
}

func secureEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(want)) == 1
}
