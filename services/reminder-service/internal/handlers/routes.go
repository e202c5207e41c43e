package handlers

import "net/http"

// WebhookPath receives provider deliveries. Nothing in front of it may answer with a
// non-200 status.
const WebhookPath = "/webhooks/whatsapp-inbound"

// Register mounts the service routes on mux. The admin route is only mounted when admin is
// non-nil.
func Register(mux *http.ServeMux, webhook *WebhookHandler, admin *AdminHandler) {
	mux.HandleFunc("POST "+WebhookPath, webhook.Receive)
	mux.HandleFunc("GET "+WebhookPath, webhook.Verify)
	if admin != nil {
		mux.HandleFunc("POST /admin/reminders/dispatch", admin.TriggerDispatch)
	}
}
