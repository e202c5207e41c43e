package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

// Canonical quick-reply payload codes carried by the reminder template buttons.
const (
	PayloadConfirm = "CONFIRM"
	PayloadCancel  = "CANCEL"
)

// codeOutsideWindow is the Cloud API error returned for free-form messages sent more than
// 24h after the recipient's last interaction.
const codeOutsideWindow = 131047

type SendResult struct {
	Success           bool
	ProviderMessageID string
}

// Gateway sends outbound WhatsApp messages on behalf of a tenant.
type Gateway interface {
	SendTemplatedReminder(ctx context.Context, phone, patientName, appointmentTime string, cfg model.TenantConfig) (SendResult, error)
	SendFreeText(ctx context.Context, phone, message string, cfg model.TenantConfig) (SendResult, error)
}

// DeliveryError is returned when the provider rejects a message.
type DeliveryError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *DeliveryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("whatsapp: delivery failed (http %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp: delivery failed (http %d): %s", e.StatusCode, e.Message)
}

// IsOutsideWindow reports whether err is the provider refusing a free-form message because
// the customer service window has closed.
func IsOutsideWindow(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Code == codeOutsideWindow
}

// NormalizeRecipient strips the separators accepted in stored phone numbers, leaving the
// digits-only form the provider expects.
func NormalizeRecipient(phone string) string {
	r := strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "")
	return r.Replace(strings.TrimSpace(phone))
}
