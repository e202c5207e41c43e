package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReminderHour is the tenant-local hour (0-23) at which reminders go out, or
// ReminderDisabled.
type ReminderHour int

const ReminderDisabled ReminderHour = -1

const disabledLiteral = "disabled"

func ParseReminderHour(raw string) (ReminderHour, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, disabledLiteral) {
		return ReminderDisabled, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return ReminderDisabled, fmt.Errorf("reminder hour %q: not a number", raw)
	}
	return reminderHourFromInt(n)
}

func reminderHourFromInt(n int) (ReminderHour, error) {
	if n < 0 || n > 23 {
		return ReminderDisabled, fmt.Errorf("reminder hour %d out of range 0-23", n)
	}
	return ReminderHour(n), nil
}

func (h ReminderHour) Disabled() bool { return h < 0 || h > 23 }

func (h ReminderHour) String() string {
	if h.Disabled() {
		return disabledLiteral
	}
	return strconv.Itoa(int(h))
}

func (h ReminderHour) MarshalJSON() ([]byte, error) {
	if h.Disabled() {
		return json.Marshal(disabledLiteral)
	}
	return json.Marshal(int(h))
}

// UnmarshalJSON accepts 9, "9", "disabled" and null.
func (h *ReminderHour) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		v, err := reminderHourFromInt(n)
		if err != nil {
			return err
		}
		*h = v
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("reminder hour: %w", err)
	}
	if s == nil {
		*h = ReminderDisabled
		return nil
	}
	v, err := ParseReminderHour(*s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

const (
	DefaultLanguage     = "es_MX"
	DefaultConfirmReply = "¡Gracias! Su cita ha quedado confirmada. Le esperamos."
	DefaultCancelReply  = "Su cita ha sido cancelada. Si desea reagendar, responda a este mensaje o llame a la clínica."
)

type TenantConfig struct {
	APIKey       string       `json:"apiKey"`
	SenderNumber string       `json:"senderNumber"`
	TemplateName string       `json:"templateName"`
	ReminderHour ReminderHour `json:"reminderHour"`
	Timezone     string       `json:"timezone"`
	Language     string       `json:"language,omitempty"`
	ConfirmReply string       `json:"confirmReply,omitempty"`
	CancelReply  string       `json:"cancelReply,omitempty"`
}

// UnmarshalJSON treats an absent reminderHour as disabled rather than midnight.
func (c *TenantConfig) UnmarshalJSON(data []byte) error {
	type plain TenantConfig
	v := plain{ReminderHour: ReminderDisabled}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = TenantConfig(v)
	return nil
}

// MissingFields lists the credential fields required before anything can be sent.
func (c TenantConfig) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "apiKey")
	}
	if strings.TrimSpace(c.SenderNumber) == "" {
		missing = append(missing, "senderNumber")
	}
	if strings.TrimSpace(c.TemplateName) == "" {
		missing = append(missing, "templateName")
	}
	return missing
}

func (c TenantConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return nil, fmt.Errorf("timezone not configured")
	}
	return time.LoadLocation(name)
}

func (c TenantConfig) TemplateLanguage() string {
	if v := strings.TrimSpace(c.Language); v != "" {
		return v
	}
	return DefaultLanguage
}

func (c TenantConfig) ConfirmReplyText() string {
	if v := strings.TrimSpace(c.ConfirmReply); v != "" {
		return v
	}
	return DefaultConfirmReply
}

func (c TenantConfig) CancelReplyText() string {
	if v := strings.TrimSpace(c.CancelReply); v != "" {
		return v
	}
	return DefaultCancelReply
}
