package whatsapp

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
)

// DryRunGateway logs outbound messages instead of sending them.
type DryRunGateway struct {
	logger *slog.Logger
}

func NewDryRunGateway(logger *slog.Logger) *DryRunGateway {
	return &DryRunGateway{logger: logger}
}

func (g *DryRunGateway) SendTemplatedReminder(ctx context.Context, phone, patientName, appointmentTime string, cfg model.TenantConfig) (SendResult, error) {
	id := "dryrun-" + uuid.NewString()
	g.logger.InfoContext(ctx, "whatsapp dry-run template",
		"to", NormalizeRecipient(phone),
		"template", cfg.TemplateName,
		"language", cfg.TemplateLanguage(),
		"patient_name", patientName,
		"appointment_time", appointmentTime,
		"provider_message_id", id,
	)
	return SendResult{Success: true, ProviderMessageID: id}, nil
}

func (g *DryRunGateway) SendFreeText(ctx context.Context, phone, message string, _ model.TenantConfig) (SendResult, error) {
	id := "dryrun-" + uuid.NewString()
	g.logger.InfoContext(ctx, "whatsapp dry-run text", "to", NormalizeRecipient(phone), "body", message, "provider_message_id", id)
	return SendResult{Success: true, ProviderMessageID: id}, nil
}
