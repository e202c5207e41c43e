package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	otelx "github.com/md-rashed-zaman/clinicremind/libs/otel"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/clock"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/events"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/store"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/whatsapp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Reasons a run stops before the send loop.
const (
	SkipAlreadyRunning   = "already running"
	SkipStoreError       = "store error"
	SkipNoConfig         = "no config"
	SkipIncompleteConfig = "incomplete config"
	SkipDisabled         = "reminders disabled"
	SkipInvalidTimezone  = "invalid timezone"
	SkipNotReminderHour  = "not reminder hour"
)

// Result summarises one run for logs, metrics and the admin trigger.
type Result struct {
	Skipped     string `json:"skipped,omitempty"`
	Date        string `json:"date,omitempty"`
	Due         int    `json:"due"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
	NoPhone     int    `json:"noPhone"`
	AlreadySent int    `json:"alreadySent"`
}

type Config struct {
	TenantID  string
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// Job sends the day's templated reminders for one tenant when the tenant-local hour equals
// the configured reminder hour.
type Job struct {
	store     store.Store
	gateway   whatsapp.Gateway
	clock     clock.Clock
	logger    *slog.Logger
	tenantID  string
	publisher events.Publisher
	metrics   *metrics.Metrics

	running sync.Mutex
}

func New(st store.Store, gw whatsapp.Gateway, clk clock.Clock, logger *slog.Logger, cfg Config) *Job {
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Noop{}
	}
	return &Job{
		store:     st,
		gateway:   gw,
		clock:     clk,
		logger:    logger,
		tenantID:  cfg.TenantID,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
	}
}

// Run is the scheduled entry point and only sends at the reminder hour.
func (j *Job) Run(ctx context.Context) Result {
	return j.run(ctx, true)
}

// RunNow runs the same pipeline without the hour gate. Reminders already marked sent are
// still skipped.
func (j *Job) RunNow(ctx context.Context) Result {
	return j.run(ctx, false)
}

func (j *Job) run(ctx context.Context, hourGate bool) Result {
	if !j.running.TryLock() {
		j.logger.WarnContext(ctx, "dispatch run skipped", "reason", SkipAlreadyRunning)
		j.metrics.DispatchRun(outcomeLabel(SkipAlreadyRunning), 0)
		return Result{Skipped: SkipAlreadyRunning}
	}
	defer j.running.Unlock()

	ctx, span := otelx.Tracer("reminder-service/dispatch").Start(ctx, "dispatch.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", j.tenantID),
		attribute.Bool("dispatch.hour_gate", hourGate),
	)

	start := j.clock.Now()
	res := j.dispatch(ctx, hourGate)

	span.SetAttributes(
		attribute.String("dispatch.skipped", res.Skipped),
		attribute.Int("dispatch.due", res.Due),
		attribute.Int("dispatch.sent", res.Sent),
		attribute.Int("dispatch.failed", res.Failed),
	)
	if res.Skipped == SkipStoreError {
		span.SetStatus(codes.Error, res.Skipped)
	}

	if res.Skipped != "" {
		j.metrics.DispatchRun(outcomeLabel(res.Skipped), 0)
		return res
	}
	j.metrics.DispatchRun("completed", j.clock.Now().Sub(start))
	j.logger.InfoContext(ctx, "dispatch run completed",
		"date", res.Date,
		"due", res.Due,
		"sent", res.Sent,
		"failed", res.Failed,
		"no_phone", res.NoPhone,
		"already_sent", res.AlreadySent,
	)
	return res
}

func (j *Job) dispatch(ctx context.Context, hourGate bool) Result {
	cfg, err := j.store.LoadConfig(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "dispatch: load config failed", "err", err)
		return Result{Skipped: SkipStoreError}
	}
	if cfg == nil {
		j.logger.InfoContext(ctx, "dispatch skipped: tenant not configured")
		return Result{Skipped: SkipNoConfig}
	}
	if missing := cfg.MissingFields(); len(missing) > 0 {
		j.logger.InfoContext(ctx, "dispatch skipped: incomplete config", "missing", strings.Join(missing, ","))
		return Result{Skipped: SkipIncompleteConfig}
	}
	if cfg.ReminderHour.Disabled() {
		j.logger.InfoContext(ctx, "dispatch skipped: reminders disabled")
		return Result{Skipped: SkipDisabled}
	}
	loc, err := cfg.Location()
	if err != nil {
		j.logger.WarnContext(ctx, "dispatch skipped: invalid timezone", "timezone", cfg.Timezone, "err", err)
		return Result{Skipped: SkipInvalidTimezone}
	}

	now := j.clock.Now().In(loc)
	if hourGate && now.Hour() != int(cfg.ReminderHour) {
		j.logger.DebugContext(ctx, "dispatch skipped: not reminder hour",
			"local_hour", now.Hour(),
			"reminder_hour", int(cfg.ReminderHour),
			"timezone", cfg.Timezone,
		)
		return Result{Skipped: SkipNotReminderHour}
	}

	today := now.Format(model.DateLayout)
	appts, err := j.store.LoadAppointments(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "dispatch: load appointments failed", "err", err)
		return Result{Skipped: SkipStoreError}
	}

	res := Result{Date: today}
	for _, a := range appts {
		if !a.DueOn(today) {
			continue
		}
		res.Due++
		if err := ctx.Err(); err != nil {
			j.logger.WarnContext(ctx, "dispatch interrupted", "err", err, "remaining_from", a.ID)
			break
		}
		j.remind(ctx, *cfg, a, &res)
	}
	return res
}

// remind sends one reminder and persists the marking immediately on success.
func (j *Job) remind(ctx context.Context, cfg model.TenantConfig, a model.Appointment, res *Result) {
	log := j.logger.With("appointment_id", a.ID, "date", a.Date, "time", a.Time)

	if strings.TrimSpace(a.Phone) == "" {
		res.NoPhone++
		j.metrics.Reminder("no_phone")
		log.WarnContext(ctx, "reminder skipped: no phone")
		return
	}

	sent, err := j.gateway.SendTemplatedReminder(ctx, a.Phone, a.PatientName, a.Time, cfg)
	if err == nil && !sent.Success {
		err = errors.New("gateway reported failure")
	}
	if err != nil {
		res.Failed++
		j.metrics.Reminder("failed")
		log.ErrorContext(ctx, "reminder send failed", "err", err)
		ev, buildErr := events.ReminderFailed(j.tenantID, a, err.Error(), j.clock.Now())
		events.Emit(ctx, j.publisher, j.logger, ev, buildErr)
		return
	}

	sentAt := j.clock.Now()
	if _, err := j.store.UpdateAppointment(ctx, a.ID, store.MarkReminderSent(sentAt)); err != nil {
		if errors.Is(err, store.ErrReminderAlreadySent) {
			res.AlreadySent++
			j.metrics.Reminder("already_sent")
			log.WarnContext(ctx, "reminder was marked sent concurrently", "provider_message_id", sent.ProviderMessageID)
			return
		}
		// The message went out; a failed write means the next matching run may resend.
		log.ErrorContext(ctx, "reminder sent but marking failed", "provider_message_id", sent.ProviderMessageID, "err", err)
	}

	res.Sent++
	j.metrics.Reminder("sent")
	log.InfoContext(ctx, "reminder sent", "provider_message_id", sent.ProviderMessageID)
	ev, buildErr := events.ReminderSent(j.tenantID, a, sent.ProviderMessageID, sentAt)
	events.Emit(ctx, j.publisher, j.logger, ev, buildErr)
}

func outcomeLabel(skipped string) string {
	return strings.ReplaceAll(skipped, " ", "_")
}
