package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/clinicremind/libs/otel"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/clock"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/events"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/matching"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/model"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/store"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/whatsapp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNotActionable is returned by the transition when the matched appointment already left
// the scheduled state, e.g. after a duplicate tap.
var ErrNotActionable = errors.New("appointment no longer actionable")

// Response statuses.
const (
	StatusOK               = "ok"
	StatusNoSender         = "no sender"
	StatusNotButtonReply   = "not a button reply"
	StatusNoAppointment    = "no appointment found"
	StatusIgnored          = "ignored"
	StatusAlreadyProcessed = "already processed"
	StatusError            = "error"
)

const (
	ActionConfirmed = "confirmed"
	ActionCancelled = "cancelled"
)

type Result struct {
	Status        string `json:"status"`
	Action        string `json:"action,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Config struct {
	TenantID  string
	Matcher   matching.Matcher
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// Service applies button replies to appointments.
type Service struct {
	store     store.Store
	gateway   whatsapp.Gateway
	clock     clock.Clock
	logger    *slog.Logger
	matcher   matching.Matcher
	publisher events.Publisher
	metrics   *metrics.Metrics
	tenantID  string
}

func NewService(st store.Store, gw whatsapp.Gateway, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.Matcher == nil {
		cfg.Matcher = matching.SubstringLatest{}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Noop{}
	}
	return &Service{
		store:     st,
		gateway:   gw,
		clock:     clk,
		logger:    logger,
		matcher:   cfg.Matcher,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		tenantID:  cfg.TenantID,
	}
}

type transition struct {
	action string
	status model.Status
}

func transitionFor(payload string) (transition, bool) {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case whatsapp.PayloadConfirm:
		return transition{action: ActionConfirmed, status: model.StatusConfirmed}, true
	case whatsapp.PayloadCancel:
		return transition{action: ActionCancelled, status: model.StatusCancelled}, true
	default:
		return transition{}, false
	}
}

func (t transition) mutator(at time.Time) store.Mutator {
	return func(a *model.Appointment) error {
		if !matching.Actionable(*a) {
			return ErrNotActionable
		}
		ts := at.UTC()
		a.Status = t.status
		switch t.status {
		case model.StatusConfirmed:
			a.ConfirmedAt = &ts
			a.ConfirmedVia = model.ChannelWhatsApp
		case model.StatusCancelled:
			a.CancelledAt = &ts
			a.CancelledVia = model.ChannelWhatsApp
		}
		return nil
	}
}

// Handle matches the sender to an appointment and applies the button's transition. The
// returned error is non-nil only for store failures; every other outcome is a Result status.
func (s *Service) Handle(ctx context.Context, env Envelope) (Result, error) {
	ctx, span := otelx.Tracer("reminder-service/inbound").Start(ctx, "inbound.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", s.tenantID),
		attribute.String("inbound.interaction", env.InteractionType),
	)

	res, err := s.handle(ctx, env)
	span.SetAttributes(attribute.String("inbound.status", res.Status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *Service) handle(ctx context.Context, env Envelope) (Result, error) {
	if env.SenderPhone == "" {
		return Result{Status: StatusNoSender}, nil
	}
	if !env.IsButtonReply() {
		s.logger.DebugContext(ctx, "inbound message is not a button reply", "interaction", env.InteractionType)
		return Result{Status: StatusNotButtonReply}, nil
	}

	appts, err := s.store.LoadAppointments(ctx)
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("load appointments: %w", err)
	}
	match, ok := s.matcher.Match(env.SenderPhone, appts)
	if !ok {
		s.logger.InfoContext(ctx, "no actionable appointment for sender", "sender", env.SenderPhone)
		return Result{Status: StatusNoAppointment}, nil
	}

	tr, known := transitionFor(env.ButtonPayload)
	if !known {
		s.logger.InfoContext(ctx, "unknown button payload ignored",
			"payload", env.ButtonPayload,
			"appointment_id", match.ID,
		)
		return Result{Status: StatusIgnored, AppointmentID: match.ID}, nil
	}

	updated, err := s.store.UpdateAppointment(ctx, match.ID, tr.mutator(s.clock.Now()))
	if err != nil {
		if errors.Is(err, ErrNotActionable) || errors.Is(err, store.ErrNotFound) {
			s.logger.InfoContext(ctx, "button reply already applied", "appointment_id", match.ID, "action", tr.action)
			return Result{Status: StatusAlreadyProcessed, Action: tr.action, AppointmentID: match.ID}, nil
		}
		return Result{Status: StatusError, AppointmentID: match.ID}, fmt.Errorf("update appointment %s: %w", match.ID, err)
	}
	s.logger.InfoContext(ctx, "appointment updated from button reply",
		"appointment_id", updated.ID,
		"status", string(updated.Status),
	)

	ev, ok, buildErr := events.StatusChanged(s.tenantID, updated)
	if ok || buildErr != nil {
		events.Emit(ctx, s.publisher, s.logger, ev, buildErr)
	}

	s.acknowledge(ctx, env.SenderPhone, tr, updated.ID)
	return Result{Status: StatusOK, Action: tr.action, AppointmentID: updated.ID}, nil
}

// acknowledge sends the free-text reply. Failures never undo the transition.
func (s *Service) acknowledge(ctx context.Context, phone string, tr transition, appointmentID string) {
	log := s.logger.With("appointment_id", appointmentID, "action", tr.action)

	cfg, err := s.store.LoadConfig(ctx)
	if err != nil || cfg == nil {
		s.metrics.AckFailure()
		log.WarnContext(ctx, "acknowledgment skipped: tenant config unavailable", "err", err)
		return
	}
	text := cfg.ConfirmReplyText()
	if tr.status == model.StatusCancelled {
		text = cfg.CancelReplyText()
	}

	if _, err := s.gateway.SendFreeText(ctx, phone, text, *cfg); err != nil {
		s.metrics.AckFailure()
		if whatsapp.IsOutsideWindow(err) {
			log.InfoContext(ctx, "acknowledgment not sent: outside customer service window")
			return
		}
		log.WarnContext(ctx, "acknowledgment send failed", "err", err)
	}
}
