package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/clinicremind/libs/httpx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DispatchRuns     *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	Reminders        *prometheus.CounterVec
	WebhookEvents    *prometheus.CounterVec
	AckFailures      prometheus.Counter
	RequestCount     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DispatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicremind_dispatch_runs_total",
				Help: "Reminder dispatch runs by outcome",
			},
			[]string{"outcome"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clinicremind_dispatch_run_duration_seconds",
				Help:    "Duration of reminder dispatch runs that reached the send loop",
				Buckets: prometheus.DefBuckets,
			},
		),
		Reminders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicremind_reminders_total",
				Help: "Reminder send attempts by result",
			},
			[]string{"result"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicremind_webhook_events_total",
				Help: "Inbound webhook events by handling status",
			},
			[]string{"status"},
		),
		AckFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clinicremind_ack_failures_total",
				Help: "Acknowledgment messages that could not be delivered",
			},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicremind_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicremind_http_request_duration_seconds",
				Help:    "Histogram of response durations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
	m.registry.MustRegister(
		m.DispatchRuns,
		m.DispatchDuration,
		m.Reminders,
		m.WebhookEvents,
		m.AckFailures,
		m.RequestCount,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) DispatchRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DispatchRuns.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.DispatchDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) Reminder(result string) {
	if m == nil {
		return
	}
	m.Reminders.WithLabelValues(result).Inc()
}

func (m *Metrics) WebhookEvent(status string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(status).Inc()
}

func (m *Metrics) AckFailure() {
	if m == nil {
		return
	}
	m.AckFailures.Inc()
}

// Middleware records request counts and latency. The path label is the registered route
// pattern when available so unmatched paths do not explode cardinality.
func (m *Metrics) Middleware() httpx.Middleware {
	if m == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := httpx.NewStatusRecorder(w)
			next.ServeHTTP(sw, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			m.RequestCount.WithLabelValues(path, r.Method, strconv.Itoa(sw.Status())).Inc()
			m.RequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
