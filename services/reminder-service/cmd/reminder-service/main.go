package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicremind/libs/config"
	"github.com/md-rashed-zaman/clinicremind/libs/db"
	"github.com/md-rashed-zaman/clinicremind/libs/httpx"
	"github.com/md-rashed-zaman/clinicremind/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicremind/libs/otel"
	"github.com/md-rashed-zaman/clinicremind/libs/runtime"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/clock"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/dispatch"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/events"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/inbound"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/lock"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/matching"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/scheduler"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/store"
	"github.com/md-rashed-zaman/clinicremind/services/reminder-service/internal/whatsapp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)
	tenantID := config.String("TENANT_ID", "default")

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	st, storeCheck, closeStore, err := openStore(ctx, logger, tenantID)
	if err != nil {
		logger.Error("store setup failed", "err", err)
		panic(err)
	}
	defer closeStore()

	checks := []runtime.ReadyCheck{{Name: "store", Check: storeCheck}}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var publisher events.Publisher = events.Noop{}
	brokers := config.String("KAFKA_BROKERS", "")
	if list := kafkax.SplitBrokers(brokers); len(list) > 0 {
		kp := events.NewKafkaPublisher(list, config.Duration("KAFKA_WRITE_TIMEOUT", 5*time.Second))
		defer func() { _ = kp.Close() }()
		publisher = kp
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("event publishing disabled (no kafka brokers configured)")
	}

	var gateway whatsapp.Gateway
	if config.Bool("WHATSAPP_DRY_RUN", false) {
		gateway = whatsapp.NewDryRunGateway(logger)
		logger.Warn("whatsapp dry-run enabled; messages are logged, not sent")
	} else {
		gateway = whatsapp.NewClient(whatsapp.ClientConfig{
			BaseURL:    config.String("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
			APIVersion: config.String("WHATSAPP_API_VERSION", "v20.0"),
			Timeout:    config.Duration("WHATSAPP_TIMEOUT", 10*time.Second),
		})
	}

	m := metrics.New()
	clk := clock.Real{}

	job := dispatch.New(st, gateway, clk, logger, dispatch.Config{
		TenantID:  tenantID,
		Publisher: publisher,
		Metrics:   m,
	})
	inboundSvc := inbound.NewService(st, gateway, clk, logger, inbound.Config{
		TenantID:  tenantID,
		Matcher:   matching.SubstringLatest{},
		Publisher: publisher,
		Metrics:   m,
	})

	if config.Bool("SCHEDULER_ENABLED", true) {
		cadence, err := config.Location("SCHEDULER_TIMEZONE", "UTC")
		if err != nil {
			panic(err)
		}
		var locker lock.Locker
		if rdb != nil {
			host, _ := os.Hostname()
			locker = lock.NewRedisLocker(rdb, fmt.Sprintf("%s@%s", service, host))
		} else {
			locker = lock.NewLocalLocker(clk.Now)
		}
		sched := scheduler.New(job, clk, cadence, locker, tenantID, logger)
		if err := sched.Start(ctx); err != nil {
			panic(err)
		}
		defer sched.Stop()
	} else {
		logger.Warn("reminder scheduler disabled")
	}

	var admin *handlers.AdminHandler
	if key := config.String("ADMIN_API_KEY", ""); key != "" {
		admin = handlers.NewAdminHandler(job, key, logger)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", m.Handler())
	handlers.Register(mux, handlers.NewWebhookHandler(inboundSvc, logger, m, config.String("WEBHOOK_VERIFY_TOKEN", "")), admin)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 600)
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "clinicremind:rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           buildHandler(mux, logger, m, rateLimitMW, config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, 10*time.Second)
}

// buildHandler wraps mux in the service middleware. The webhook is exempt from the timeout
// and rate limit so deliveries are always acknowledged with 200.
func buildHandler(mux http.Handler, logger *slog.Logger, m *metrics.Metrics, rateLimit httpx.Middleware, timeout time.Duration) http.Handler {
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.Except(httpx.WithTimeout(timeout), handlers.WebhookPath),
		httpx.Except(rateLimit, handlers.WebhookPath),
		m.Middleware(),
	)
	return otelhttp.NewHandler(handler, "reminder")
}

// openStore builds the configured backend and returns its readiness check and closer.
func openStore(ctx context.Context, logger *slog.Logger, tenantID string) (store.Store, func(context.Context) error, func(), error) {
	backend := strings.ToLower(config.String("STORE_BACKEND", "postgres"))
	switch backend {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(nil, nil), func(context.Context) error { return nil }, func() {}, nil
	case "file":
		f := store.NewFile(config.String("STORE_FILE", "data/store.json"))
		return f, f.Ping, func() {}, nil
	case "postgres":
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			return nil, nil, nil, err
		}
		pool, err := db.Open(ctx, dbURL, db.Options{
			MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db connection failed: %w", err)
		}
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return store.NewPostgres(pool, tenantID), db.ReadyCheck(pool), pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}
