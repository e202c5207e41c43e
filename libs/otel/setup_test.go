package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnvDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_ENABLED", "true")
	cfg := ConfigFromEnv("reminder-service")
	if cfg.Enabled {
		t.Fatalf("expected tracing disabled without endpoint")
	}

	shutdown, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestConfigFromEnvSamplingRatio(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	cfg := ConfigFromEnv("reminder-service")
	if !cfg.Enabled || cfg.SampleRatio != 0.25 || cfg.OTLPEndpoint != "jaeger:4317" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	if got := ConfigFromEnv("x").SampleRatio; got != 1 {
		t.Fatalf("expected out-of-range ratio to fall back to 1, got %v", got)
	}
}

func TestConfigFromEnvExplicitDisableAndVersion(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("SERVICE_VERSION", "1.4.2")
	cfg := ConfigFromEnv("reminder-service")
	if cfg.Enabled {
		t.Fatalf("expected OTEL_ENABLED=false to win over the endpoint")
	}
	if cfg.ServiceVersion != "1.4.2" {
		t.Fatalf("unexpected version %q", cfg.ServiceVersion)
	}

	attrs := resourceAttributes(cfg)
	if len(attrs) != 2 || attrs[1].Value.AsString() != "1.4.2" {
		t.Fatalf("unexpected resource attributes %v", attrs)
	}
}
