package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.RateLimitWindow != time.Minute || cfg.RateLimitRequests != 120 {
		t.Fatalf("rate limit = %d per %s", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if !cfg.RateLimitFailOpen {
		t.Fatalf("RateLimitFailOpen = false, want true by default")
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("KafkaBrokers = %v, want none", cfg.KafkaBrokers)
	}
	if cfg.DBSlowQuery != 500*time.Millisecond {
		t.Fatalf("DBSlowQuery = %s", cfg.DBSlowQuery)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APPOINTLY_HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("GRPC_PORT", "6000")
	t.Setenv("APPOINTLY_STORE_DRIVER", "Memory")
	t.Setenv("APPOINTLY_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092,")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APPOINTLY_OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("APPOINTLY_RATELIMIT_FAIL_OPEN", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr() != "127.0.0.1:9090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
	if cfg.GRPCPort != 6000 {
		t.Fatalf("GRPCPort = %d", cfg.GRPCPort)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout = %s", cfg.ShutdownTimeout)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Fatalf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.OTelSampleRatio != 0.25 {
		t.Fatalf("OTelSampleRatio = %v", cfg.OTelSampleRatio)
	}
	if cfg.RateLimitFailOpen {
		t.Fatalf("RateLimitFailOpen = true, want false from APPOINTLY_RATELIMIT_FAIL_OPEN")
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"APPOINTLY_STORE_DRIVER":      "mongo",
		"APPOINTLY_RATELIMIT_WINDOW":  "soon",
		"APPOINTLY_OTEL_SAMPLE_RATIO": "2",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}
