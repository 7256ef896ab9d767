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

	if cfg.GRPCAddr() != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.MaxOccurrences != 30 || !cfg.EnforceBusinessHours || cfg.MaxDuration != 24*time.Hour {
		t.Fatalf("scheduling defaults = %d %v %v", cfg.MaxOccurrences, cfg.EnforceBusinessHours, cfg.MaxDuration)
	}
	if cfg.CacheTTL != 5*time.Minute || cfg.RedisURL != "" || cfg.JWTSecret != "" {
		t.Fatalf("cache/auth defaults = %v %q %q", cfg.CacheTTL, cfg.RedisURL, cfg.JWTSecret)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AGENDA_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("AGENDA_SCHEDULING_MAX_OCCURRENCES", "12")
	t.Setenv("AGENDA_SCHEDULING_ENFORCE_BUSINESS_HOURS", "false")
	t.Setenv("AGENDA_CACHE_TTL", "90s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AGENDA_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr() != "127.0.0.1:6000" {
		t.Fatalf("GRPCAddr = %q", cfg.GRPCAddr())
	}
	if cfg.MaxOccurrences != 12 || cfg.EnforceBusinessHours {
		t.Fatalf("scheduling = %d %v", cfg.MaxOccurrences, cfg.EnforceBusinessHours)
	}
	if cfg.CacheTTL != 90*time.Second || cfg.RedisURL != "redis://localhost:6379/0" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("AGENDA_SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unparsable duration")
	}
}

func TestLoad_RejectsNonPositiveOccurrences(t *testing.T) {
	t.Setenv("AGENDA_SCHEDULING_MAX_OCCURRENCES", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero max occurrences")
	}
}
