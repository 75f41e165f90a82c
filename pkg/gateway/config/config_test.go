package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("INTERVIEWD_AUTH_MODE", "disabled")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr=%q", cfg.Addr)
	}
	if cfg.SessionDuration != 30*time.Minute {
		t.Errorf("SessionDuration=%v", cfg.SessionDuration)
	}
	if cfg.SilenceAutoSubmit != 5*time.Second {
		t.Errorf("SilenceAutoSubmit=%v", cfg.SilenceAutoSubmit)
	}
	if cfg.SilencePollInterval != 100*time.Millisecond {
		t.Errorf("SilencePollInterval=%v", cfg.SilencePollInterval)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("AutosaveInterval=%v", cfg.AutosaveInterval)
	}
	if cfg.SnapshotStaleness != 24*time.Hour {
		t.Errorf("SnapshotStaleness=%v", cfg.SnapshotStaleness)
	}
	if cfg.RedisURL != "" || cfg.DatabaseURL != "" {
		t.Error("expected persistence URLs empty by default")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("INTERVIEWD_AUTH_MODE", "disabled")
	t.Setenv("INTERVIEWD_ADDR", ":9090")
	t.Setenv("INTERVIEWD_SESSION_DURATION", "45m")
	t.Setenv("INTERVIEWD_SILENCE_AUTO_SUBMIT", "8s")
	t.Setenv("INTERVIEWD_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr=%q", cfg.Addr)
	}
	if cfg.SessionDuration != 45*time.Minute {
		t.Errorf("SessionDuration=%v", cfg.SessionDuration)
	}
	if cfg.SilenceAutoSubmit != 8*time.Second {
		t.Errorf("SilenceAutoSubmit=%v", cfg.SilenceAutoSubmit)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL=%q", cfg.RedisURL)
	}
}

func TestLoadFromEnv_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("INTERVIEWD_AUTH_MODE", "disabled")
	t.Setenv("INTERVIEWD_SESSION_DURATION", "not-a-duration")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.SessionDuration != 30*time.Minute {
		t.Errorf("expected default duration, got %v", cfg.SessionDuration)
	}
}

func TestLoadFromEnv_RequiredAuthNeedsKeys(t *testing.T) {
	t.Setenv("INTERVIEWD_AUTH_MODE", "required")
	t.Setenv("INTERVIEWD_API_KEYS", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for required auth without keys")
	}

	t.Setenv("INTERVIEWD_API_KEYS", "k1, k2")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if len(cfg.APIKeys) != 2 {
		t.Errorf("APIKeys=%v", cfg.APIKeys)
	}
	if _, ok := cfg.APIKeys["k2"]; !ok {
		t.Error("expected trimmed key k2")
	}
}

func TestLoadFromEnv_InvalidAuthMode(t *testing.T) {
	t.Setenv("INTERVIEWD_AUTH_MODE", "mandatory")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for unknown auth mode")
	}
}

func TestLoadFromEnv_PollMustBeBelowThreshold(t *testing.T) {
	t.Setenv("INTERVIEWD_AUTH_MODE", "disabled")
	t.Setenv("INTERVIEWD_SILENCE_AUTO_SUBMIT", "100ms")
	t.Setenv("INTERVIEWD_SILENCE_POLL_INTERVAL", "200ms")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error when poll interval exceeds the threshold")
	}
}

func TestLoadFromEnv_CORSOrigins(t *testing.T) {
	t.Setenv("INTERVIEWD_AUTH_MODE", "disabled")
	t.Setenv("INTERVIEWD_CORS_ORIGINS", "https://app.prepdeck.io, https://staging.prepdeck.io")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins=%v", cfg.CORSAllowedOrigins)
	}
}
