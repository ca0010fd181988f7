package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE", "APP_ENV", "RATE_LIMIT_MAX", "JWT_EXPIRES_IN"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig()
	if cfg.Port != "3000" {
		t.Fatalf("unexpected port: %q", cfg.Port)
	}
	if cfg.Store != StoreMongo {
		t.Fatalf("unexpected store: %q", cfg.Store)
	}
	if cfg.RateLimit.Max != 100 || cfg.RateLimit.Window != time.Hour {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Auth.JWT.ExpiresIn != 90*24*time.Hour {
		t.Fatalf("unexpected jwt lifetime: %v", cfg.Auth.JWT.ExpiresIn)
	}
	if cfg.IsProduction() {
		t.Fatalf("default env must not be production")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE", "Postgres")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_EXPIRES_IN", "7d")
	t.Setenv("RATE_LIMIT_WINDOW", "15m")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	cfg := LoadConfig()
	if cfg.Store != StorePostgres {
		t.Fatalf("store must be lower-cased, got %q", cfg.Store)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production")
	}
	if cfg.Auth.JWT.ExpiresIn != 7*24*time.Hour {
		t.Fatalf("unexpected jwt lifetime: %v", cfg.Auth.JWT.ExpiresIn)
	}
	if cfg.RateLimit.Window != 15*time.Minute {
		t.Fatalf("unexpected window: %v", cfg.RateLimit.Window)
	}
	if !cfg.CORS.AllowCredentials {
		t.Fatalf("expected credentials enabled")
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX", "many")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("MIGRATE_ON_START", "maybe")

	cfg := LoadConfig()
	if cfg.RateLimit.Max != 100 {
		t.Fatalf("expected fallback 100, got %d", cfg.RateLimit.Max)
	}
	if cfg.HTTP.ReadTimeout != 15*time.Second {
		t.Fatalf("expected fallback read timeout, got %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.Postgres.MigrateOnStart {
		t.Fatalf("expected fallback false")
	}
}
