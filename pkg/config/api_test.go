package config

import (
	"testing"
	"time"
)

func TestLoadAPIConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadAPIConfig(); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoadAPIConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	cfg, err := LoadAPIConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":4000" || cfg.TokenTTL != 24*time.Hour || cfg.DatabaseDriver != DriverPostgres {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.WSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.WSAllowedOrigins)
	}
}

func TestLoadAPIConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_DRIVER", "mongo")
	if _, err := LoadAPIConfig(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
