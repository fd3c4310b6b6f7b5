package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.Store != "postgres" {
		t.Fatalf("unexpected store %q", cfg.Store)
	}
	if cfg.LockTTL != 30*time.Second {
		t.Fatalf("unexpected lock ttl %s", cfg.LockTTL)
	}
	if cfg.DB.MaxOpenConns != 20 || cfg.DB.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("unexpected pool defaults %+v", cfg.DB)
	}
	if cfg.MinioBucket != "lineage-changesets" {
		t.Fatalf("unexpected bucket %q", cfg.MinioBucket)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("LINEAGE_STORE", "memory")
	t.Setenv("LINEAGE_LOCK_TTL", "5s")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Store != "memory" || cfg.LockTTL != 5*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if !cfg.MinioUseSSL || cfg.RedisURL != "redis://cache:6379/1" || cfg.DB.MaxOpenConns != 50 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("LINEAGE_STORE", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("LINEAGE_LOCK_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
