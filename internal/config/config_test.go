package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Catalog.BaseURL != "https://earthquake.usgs.gov" {
		t.Fatalf("base URL = %q", cfg.Catalog.BaseURL)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 10*time.Minute {
		t.Fatalf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.Fetch.BatchThreshold != 500 || cfg.Fetch.PreviewSize != 100 {
		t.Fatalf("fetch defaults = %+v", cfg.Fetch)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quakewatch.yaml")
	content := []byte(`
server:
  address: ":9090"
catalog:
  timeout: 30s
cache:
  enabled: false
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Catalog.Timeout != 30*time.Second {
		t.Fatalf("timeout = %s", cfg.Catalog.Timeout)
	}
	if cfg.Cache.Enabled {
		t.Fatalf("cache should be disabled")
	}
	// Fields absent from the file keep their defaults.
	if cfg.Server.MetricsAddress != ":2112" {
		t.Fatalf("metrics address = %q", cfg.Server.MetricsAddress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUAKEWATCH_SERVER_ADDRESS", ":7070")
	t.Setenv("QUAKEWATCH_CACHE_TTL", "30s")
	t.Setenv("QUAKEWATCH_CACHE_ENABLED", "false")
	t.Setenv("QUAKEWATCH_FETCH_BATCH_THRESHOLD", "250")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("address = %q", cfg.Server.Address)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("ttl = %s", cfg.Cache.TTL)
	}
	if cfg.Cache.Enabled {
		t.Fatalf("cache should be disabled")
	}
	if cfg.Fetch.BatchThreshold != 250 {
		t.Fatalf("batch threshold = %d", cfg.Fetch.BatchThreshold)
	}
}
