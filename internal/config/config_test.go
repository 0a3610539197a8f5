package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "memory" || cfg.Cache.Kind != "memory" {
		t.Fatalf("storage=%q cache=%q", cfg.Storage.Driver, cfg.Cache.Kind)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Options == nil {
		t.Fatal("nil options map")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9090"
storage:
  driver: postgres
  dsn: postgres://localhost/siwe
cache:
  kind: redis
  redis:
    addr: localhost:6379
    prefix: "t:"
options:
  siwe_enable_google: "true"
  siwe_google_client_id: "cid"
  siwe_site_url: "https://example.com"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://localhost/siwe" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Cache.Redis.Prefix != "t:" {
		t.Fatalf("prefix = %q", cfg.Cache.Redis.Prefix)
	}
	if cfg.Options["siwe_google_client_id"] != "cid" {
		t.Fatalf("options = %v", cfg.Options)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("CACHE_KIND", "redis")
	t.Setenv("SIWE_OPT_GOOGLE_CLIENT_ID", "env-cid")
	t.Setenv("SIWE_OPT_ENABLE_GOOGLE", "true")
	t.Setenv("SITE_URL", "https://env.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Cache.Kind != "redis" {
		t.Fatalf("cache = %q", cfg.Cache.Kind)
	}
	if cfg.Options["siwe_google_client_id"] != "env-cid" {
		t.Fatalf("option override missing: %v", cfg.Options)
	}
	if cfg.Options["siwe_enable_google"] != "true" {
		t.Fatalf("enable override missing: %v", cfg.Options)
	}
	if cfg.Options["siwe_site_url"] != "https://env.example.com" {
		t.Fatalf("site url alias missing: %v", cfg.Options)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  shutdown_timeout: nonsense\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("bad duration accepted")
	}
}
