package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Redis.LockTTL != 2*time.Hour {
		t.Errorf("LockTTL = %v", cfg.Redis.LockTTL)
	}
	if cfg.Convene.MaxPages != 10 {
		t.Errorf("MaxPages = %d", cfg.Convene.MaxPages)
	}
	if cfg.Convene.SyncTimeout != 10*time.Minute {
		t.Errorf("SyncTimeout = %v", cfg.Convene.SyncTimeout)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "convene.yaml")
	yml := `addr: ":9090"
log:
  format: text
convene:
  max_pages: 3
  base_path: /events
redis:
  addr: localhost:6379
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONVENE_REDIS__ADDR", "redis:6379")
	t.Setenv("CONVENE_CONVENE__SYNC_TIMEOUT", "5m")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q", cfg.Log.Format)
	}
	if cfg.Convene.MaxPages != 3 {
		t.Errorf("MaxPages = %d", cfg.Convene.MaxPages)
	}
	if cfg.Convene.BasePath != "/events" {
		t.Errorf("BasePath = %q", cfg.Convene.BasePath)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("env should override file: Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Convene.SyncTimeout != 5*time.Minute {
		t.Errorf("SyncTimeout = %v", cfg.Convene.SyncTimeout)
	}
	if cfg.Convene.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout default lost: %v", cfg.Convene.FetchTimeout)
	}
}

func TestLoadConfig_InvalidFormat(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONVENE_LOG__FORMAT", "xml")

	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestLoadConfig_StaleTimeoutBelowSync(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONVENE_CONVENE__SYNC_TIMEOUT", "3h")

	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error when stale_job_timeout does not exceed sync_timeout")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"CONVENE_ADDR":                  "addr",
		"CONVENE_GEOCODE__MAPBOX_TOKEN": "geocode.mapbox_token",
		"CONVENE_CONVENE__MAX_PAGES":    "convene.max_pages",
		"CONVENE_CONFIG":                "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
