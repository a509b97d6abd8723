package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	p := writeConfig(t, `
storage:
  driver: sqlite
  path: ":memory:"
monitor:
  concurrency: 2
ratelimit:
  quotas:
    reddit:
      per_hour: 60
`)
	t.Setenv("MENTIONWATCH_STORAGE_DRIVER", "redis")

	cfg, err := loadConfig(viper.New(), p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != "redis" {
		t.Fatalf("env override not applied: %q", cfg.Storage.Driver)
	}
	if cfg.Monitor.Concurrency != 2 || cfg.RateLimit.Quotas["reddit"].PerHour != 60 {
		t.Fatalf("file values: %+v %+v", cfg.Monitor, cfg.RateLimit.Quotas)
	}
	if cfg.Server.Addr != ":8080" || cfg.RateLimit.Window != "60m" {
		t.Fatalf("defaults not filled: %q %q", cfg.Server.Addr, cfg.RateLimit.Window)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	p := writeConfig(t, "ratelimit:\n  backend: memcached\n")
	_, err := loadConfig(viper.New(), p)
	if err == nil || !strings.Contains(err.Error(), "ratelimit.backend") {
		t.Fatalf("want backend error, got %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("want error for an explicit missing file")
	}
}
