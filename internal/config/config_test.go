package config

import (
	"testing"
	"time"
)

func TestFillDefaults(t *testing.T) {
	var c Config
	c.FillDefaults()

	if c.Storage.Driver != "sqlite" {
		t.Errorf("storage driver default = %q", c.Storage.Driver)
	}
	if c.RateLimit.Window != "60m" {
		t.Errorf("ratelimit window default = %q", c.RateLimit.Window)
	}
	if c.Scraper.Timeout != "10s" || c.Scraper.MaxRetries != 3 {
		t.Errorf("scraper defaults = %q/%d", c.Scraper.Timeout, c.Scraper.MaxRetries)
	}
	if c.Monitor.Concurrency != 4 {
		t.Errorf("monitor concurrency default = %d", c.Monitor.Concurrency)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestFillDefaultsKeepsExplicitValues(t *testing.T) {
	c := Config{Storage: StorageConfig{Driver: "redis"}, Monitor: MonitorConfig{Concurrency: 9}}
	c.FillDefaults()
	if c.Storage.Driver != "redis" || c.Monitor.Concurrency != 9 {
		t.Fatalf("explicit values overwritten: %+v", c)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"bad backend", func(c *Config) { c.RateLimit.Backend = "etcd" }},
		{"bad window", func(c *Config) { c.RateLimit.Window = "soon" }},
		{"negative quota", func(c *Config) {
			c.RateLimit.Quotas = map[string]QuotaConfig{"reddit": {PerHour: -1}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c Config
			c.FillDefaults()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("Duration(90s) = %s", got)
	}
	if got := Duration("nope", time.Minute); got != time.Minute {
		t.Errorf("Duration(nope) = %s", got)
	}
}
