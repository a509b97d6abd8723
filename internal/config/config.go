package config

import (
	"fmt"
	"strings"
	"time"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig selects the conversation/job persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or redis
	Path   string `mapstructure:"path"`   // sqlite data directory, ":memory:" for tests
}

// QuotaConfig is the request budget for one platform.
type QuotaConfig struct {
	PerHour        int `mapstructure:"per_hour"`
	BurstPerMinute int `mapstructure:"burst_per_minute"`
}

// RateLimitConfig controls request admission.
type RateLimitConfig struct {
	Backend       string                 `mapstructure:"backend"` // memory or redis
	Window        string                 `mapstructure:"window"`  // duration string, e.g. "60m"
	SweepInterval string                 `mapstructure:"sweep_interval"`
	Quotas        map[string]QuotaConfig `mapstructure:"quotas"`
}

// ScraperConfig controls the shared HTML fetcher.
type ScraperConfig struct {
	UserAgent  string           `mapstructure:"user_agent"`
	Timeout    string           `mapstructure:"timeout"`
	MaxRetries int              `mapstructure:"max_retries"`
	MinDelay   string           `mapstructure:"min_delay"`
	RobotsTTL  string           `mapstructure:"robots_ttl"`
	Cloudflare CloudflareConfig `mapstructure:"cloudflare"`
}

// CloudflareConfig enables Browser Rendering for JavaScript-heavy pages.
type CloudflareConfig struct {
	AccountID string `mapstructure:"account_id"`
	Token     string `mapstructure:"token"`
}

// HNConfig controls the Hacker News source.
type HNConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SearchURL string `mapstructure:"search_url"`
	BaseAPI   string `mapstructure:"base_api"`
}

// V2EXConfig controls the V2EX source.
type V2EXConfig struct {
	Token   string   `mapstructure:"token"`
	BaseURL string   `mapstructure:"base_url"`
	Nodes   []string `mapstructure:"nodes"`
}

// RedditConfig controls the Reddit source (OAuth2 client credentials).
type RedditConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	BaseURL      string `mapstructure:"base_url"`
	UserAgent    string `mapstructure:"user_agent"`
}

// TwitterConfig controls the X/Twitter source.
type TwitterConfig struct {
	BearerToken string `mapstructure:"bearer_token"`
	BaseURL     string `mapstructure:"base_url"`
}

// RSSConfig lists feeds (news, alerts, blogs) to match keywords against.
type RSSConfig struct {
	Feeds []string `mapstructure:"feeds"`
}

// ReviewsConfig controls the scraped review site.
type ReviewsConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	SearchPath string `mapstructure:"search_path"` // e.g. "/search?query=%s"
}

// BrandwatchConfig holds basic credentials exchanged for a bearer token.
type BrandwatchConfig struct {
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseURL   string `mapstructure:"base_url"`
	ProjectID string `mapstructure:"project_id"`
}

// TalkwalkerConfig holds the Talkwalker access token.
type TalkwalkerConfig struct {
	Token     string `mapstructure:"token"`
	BaseURL   string `mapstructure:"base_url"`
	ProjectID string `mapstructure:"project_id"`
}

// DataSources groups available platform adapters.
type DataSources struct {
	HN         HNConfig         `mapstructure:"hackernews"`
	V2EX       V2EXConfig       `mapstructure:"v2ex"`
	Reddit     RedditConfig     `mapstructure:"reddit"`
	Twitter    TwitterConfig    `mapstructure:"twitter"`
	RSS        RSSConfig        `mapstructure:"rss"`
	Reviews    ReviewsConfig    `mapstructure:"reviews"`
	Brandwatch BrandwatchConfig `mapstructure:"brandwatch"`
	Talkwalker TalkwalkerConfig `mapstructure:"talkwalker"`
}

// OpenAIConfig enables AI-written story cluster summaries.
type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	Language string `mapstructure:"language"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MonitorConfig controls scan orchestration and scheduling.
type MonitorConfig struct {
	Concurrency       int      `mapstructure:"concurrency"`
	PollInterval      string   `mapstructure:"poll_interval"`
	DefaultPlatforms  []string `mapstructure:"default_platforms"`
	SearchLimit       int      `mapstructure:"search_limit"`
	FailureRetry      string   `mapstructure:"failure_retry"`
	MaxFailureRetries int      `mapstructure:"max_failure_retries"`
}

// Config is the top-level configuration structure.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Sources   DataSources     `mapstructure:"sources"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Server    ServerConfig    `mapstructure:"server"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFormat == "" {
		c.App.LogFormat = "text"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data"
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "60m"
	}
	if c.RateLimit.SweepInterval == "" {
		c.RateLimit.SweepInterval = "15m"
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = "mentionwatch/1.0 (+https://github.com/mentionwatch)"
	}
	if c.Scraper.Timeout == "" {
		c.Scraper.Timeout = "10s"
	}
	if c.Scraper.MaxRetries == 0 {
		c.Scraper.MaxRetries = 3
	}
	if c.Scraper.MinDelay == "" {
		c.Scraper.MinDelay = "1s"
	}
	if c.Scraper.RobotsTTL == "" {
		c.Scraper.RobotsTTL = "1h"
	}
	if c.Sources.V2EX.BaseURL == "" {
		c.Sources.V2EX.BaseURL = "https://www.v2ex.com"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Monitor.Concurrency == 0 {
		c.Monitor.Concurrency = 4
	}
	if c.Monitor.PollInterval == "" {
		c.Monitor.PollInterval = "1m"
	}
	if c.Monitor.SearchLimit == 0 {
		c.Monitor.SearchLimit = 50
	}
	if c.Monitor.FailureRetry == "" {
		c.Monitor.FailureRetry = "5m"
	}
	if c.Monitor.MaxFailureRetries == 0 {
		c.Monitor.MaxFailureRetries = 3
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "English"
	}
}

// Validate rejects values FillDefaults cannot repair.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.RateLimit.Backend) {
	case "memory", "redis":
	default:
		return fmt.Errorf("ratelimit.backend: unsupported %q", c.RateLimit.Backend)
	}
	for name, d := range map[string]string{
		"ratelimit.window":         c.RateLimit.Window,
		"ratelimit.sweep_interval": c.RateLimit.SweepInterval,
		"scraper.timeout":          c.Scraper.Timeout,
		"scraper.min_delay":        c.Scraper.MinDelay,
		"scraper.robots_ttl":       c.Scraper.RobotsTTL,
		"monitor.poll_interval":    c.Monitor.PollInterval,
		"monitor.failure_retry":    c.Monitor.FailureRetry,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for platform, q := range c.RateLimit.Quotas {
		if q.PerHour < 0 || q.BurstPerMinute < 0 {
			return fmt.Errorf("ratelimit.quotas.%s: negative quota", platform)
		}
	}
	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("monitor.concurrency must be >= 1")
	}
	return nil
}

// Duration parses a duration field that Validate has already checked.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
