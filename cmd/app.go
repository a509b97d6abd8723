package cmd

import (
	"log/slog"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/ai"
	"mentionwatch/internal/config"
	"mentionwatch/internal/jobs"
	"mentionwatch/internal/monitor"
	"mentionwatch/internal/ratelimit"
	"mentionwatch/internal/redisclient"
	"mentionwatch/internal/scrape"
	"mentionwatch/internal/sources"
	"mentionwatch/internal/storage"
	"mentionwatch/internal/trends"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// app is every long-lived component built from configuration.
type app struct {
	cfg      config.Config
	sqlite   *storage.SQLiteStore
	rdb      *redis.Client
	scraper  *scrape.Scraper
	registry *adapter.Registry
	limiter  *ratelimit.Limiter
	monitor  *monitor.Service
	trends   *trends.Service
	tracker  *jobs.Tracker
	promReg  *prometheus.Registry
}

// newApp wires storage, rate limiting, adapters and services. Keywords and
// monitoring jobs always live in SQLite; conversations go to Redis when
// storage.driver is "redis".
func newApp(cfg config.Config) (*app, error) {
	log := slog.Default()
	a := &app{cfg: cfg, promReg: prometheus.NewRegistry(), tracker: jobs.NewTracker(0, nil)}
	a.promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.sqlite = st

	useRedis := strings.EqualFold(cfg.Storage.Driver, "redis") || strings.EqualFold(cfg.RateLimit.Backend, "redis")
	if useRedis {
		a.rdb = redisclient.New(cfg.Redis)
	}

	var conversations storage.ConversationStore = st
	if strings.EqualFold(cfg.Storage.Driver, "redis") {
		conversations = storage.NewRedisStore(a.rdb, storage.DefaultConversationTTL)
	}

	var window ratelimit.Store = ratelimit.NewMemoryStore()
	if strings.EqualFold(cfg.RateLimit.Backend, "redis") {
		window = ratelimit.NewRedisStore(a.rdb)
	}
	a.limiter = ratelimit.New(window, ratelimit.Options{
		Window: config.Duration(cfg.RateLimit.Window, time.Hour),
		Quotas: ratelimit.QuotasFromConfig(cfg.RateLimit.Quotas),
		Logger: log,
	})

	a.scraper = sources.NewScraper(cfg.Scraper, log)
	a.registry = sources.Build(cfg, a.scraper, nil, log)

	a.monitor = monitor.New(monitor.Options{
		Adapters:          a.registry,
		Limiter:           a.limiter,
		Conversations:     conversations,
		Keywords:          st,
		Jobs:              st,
		Metrics:           monitor.NewMetrics(a.promReg),
		Logger:            log,
		Concurrency:       cfg.Monitor.Concurrency,
		SearchLimit:       cfg.Monitor.SearchLimit,
		DefaultPlatforms:  cfg.Monitor.DefaultPlatforms,
		FailureRetry:      config.Duration(cfg.Monitor.FailureRetry, 5*time.Minute),
		MaxFailureRetries: cfg.Monitor.MaxFailureRetries,
	})

	tcfg := trends.Config{Store: conversations, Logger: log}
	if cfg.OpenAI.APIKey != "" {
		summarizer, err := ai.NewOpenAI(ai.Config{
			APIKey:   cfg.OpenAI.APIKey,
			Model:    cfg.OpenAI.Model,
			BaseURL:  cfg.OpenAI.BaseURL,
			Language: cfg.OpenAI.Language,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		tcfg.Summarizer = summarizer
	}
	a.trends = trends.New(tcfg)
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.sqlite != nil {
		a.sqlite.Close()
	}
}
