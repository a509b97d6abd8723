// Package sources builds the platform adapter registry from configuration.
package sources

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/brandwatch"
	"mentionwatch/internal/config"
	"mentionwatch/internal/hackernews"
	"mentionwatch/internal/reddit"
	"mentionwatch/internal/reviews"
	"mentionwatch/internal/rss"
	"mentionwatch/internal/scrape"
	"mentionwatch/internal/talkwalker"
	"mentionwatch/internal/twitter"
	"mentionwatch/internal/v2ex"
)

// NewScraper creates the shared HTML fetcher. Cloudflare rendering is
// enabled when both account id and token are configured.
func NewScraper(cfg config.ScraperConfig, log *slog.Logger) *scrape.Scraper {
	timeout := config.Duration(cfg.Timeout, 10*time.Second)
	opts := scrape.Options{
		Platform:   reviews.Platform,
		UserAgent:  cfg.UserAgent,
		Timeout:    timeout,
		MaxRetries: cfg.MaxRetries,
		MinDelay:   config.Duration(cfg.MinDelay, time.Second),
		RobotsTTL:  config.Duration(cfg.RobotsTTL, scrape.DefaultRobotsTTL),
		Logger:     log,
	}
	if cfg.Cloudflare.AccountID != "" && cfg.Cloudflare.Token != "" {
		opts.Renderer = scrape.NewCloudflare(cfg.Cloudflare.AccountID, cfg.Cloudflare.Token, 3*timeout)
	}
	return scrape.New(opts)
}

// Build registers an adapter for every source that has enough configuration
// to run. hc is shared by the API clients; nil uses a client with the
// scraper timeout.
func Build(cfg config.Config, scraper *scrape.Scraper, hc *http.Client, log *slog.Logger) *adapter.Registry {
	if log == nil {
		log = slog.Default()
	}
	if hc == nil {
		hc = &http.Client{Timeout: config.Duration(cfg.Scraper.Timeout, 10*time.Second) * 3}
	}
	src := cfg.Sources
	opts := []adapter.ClientOption{adapter.WithHTTPClient(hc), adapter.WithLogger(log)}
	reg := adapter.NewRegistry()

	if src.HN.Enabled {
		reg.Register(adapter.Legacy(hackernews.NewClient(src.HN.SearchURL, src.HN.BaseAPI, opts...), log))
	}
	if src.V2EX.Token != "" || len(src.V2EX.Nodes) > 0 {
		reg.Register(adapter.Legacy(v2ex.NewClient(src.V2EX.BaseURL, src.V2EX.Token, src.V2EX.Nodes, opts...), log))
	}
	if src.Reddit.ClientID != "" && src.Reddit.ClientSecret != "" {
		c := reddit.NewClient(src.Reddit.ClientID, src.Reddit.ClientSecret, src.Reddit.TokenURL, src.Reddit.BaseURL, src.Reddit.UserAgent, hc)
		reg.Register(adapter.Legacy(c, log))
	}
	if src.Twitter.BearerToken != "" {
		reg.Register(adapter.Legacy(twitter.NewClient(src.Twitter.BearerToken, src.Twitter.BaseURL, opts...), log))
	}
	if feeds := nonEmpty(src.RSS.Feeds); len(feeds) > 0 {
		reg.Register(adapter.Legacy(rss.New(feeds, hc, cfg.Scraper.UserAgent), log))
	}
	if src.Reviews.BaseURL != "" && scraper != nil {
		reg.Register(adapter.Legacy(reviews.New(src.Reviews.BaseURL, src.Reviews.SearchPath, scraper), log))
	}
	if src.Brandwatch.Username != "" {
		reg.Register(adapter.FromAdvanced(brandwatch.New(brandwatch.Config{
			Username:   src.Brandwatch.Username,
			Password:   src.Brandwatch.Password,
			BaseURL:    src.Brandwatch.BaseURL,
			ProjectID:  src.Brandwatch.ProjectID,
			HTTPClient: hc,
			Logger:     log,
		})))
	}
	if src.Talkwalker.Token != "" {
		reg.Register(adapter.FromAdvanced(talkwalker.New(talkwalker.Config{
			Token:      src.Talkwalker.Token,
			BaseURL:    src.Talkwalker.BaseURL,
			ProjectID:  src.Talkwalker.ProjectID,
			HTTPClient: hc,
			Logger:     log,
		})))
	}
	log.Info("sources: adapters registered", "platforms", reg.Platforms())
	return reg
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
