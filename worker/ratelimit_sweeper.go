package worker

import (
	"context"
	"log/slog"
	"time"
)

type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

type RobotsPurger interface {
	PurgeRobots() int
}

// RateLimitSweeper drops expired rate-limit history and cached robots.txt rules.
type RateLimitSweeper struct {
	Limiter  Cleaner
	Scraper  RobotsPurger // optional
	Interval time.Duration
	Logger   *slog.Logger
}

func (w *RateLimitSweeper) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 15 * time.Minute
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RateLimitSweeper) runOnce(ctx context.Context) {
	purged, err := w.Limiter.Cleanup(ctx)
	if err != nil {
		w.Logger.Error("ratelimit-sweeper: cleanup error", "error", err)
	}
	robots := 0
	if w.Scraper != nil {
		robots = w.Scraper.PurgeRobots()
	}
	w.Logger.Info("ratelimit-sweeper: completed", "requests_purged", purged, "robots_purged", robots)
}
