package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mentionwatch/internal/jobs"
	"mentionwatch/internal/model"
	"mentionwatch/internal/monitor"

	"golang.org/x/sync/errgroup"
)

// Scanner is the part of the monitoring service the scheduler drives.
type Scanner interface {
	DueJobs(ctx context.Context) ([]model.MonitoringJob, error)
	ScanKeyword(ctx context.Context, keywordID, tenant string, platforms []string) ([]model.ScanResult, error)
}

// ScanScheduler polls for due monitoring jobs and scans each one, recording
// every execution in the job tracker.
type ScanScheduler struct {
	Monitor     Scanner
	Tracker     *jobs.Tracker
	Interval    time.Duration
	Concurrency int
	Logger      *slog.Logger
}

func (w *ScanScheduler) Start(ctx context.Context) error {
	w.defaults()

	// initial run
	w.runOnce(ctx)

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

func (w *ScanScheduler) defaults() {
	if w.Interval <= 0 {
		w.Interval = time.Minute
	}
	if w.Concurrency <= 0 {
		w.Concurrency = 2
	}
	if w.Tracker == nil {
		w.Tracker = jobs.NewTracker(0, nil)
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
}

// runOnce scans every due job and returns how many ran.
func (w *ScanScheduler) runOnce(ctx context.Context) int {
	due, err := w.Monitor.DueJobs(ctx)
	if err != nil {
		w.Logger.Error("scan-scheduler: due jobs error", "error", err)
		return 0
	}
	if len(due) == 0 {
		return 0
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.Concurrency)
	for _, job := range due {
		g.Go(func() error {
			err := w.Tracker.Run(gctx, job.KeywordID, job.TenantID, func(ctx context.Context) error {
				results, err := w.Monitor.ScanKeyword(ctx, job.KeywordID, job.TenantID, job.Platforms)
				if err != nil {
					return err
				}
				summary := monitor.Summary(results)
				if allFailed(results) {
					return errors.New("all platforms failed: " + summary)
				}
				w.Logger.Info("scan-scheduler: scanned", "keyword_id", job.KeywordID, "tenant", job.TenantID, "results", summary)
				return nil
			})
			if err != nil {
				w.Logger.Warn("scan-scheduler: scan failed", "keyword_id", job.KeywordID, "tenant", job.TenantID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	w.Logger.Info("scan-scheduler: completed", "jobs", len(due))
	return len(due)
}

func allFailed(results []model.ScanResult) bool {
	for _, r := range results {
		if r.OK() {
			return false
		}
	}
	return len(results) > 0
}
