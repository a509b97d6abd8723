// Package ratelimit implements per-(platform, tenant) sliding-window request
// admission. It is advisory pacing: providers enforce their own limits, this
// only keeps scans from tripping them needlessly.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"mentionwatch/internal/logging"
)

const (
	// DefaultWindow is the rolling window quotas apply to.
	DefaultWindow = 60 * time.Minute
	// RetentionPeriod is how long Cleanup keeps entries.
	RetentionPeriod = 24 * time.Hour

	burstWindow = time.Minute
)

// Status is the result of an admission check.
type Status struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after"`
}

// Options configures a Limiter. Zero values select defaults.
type Options struct {
	Window time.Duration
	Quotas map[string]Quota
	Logger *slog.Logger
	// Now and Jitter are injectable for tests.
	Now    func() time.Time
	Jitter func(max time.Duration) time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Limiter admits requests per platform and tenant.
type Limiter struct {
	store  Store
	window time.Duration
	log    *slog.Logger
	now    func() time.Time
	jitter func(time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) error

	mu     sync.RWMutex
	quotas map[string]Quota
}

func New(store Store, opts Options) *Limiter {
	l := &Limiter{
		store:  store,
		window: opts.Window,
		log:    logging.Or(opts.Logger),
		now:    opts.Now,
		jitter: opts.Jitter,
		sleep:  opts.Sleep,
		quotas: DefaultQuotas(),
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.jitter == nil {
		l.jitter = randomJitter
	}
	if l.sleep == nil {
		l.sleep = sleepCtx
	}
	for p, q := range opts.Quotas {
		l.quotas[strings.ToLower(p)] = q
	}
	return l
}

// Key is the storage key for a platform and tenant pair.
func Key(platform, tenant string) string {
	return "ratelimit:" + strings.ToLower(platform) + ":" + tenant
}

// QuotaFor returns the budget for platform, falling back to DefaultQuota.
func (l *Limiter) QuotaFor(platform string) Quota {
	l.mu.RLock()
	q, ok := l.quotas[strings.ToLower(platform)]
	l.mu.RUnlock()
	if !ok || q.PerHour <= 0 {
		return DefaultQuota
	}
	return q
}

// SetQuota overrides the budget for platform.
func (l *Limiter) SetQuota(platform string, q Quota) {
	l.mu.Lock()
	l.quotas[strings.ToLower(platform)] = q
	l.mu.Unlock()
}

// CheckLimit reports whether a request for platform/tenant is currently permitted.
// It does not record anything.
func (l *Limiter) CheckLimit(ctx context.Context, platform, tenant string) (Status, error) {
	now := l.now()
	ts, err := l.store.Timestamps(ctx, Key(platform, tenant), now.Add(-l.window))
	if err != nil {
		return Status{}, err
	}
	return l.status(ts, l.QuotaFor(platform), now), nil
}

// RecordRequest appends a request made now.
func (l *Limiter) RecordRequest(ctx context.Context, platform, tenant string) error {
	return l.store.Record(ctx, Key(platform, tenant), l.now())
}

// Acquire checks and records in one atomic step. When the returned status is
// not Allowed nothing was recorded.
func (l *Limiter) Acquire(ctx context.Context, platform, tenant string) (Status, error) {
	now := l.now()
	q := l.QuotaFor(platform)
	key := Key(platform, tenant)
	bounds := []Bound{{Since: now.Add(-l.window), Max: q.PerHour}}
	if q.BurstPerMinute > 0 {
		bounds = append(bounds, Bound{Since: now.Add(-burstWindow), Max: q.BurstPerMinute})
	}
	ok, err := l.store.TryRecord(ctx, key, now, now.Add(-l.window), bounds)
	if err != nil {
		return Status{}, err
	}
	ts, err := l.store.Timestamps(ctx, key, now.Add(-l.window))
	if err != nil {
		return Status{}, err
	}
	st := l.status(ts, q, now)
	if ok {
		st.Allowed = true
		st.RetryAfter = 0
		return st, nil
	}
	st.Allowed = false
	if st.RetryAfter <= 0 {
		st.RetryAfter = time.Second
	}
	l.log.Debug("ratelimit: denied", "platform", platform, "tenant", tenant, "retry_after", st.RetryAfter)
	return st, nil
}

// WaitForOptimalTiming spaces requests evenly across the window with a small
// random jitter. It returns early when ctx is done.
func (l *Limiter) WaitForOptimalTiming(ctx context.Context, platform, tenant string) error {
	st, err := l.CheckLimit(ctx, platform, tenant)
	if err != nil {
		return err
	}
	if !st.Allowed {
		return l.sleep(ctx, st.RetryAfter)
	}
	wait, err := l.spacing(ctx, platform, tenant)
	if err != nil {
		return err
	}
	if wait <= 0 {
		return nil
	}
	return l.sleep(ctx, wait)
}

// spacing is the delay until the next evenly spaced slot plus jitter.
func (l *Limiter) spacing(ctx context.Context, platform, tenant string) (time.Duration, error) {
	q := l.QuotaFor(platform)
	interval := l.window / time.Duration(q.PerHour)
	now := l.now()
	ts, err := l.store.Timestamps(ctx, Key(platform, tenant), now.Add(-l.window))
	if err != nil {
		return 0, err
	}
	if len(ts) == 0 {
		return 0, nil
	}
	next := ts[len(ts)-1].Add(interval)
	wait := next.Sub(now)
	if wait <= 0 {
		return 0, nil
	}
	return wait + l.jitter(interval/10), nil
}

// Cleanup discards entries older than RetentionPeriod across all keys.
func (l *Limiter) Cleanup(ctx context.Context) (int, error) {
	n, err := l.store.Purge(ctx, l.now().Add(-RetentionPeriod))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.Info("ratelimit: cleanup", "removed", n)
	}
	return n, nil
}

func (l *Limiter) status(ts []time.Time, q Quota, now time.Time) Status {
	count := len(ts)
	st := Status{
		Remaining: max(0, q.PerHour-count),
		ResetAt:   now,
	}
	if count > 0 {
		st.ResetAt = ts[0].Add(l.window)
	}
	hourOK := count < q.PerHour
	burstOK := true
	var burstOldest time.Time
	if q.BurstPerMinute > 0 {
		since := now.Add(-burstWindow)
		recent := 0
		for _, t := range ts {
			if !t.Before(since) {
				if recent == 0 {
					burstOldest = t
				}
				recent++
			}
		}
		burstOK = recent < q.BurstPerMinute
	}
	st.Allowed = hourOK && burstOK
	if st.Allowed {
		return st
	}
	var retry time.Duration
	if !hourOK {
		retry = ts[0].Add(l.window).Sub(now)
	}
	if !burstOK {
		if d := burstOldest.Add(burstWindow).Sub(now); d > retry {
			retry = d
		}
	}
	if retry <= 0 {
		retry = time.Second
	}
	st.RetryAfter = retry
	return st
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
