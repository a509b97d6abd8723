// Package monitor orchestrates keyword scans: adapter selection, rate-limit
// admission, search, normalization, persistence and scan bookkeeping.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/logging"
	"mentionwatch/internal/model"
	"mentionwatch/internal/normalize"
	"mentionwatch/internal/ratelimit"
	"mentionwatch/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	outcomeOK          = "ok"
	outcomeFailed      = "failed"
	outcomeRateLimited = "rate_limited"

	defaultPlatformTimeout = 60 * time.Second
	bookkeepingTimeout     = 10 * time.Second
)

// Adapters resolves a platform name to its adapter.
type Adapters interface {
	Get(platform string) (adapter.Adapter, error)
}

// Limiter admits platform requests per tenant.
type Limiter interface {
	Acquire(ctx context.Context, platform, tenant string) (ratelimit.Status, error)
	WaitForOptimalTiming(ctx context.Context, platform, tenant string) error
}

type Options struct {
	Adapters      Adapters
	Limiter       Limiter
	Conversations storage.ConversationStore
	Keywords      storage.KeywordStore
	Jobs          storage.JobStore
	Metrics       *Metrics
	Logger        *slog.Logger
	Now           func() time.Time

	// Concurrency bounds parallel platform scans within one ScanKeyword.
	Concurrency int
	// SearchLimit is passed to every adapter search.
	SearchLimit int
	// DefaultPlatforms is used when neither the caller nor the keyword names any.
	DefaultPlatforms []string
	// PlatformTimeout bounds one platform's search.
	PlatformTimeout time.Duration
	// FailureRetry reschedules a job whose platforms all failed, up to
	// MaxFailureRetries consecutive times; after that the normal interval applies.
	FailureRetry      time.Duration
	MaxFailureRetries int
	// Pace waits for the limiter's evenly spaced slot before each request.
	Pace bool
}

type Service struct {
	adapters      Adapters
	limiter       Limiter
	conversations storage.ConversationStore
	keywords      storage.KeywordStore
	jobs          storage.JobStore
	normalizer    *normalize.Normalizer
	metrics       *Metrics
	log           *slog.Logger
	now           func() time.Time

	concurrency       int
	searchLimit       int
	defaultPlatforms  []string
	platformTimeout   time.Duration
	failureRetry      time.Duration
	maxFailureRetries int
	pace              bool
}

func New(opts Options) *Service {
	s := &Service{
		adapters:          opts.Adapters,
		limiter:           opts.Limiter,
		conversations:     opts.Conversations,
		keywords:          opts.Keywords,
		jobs:              opts.Jobs,
		metrics:           opts.Metrics,
		log:               logging.Or(opts.Logger),
		now:               opts.Now,
		concurrency:       opts.Concurrency,
		searchLimit:       opts.SearchLimit,
		defaultPlatforms:  opts.DefaultPlatforms,
		platformTimeout:   opts.PlatformTimeout,
		failureRetry:      opts.FailureRetry,
		maxFailureRetries: opts.MaxFailureRetries,
		pace:              opts.Pace,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.searchLimit <= 0 {
		s.searchLimit = adapter.DefaultLimit
	}
	if s.platformTimeout <= 0 {
		s.platformTimeout = defaultPlatformTimeout
	}
	if s.failureRetry <= 0 {
		s.failureRetry = 5 * time.Minute
	}
	s.normalizer = normalize.New(s.now)
	return s
}

// AddKeyword creates an inactive keyword for tenant. The text is sanitized the
// same way adapters sanitize queries.
func (s *Service) AddKeyword(ctx context.Context, tenant, text string, platforms []string, freq model.Frequency) (model.Keyword, error) {
	if strings.TrimSpace(tenant) == "" {
		return model.Keyword{}, errs.New(errs.KindValidation, "", "tenant is required")
	}
	clean, err := adapter.SanitizeKeyword("", text)
	if err != nil {
		return model.Keyword{}, err
	}
	switch f := model.Frequency(strings.ToLower(string(freq))); f {
	case "":
		freq = model.FrequencyHourly
	case model.FrequencyRealtime, model.FrequencyHourly, model.FrequencyDaily:
		freq = f
	default:
		return model.Keyword{}, errs.Newf(errs.KindValidation, "", "unknown frequency %q", freq)
	}
	k := model.Keyword{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		Text:      clean,
		Platforms: cleanPlatforms(platforms),
		Frequency: freq,
		CreatedAt: s.now().UTC(),
	}
	if err := s.keywords.CreateKeyword(ctx, k); err != nil {
		return model.Keyword{}, err
	}
	return k, nil
}

func (s *Service) ListKeywords(ctx context.Context, tenant string) ([]model.Keyword, error) {
	return s.keywords.ListKeywords(ctx, tenant)
}

// ScanKeyword searches every requested platform (default: the keyword's own
// list) and ingests the results. It returns one ScanResult per platform in
// request order; platform failures are reported in the results, never as the
// returned error. The error is reserved for an unknown keyword.
func (s *Service) ScanKeyword(ctx context.Context, keywordID, tenant string, platforms []string) ([]model.ScanResult, error) {
	kw, err := s.keywords.GetKeyword(ctx, tenant, keywordID)
	if err != nil {
		return nil, err
	}
	platforms = s.platformsFor(kw, platforms)
	results := make([]model.ScanResult, len(platforms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range platforms {
		g.Go(func() error {
			results[i] = s.scanPlatform(gctx, kw, p)
			return nil
		})
	}
	_ = g.Wait()

	s.bookkeep(ctx, kw, results)
	return results, nil
}

func (s *Service) scanPlatform(ctx context.Context, kw model.Keyword, platform string) model.ScanResult {
	res := model.ScanResult{Platform: platform, Errors: []string{}}
	start := time.Now()
	fail := func(err error) model.ScanResult {
		res.Errors = append(res.Errors, err.Error())
		s.metrics.observeScan(platform, outcomeFailed, res.Mentions, time.Since(start).Seconds())
		s.log.Warn("scan: platform failed", "platform", platform, "keyword_id", kw.ID, "tenant", kw.TenantID, "err", err)
		return res
	}

	ad, err := s.adapters.Get(platform)
	if err != nil {
		return fail(err)
	}
	if s.limiter != nil {
		if s.pace {
			if err := s.limiter.WaitForOptimalTiming(ctx, platform, kw.TenantID); err != nil && ctx.Err() != nil {
				return fail(ctx.Err())
			}
		}
		st, err := s.limiter.Acquire(ctx, platform, kw.TenantID)
		switch {
		case err != nil:
			// A broken limiter store degrades to unlimited rather than blocking scans.
			s.log.Warn("scan: rate limiter unavailable", "platform", platform, "err", err)
		case !st.Allowed:
			res.Errors = append(res.Errors, errs.RateLimited(platform, st.RetryAfter).Error())
			s.metrics.denied(platform)
			s.metrics.observeScan(platform, outcomeRateLimited, 0, 0)
			s.log.Info("scan: rate limited", "platform", platform, "tenant", kw.TenantID, "retry_after", st.RetryAfter)
			return res
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.platformTimeout)
	items, err := ad.Search(sctx, kw.Text, model.SearchOptions{Limit: s.searchLimit, SortBy: "date"})
	cancel()
	if err != nil {
		return fail(errs.Provider(platform, err))
	}

	var persistErr error
	for _, raw := range items {
		c := s.conversation(kw, platform, raw)
		if err := s.conversations.UpsertConversation(ctx, c); err != nil {
			persistErr = err
			continue
		}
		res.Mentions++
	}
	if persistErr != nil {
		return fail(persistErr)
	}
	s.metrics.observeScan(platform, outcomeOK, res.Mentions, time.Since(start).Seconds())
	s.log.Info("scan: platform completed", "platform", platform, "keyword_id", kw.ID, "mentions", res.Mentions)
	return res
}

// conversation normalizes raw and attaches tenant, keyword and sentiment.
func (s *Service) conversation(kw model.Keyword, platform string, raw model.RawContent) model.Conversation {
	n := s.normalizer.Normalize(raw, platform)
	sentiment, ok := normalize.SentimentFromMetadata(n.Metadata)
	if !ok {
		sentiment = normalize.InferSentiment(n.Content)
	}
	return model.Conversation{
		NormalizedContent: n,
		TenantID:          kw.TenantID,
		KeywordID:         kw.ID,
		ExternalID:        strings.TrimPrefix(n.ID, platform+"_"),
		Sentiment:         sentiment,
		Keywords:          normalize.ExtractKeywords(n.Content),
	}
}

// bookkeep records last/next scan times on the keyword and the run outcome on
// its job. It runs even if ctx was cancelled during the scan.
func (s *Service) bookkeep(ctx context.Context, kw model.Keyword, results []model.ScanResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	now := s.now().UTC()
	next := now.Add(kw.Frequency.Interval())
	runErr := failureSummary(results)

	job, err := s.jobs.GetJob(ctx, kw.TenantID, kw.ID)
	switch {
	case err == nil:
		if runErr != "" && job.FailureCount < s.maxFailureRetries {
			next = now.Add(s.failureRetry)
		}
		if err := s.jobs.RecordRun(ctx, kw.TenantID, kw.ID, now, next, runErr); err != nil {
			s.log.Error("scan: record job run", "keyword_id", kw.ID, "err", err)
		}
	case errs.KindOf(err) != errs.KindNotFound:
		s.log.Error("scan: load job", "keyword_id", kw.ID, "err", err)
	}
	if err := s.keywords.UpdateScanTimes(ctx, kw.TenantID, kw.ID, now, next); err != nil {
		s.log.Error("scan: update scan times", "keyword_id", kw.ID, "err", err)
	}
}

// failureSummary is empty unless every platform failed.
func failureSummary(results []model.ScanResult) string {
	if len(results) == 0 {
		return ""
	}
	var msgs []string
	for _, r := range results {
		if r.OK() {
			return ""
		}
		msgs = append(msgs, r.Platform+": "+strings.Join(r.Errors, "; "))
	}
	return strings.Join(msgs, " | ")
}

// StartMonitoring activates the keyword and schedules its job to run now.
func (s *Service) StartMonitoring(ctx context.Context, keywordID, tenant string) error {
	kw, err := s.keywords.GetKeyword(ctx, tenant, keywordID)
	if err != nil {
		return err
	}
	if err := s.keywords.SetKeywordActive(ctx, tenant, keywordID, true); err != nil {
		return err
	}
	now := s.now().UTC()
	job := model.MonitoringJob{
		KeywordID: kw.ID,
		TenantID:  tenant,
		Platforms: s.platformsFor(kw, nil),
		Frequency: kw.Frequency,
		IsActive:  true,
		NextRun:   &now,
	}
	if err := s.jobs.UpsertJob(ctx, job); err != nil {
		return err
	}
	s.log.Info("monitor: started", "keyword_id", kw.ID, "tenant", tenant, "platforms", job.Platforms)
	return nil
}

// StopMonitoring deactivates the keyword and its job. A keyword that was never
// started has no job; that is not an error.
func (s *Service) StopMonitoring(ctx context.Context, keywordID, tenant string) error {
	if err := s.keywords.SetKeywordActive(ctx, tenant, keywordID, false); err != nil {
		return err
	}
	if err := s.jobs.DeactivateJob(ctx, tenant, keywordID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	s.log.Info("monitor: stopped", "keyword_id", keywordID, "tenant", tenant)
	return nil
}

// GetMonitoringStatus projects the tenant's jobs into status views.
func (s *Service) GetMonitoringStatus(ctx context.Context, tenant string) ([]model.MonitoringStatus, error) {
	jobs, err := s.jobs.ListJobs(ctx, tenant)
	if err != nil {
		return nil, err
	}
	kws, err := s.keywords.ListKeywords(ctx, tenant)
	if err != nil {
		return nil, err
	}
	text := make(map[string]string, len(kws))
	for _, k := range kws {
		text[k.ID] = k.Text
	}
	now := s.now()
	out := make([]model.MonitoringStatus, 0, len(jobs))
	for _, j := range jobs {
		st := model.MonitoringStatus{
			KeywordID: j.KeywordID,
			Keyword:   text[j.KeywordID],
			IsActive:  j.IsActive,
			Platforms: j.Platforms,
			Frequency: j.Frequency,
			LastRun:   j.LastRun,
			NextRun:   j.NextRun,
			LastError: j.LastError,
		}
		if j.IsActive && j.NextRun != nil {
			st.NextScanIn = max(0, int64(j.NextRun.Sub(now)/time.Second))
		}
		out = append(out, st)
	}
	return out, nil
}

// DueJobs lists jobs ready to run now.
func (s *Service) DueJobs(ctx context.Context) ([]model.MonitoringJob, error) {
	return s.jobs.DueJobs(ctx, s.now())
}

func (s *Service) platformsFor(kw model.Keyword, requested []string) []string {
	for _, list := range [][]string{requested, kw.Platforms, s.defaultPlatforms} {
		if p := cleanPlatforms(list); len(p) > 0 {
			return p
		}
	}
	return nil
}

// cleanPlatforms lowercases, trims and dedupes, keeping first-seen order.
func cleanPlatforms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Summary renders results as "platform=mentions" pairs for logs and the CLI.
func Summary(results []model.ScanResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString(", ")
		}
		if r.OK() {
			fmt.Fprintf(&b, "%s=%d", r.Platform, r.Mentions)
		} else {
			fmt.Fprintf(&b, "%s=error", r.Platform)
		}
	}
	return b.String()
}
