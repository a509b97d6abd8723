// Package scrape is the shared fetcher for sources without an official API:
// robots.txt compliance, polite per-host pacing, retrying fetches and
// tolerant HTML extraction.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/logging"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	maxPageBytes    = 5 << 20
	maxErrBodyBytes = 1 << 10
	emptyShellWords = 20
)

// ErrDisallowed is returned when robots.txt forbids fetching a URL.
var ErrDisallowed = errors.New("scrape: disallowed by robots.txt")

// Renderer produces readable content for JavaScript-heavy pages.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (title, content string, err error)
}

// Options configures a Scraper. Zero values select defaults.
type Options struct {
	Platform   string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MinDelay   time.Duration
	RobotsTTL  time.Duration
	Client     *http.Client
	Renderer   Renderer
	Logger     *slog.Logger
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Scraper is safe for concurrent use. The robots cache and per-host pacing
// state live on the instance.
type Scraper struct {
	platform  string
	userAgent string
	minDelay  time.Duration
	robotsTTL time.Duration
	client    *http.Client
	renderer  Renderer
	executor  failsafe.Executor[*http.Response]
	log       *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error

	mu        sync.Mutex
	robots    map[string]*robotsRules
	lastFetch map[string]time.Time
}

func New(opts Options) *Scraper {
	if opts.UserAgent == "" {
		opts.UserAgent = "mentionwatch/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = 8 * time.Second
	}
	if opts.RobotsTTL <= 0 {
		opts.RobotsTTL = DefaultRobotsTTL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Platform == "" {
		opts.Platform = "scraper"
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(_ *http.Response, err error) bool { return isRetryable(err) }).
		WithBackoff(opts.BaseDelay, opts.MaxDelay).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()
	return &Scraper{
		platform:  opts.Platform,
		userAgent: opts.UserAgent,
		minDelay:  opts.MinDelay,
		robotsTTL: opts.RobotsTTL,
		client:    opts.Client,
		renderer:  opts.Renderer,
		executor:  failsafe.With(retry),
		log:       logging.Or(opts.Logger),
		now:       opts.Now,
		sleep:     opts.Sleep,
		robots:    make(map[string]*robotsRules),
		lastFetch: make(map[string]time.Time),
	}
}

// statusError carries a retryable upstream status out of the retry loop.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d", e.code) }

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Fetch downloads pageURL after checking robots.txt and waiting out the
// per-host delay. Transient failures are retried with exponential backoff.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil, errs.Newf(errs.KindValidation, s.platform, "invalid url %q", pageURL)
	}
	rules := s.rulesFor(ctx, u)
	if !rules.allowed(u.EscapedPath()) {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrDisallowed)
	}
	if err := s.pace(ctx, u.Host, rules.delay); err != nil {
		return nil, err
	}
	return s.get(ctx, pageURL)
}

// FetchPage fetches and extracts pageURL. When the page looks like an empty
// JavaScript shell and a Renderer is configured, the rendered text is used.
func (s *Scraper) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	data, err := s.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	page := Extract(data, pageURL)
	if s.renderer != nil && len(strings.Fields(page.Content)) < emptyShellWords {
		title, content, rerr := s.renderer.Render(ctx, pageURL)
		if rerr != nil {
			s.log.Warn("scrape: render failed", "url", pageURL, "err", rerr)
			return page, nil
		}
		if title != "" {
			page.Title = title
		}
		page.Content = collapseSpace(content)
	}
	return page, nil
}

// Allowed reports whether robots.txt permits fetching pageURL.
func (s *Scraper) Allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return false
	}
	return s.rulesFor(ctx, u).allowed(u.EscapedPath())
}

// PurgeRobots drops cached robots.txt rules older than the TTL.
func (s *Scraper) PurgeRobots() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for origin, r := range s.robots {
		if now.Sub(r.fetchedAt) >= s.robotsTTL {
			delete(s.robots, origin)
			n++
		}
	}
	return n
}

func (s *Scraper) get(ctx context.Context, target string) ([]byte, error) {
	resp, err := s.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if retryableStatus(resp.StatusCode) {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
			resp.Body.Close()
			return nil, &statusError{code: resp.StatusCode, body: string(b), retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		}
		return resp, nil
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			e := errs.FromStatus(s.platform, se.code, se.body)
			e.RetryAfter = se.retryAfter
			return nil, e
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Provider(s.platform, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
		return nil, errs.FromStatus(s.platform, resp.StatusCode, string(b))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// rulesFor returns cached rules for the URL's origin, fetching robots.txt on a miss.
// Unreachable or missing robots.txt allows everything.
func (s *Scraper) rulesFor(ctx context.Context, u *url.URL) *robotsRules {
	origin := u.Scheme + "://" + u.Host
	now := s.now()
	s.mu.Lock()
	if r, ok := s.robots[origin]; ok && now.Sub(r.fetchedAt) < s.robotsTTL {
		s.mu.Unlock()
		return r
	}
	s.mu.Unlock()

	rules := &robotsRules{}
	if body, err := s.fetchRobots(ctx, origin+"/robots.txt"); err == nil {
		rules = parseRobots(body, s.userAgent)
	} else {
		s.log.Debug("scrape: robots.txt unavailable, allowing", "origin", origin, "err", err)
	}
	rules.fetchedAt = now

	s.mu.Lock()
	s.robots[origin] = rules
	s.mu.Unlock()
	return rules
}

// fetchRobots is a single attempt; robots.txt is never worth retrying.
func (s *Scraper) fetchRobots(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("robots.txt status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	return string(b), err
}

// pace waits until at least max(minDelay, crawlDelay) has passed since the
// previous fetch to the same host, then claims the slot.
func (s *Scraper) pace(ctx context.Context, host string, crawlDelay time.Duration) error {
	delay := max(s.minDelay, crawlDelay)
	s.mu.Lock()
	now := s.now()
	next := s.lastFetch[host].Add(delay)
	wait := next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	s.lastFetch[host] = now.Add(wait)
	s.mu.Unlock()
	if wait == 0 {
		return nil
	}
	return s.sleep(ctx, wait)
}

func parseRetryAfter(v string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
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
