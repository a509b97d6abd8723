package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mentionwatch/internal/errs"
)

func newTestScraper(t *testing.T, opts Options) *Scraper {
	t.Helper()
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
		opts.MaxDelay = 2 * time.Millisecond
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	return New(opts)
}

func TestFetchRespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\nAllow: /private/ok\n")
		default:
			fmt.Fprint(w, "<html><body>hello</body></html>")
		}
	}))
	defer srv.Close()

	s := newTestScraper(t, Options{})
	ctx := context.Background()

	if _, err := s.Fetch(ctx, srv.URL+"/private/secret"); !errors.Is(err, ErrDisallowed) {
		t.Fatalf("expected ErrDisallowed, got %v", err)
	}
	if _, err := s.Fetch(ctx, srv.URL+"/private/ok/page"); err != nil {
		t.Fatalf("allow rule should win: %v", err)
	}
	body, err := s.Fetch(ctx, srv.URL+"/public")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "<html><body>hello</body></html>" {
		t.Fatalf("body = %q", body)
	}
}

func TestMissingRobotsAllowsAndIsCached(t *testing.T) {
	var robotsHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits.Add(1)
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestScraper(t, Options{Now: func() time.Time { return now }})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Fetch(ctx, srv.URL+"/x"); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if got := robotsHits.Load(); got != 1 {
		t.Fatalf("robots.txt fetched %d times, want 1", got)
	}

	if n := s.PurgeRobots(); n != 0 {
		t.Fatalf("fresh entries purged: %d", n)
	}
	now = now.Add(DefaultRobotsTTL)
	if n := s.PurgeRobots(); n != 1 {
		t.Fatalf("expired entries purged = %d, want 1", n)
	}
	if _, err := s.Fetch(ctx, srv.URL+"/x"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := robotsHits.Load(); got != 2 {
		t.Fatalf("robots.txt fetched %d times after purge, want 2", got)
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "recovered")
	}))
	defer srv.Close()

	s := newTestScraper(t, Options{})
	body, err := s.Fetch(context.Background(), srv.URL+"/flaky")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "recovered" || calls.Load() != 3 {
		t.Fatalf("body=%q calls=%d", body, calls.Load())
	}
}

func TestFetchMapsStatusesToTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, errs.ErrRateLimited},
		{http.StatusBadGateway, errs.ErrUnavailable},
		{http.StatusForbidden, errs.ErrAuth},
		{http.StatusNotFound, errs.ErrProvider},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/robots.txt" {
					http.NotFound(w, r)
					return
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()
			s := newTestScraper(t, Options{MaxRetries: 1})
			_, err := s.Fetch(context.Background(), srv.URL+"/page")
			if !errors.Is(err, tc.want) {
				t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
			}
		})
	}
}

func TestPaceSpacesRequestsPerHost(t *testing.T) {
	var mu sync.Mutex
	var waits []time.Duration
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(Options{
		MinDelay: 2 * time.Second,
		Now:      func() time.Time { return now },
		Sleep: func(_ context.Context, d time.Duration) error {
			mu.Lock()
			waits = append(waits, d)
			mu.Unlock()
			return nil
		},
	})
	ctx := context.Background()
	_ = s.pace(ctx, "a.example", 0)
	_ = s.pace(ctx, "a.example", 0)
	_ = s.pace(ctx, "a.example", 5*time.Second)
	_ = s.pace(ctx, "b.example", 0)

	want := []time.Duration{2 * time.Second, 7 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("waits = %v, want %v", waits, want)
		}
	}
}

type stubRenderer struct{ title, content string }

func (r stubRenderer) Render(context.Context, string) (string, string, error) {
	return r.title, r.content, nil
}

func TestFetchPageUsesRendererForEmptyShell(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>App</title></head><body><div id="root"></div></body></html>`)
	}))
	defer srv.Close()

	s := newTestScraper(t, Options{Renderer: stubRenderer{title: "Rendered", content: "rendered   body"}})
	page, err := s.FetchPage(context.Background(), srv.URL+"/spa")
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if page.Title != "Rendered" || page.Content != "rendered body" {
		t.Fatalf("page = %+v", page)
	}
}
