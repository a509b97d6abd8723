package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mentionwatch/internal/errs"
)

// countingToken hands out tok-1, tok-2, ... and counts invalidations.
type countingToken struct {
	issued      int32
	invalidated int32
	current     string
}

func (c *countingToken) Token(context.Context) (string, error) {
	if c.current == "" {
		n := atomic.AddInt32(&c.issued, 1)
		c.current = fmt.Sprintf("tok-%d", n)
	}
	return c.current, nil
}

func (c *countingToken) Invalidate() {
	atomic.AddInt32(&c.invalidated, 1)
	c.current = ""
}

func TestClientRefreshesTokenOnceOn401(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	tok := &countingToken{}
	c := NewClient("reddit", srv.URL, tok)
	var out map[string]string
	if err := c.GetJSON(context.Background(), "/search", nil, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out["ok"] != "yes" {
		t.Fatalf("body: %v", out)
	}
	if n := atomic.LoadInt32(&hits); n != 2 || tok.invalidated != 1 {
		t.Fatalf("expected 2 requests and 1 invalidation, got %d/%d", n, tok.invalidated)
	}
}

func TestClientSecondAuthFailureSurfaces(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewClient("reddit", srv.URL, &countingToken{}).GetJSON(context.Background(), "x", nil, nil)
	if !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Fatalf("expected exactly one retry, got %d requests", n)
	}
}

func TestClientWithoutAuthDoesNotRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient("hackernews", srv.URL, nil).GetJSON(context.Background(), "x", nil, nil)
	if n := atomic.LoadInt32(&hits); errs.KindOf(err) != errs.KindAuth || n != 1 {
		t.Fatalf("expected single auth failure, got %v after %d", err, n)
	}
}

func TestClientStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/limited":
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/down":
			w.WriteHeader(http.StatusBadGateway)
		case "/bad":
			http.Error(w, "invalid query", http.StatusBadRequest)
		case "/garbage":
			_, _ = w.Write([]byte("{not json"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient("twitter", srv.URL, nil)
	ctx := context.Background()
	var out map[string]any

	err := c.GetJSON(ctx, "/limited", nil, &out)
	if errs.KindOf(err) != errs.KindRateLimit || errs.RetryAfterOf(err) != 30*time.Second {
		t.Fatalf("429: %v (retry %v)", err, errs.RetryAfterOf(err))
	}
	if err := c.GetJSON(ctx, "/down", nil, &out); errs.KindOf(err) != errs.KindUnavailable {
		t.Fatalf("502: %v", err)
	}
	err = c.GetJSON(ctx, "/bad", nil, &out)
	if errs.KindOf(err) != errs.KindProvider {
		t.Fatalf("400: %v", err)
	}
	if got := err.Error(); !strings.Contains(got, "invalid query") {
		t.Fatalf("provider error should carry the original message: %q", got)
	}
	if err := c.GetJSON(ctx, "/garbage", nil, &out); errs.KindOf(err) != errs.KindProvider {
		t.Fatalf("decode: %v", err)
	}
	if err := c.GetJSON(ctx, "/missing", nil, &out); errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("404: %v", err)
	}
}

func TestClientQueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "go lang" || r.Header.Get("X-Api-Version") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("User-Agent") != "tester/1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient("p", srv.URL+"/", nil, WithHeader("X-Api-Version", "2"), WithUserAgent("tester/1"))
	if err := c.GetJSON(context.Background(), "/v1/search", map[string][]string{"q": {"go lang"}}, nil); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestStaticTokenEmptyIsConfigError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	err := NewClient("twitter", srv.URL, StaticToken("")).GetJSON(context.Background(), "x", nil, nil)
	if !errors.Is(err, errs.ErrConfigMissing) {
		t.Fatalf("expected config missing, got %v", err)
	}
	var e *errs.Error
	if !errors.As(err, &e) || e.Platform != "twitter" {
		t.Fatalf("platform should be tagged: %v", err)
	}
}

func TestClientCredentialsCachesToken(t *testing.T) {
	var issued int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := atomic.AddInt32(&issued, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"cc-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	defer tokenSrv.Close()

	ts := ClientCredentials("reddit", "id", "secret", tokenSrv.URL, tokenSrv.Client())
	ctx := context.Background()
	a, err := ts.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	b, _ := ts.Token(ctx)
	if a != "cc-1" || b != "cc-1" {
		t.Fatalf("expected cached cc-1, got %q %q", a, b)
	}
	ts.Invalidate()
	c, _ := ts.Token(ctx)
	if c != "cc-2" {
		t.Fatalf("expected refreshed cc-2, got %q", c)
	}

	bad := ClientCredentials("reddit", "id", "wrong", tokenSrv.URL, tokenSrv.Client())
	if _, err := bad.Token(ctx); errs.KindOf(err) != errs.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	missing := ClientCredentials("reddit", "", "", tokenSrv.URL, nil)
	if _, err := missing.Token(ctx); errs.KindOf(err) != errs.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestBasicExchange(t *testing.T) {
	var issued int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pass, ok := r.BasicAuth(); !ok || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := atomic.AddInt32(&issued, 1)
		exp := 3600
		if n == 1 {
			// Shorter than the renewal skew: already stale when cached.
			exp = 20
		}
		fmt.Fprintf(w, `{"access_token":"bw-%d","expires_in":%d}`, n, exp)
	}))
	defer srv.Close()

	ts := BasicExchange("brandwatch", srv.URL, "user", "pw", srv.Client())
	ctx := context.Background()
	first, err := ts.Token(ctx)
	if err != nil || first != "bw-1" {
		t.Fatalf("first: %q %v", first, err)
	}
	second, _ := ts.Token(ctx)
	third, _ := ts.Token(ctx)
	if second != "bw-2" || third != "bw-2" {
		t.Fatalf("expected expired token renewed then cached, got %q %q", second, third)
	}

	_, err = BasicExchange("brandwatch", srv.URL, "user", "nope", srv.Client()).Token(ctx)
	if errs.KindOf(err) != errs.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}
