package brandwatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T, tokens *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); !ok || u != "bw-user" || p != "bw-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(tokens, 1)
		_, _ = w.Write([]byte(`{"access_token":"bw-token","expires_in":3600}`))
	})
	mux.HandleFunc("/projects/77/data/mentions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer bw-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("startDate") != "2024-03-03T12:00:00Z" || q.Get("endDate") != "2024-03-10T12:00:00Z" {
			http.Error(w, "bad window", http.StatusBadRequest)
			return
		}
		switch q.Get("search") {
		case "acme":
			_, _ = w.Write([]byte(`{"results":[
				{"resourceId":"m1","title":"Acme rocks","snippet":"short","fullText":"Acme rocks, truly.",
				 "author":"ann","url":"https://blog.example/1","date":"2024-03-09T08:00:00Z",
				 "sentiment":"positive","reachEstimate":1200,"likes":4,"shares":2,"comments":1,"domain":"blog.example"},
				{"guid":"m2","snippet":"meh acme","date":"2024-03-08T08:00:00Z","sentimentScore":-0.35,"shares":7},
				{"guid":"m3","snippet":"acme ok","date":"2024-03-07T08:00:00Z","sentimentScore":0.05}
			]}`))
		case "boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`{"results":[]}`))
		}
	})
	mux.HandleFunc("/projects/77/data/mentions/m1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"resourceId":"m1","fullText":"Acme rocks","sentiment":"negative"}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer bw-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"username":"bw-user"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, password string) *Client {
	return New(Config{
		Username:   "bw-user",
		Password:   password,
		BaseURL:    srv.URL,
		ProjectID:  "77",
		HTTPClient: srv.Client(),
		Now:        func() time.Time { return fixedNow },
	})
}

func TestMonitorMapsSentimentAndReach(t *testing.T) {
	var tokens int32
	srv := newServer(t, &tokens)
	c := newClient(srv, "bw-pass")
	got, err := c.Monitor(context.Background(), []string{"acme", "boom", "quiet"})
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(got))
	}
	if n := atomic.LoadInt32(&tokens); n != 1 {
		t.Fatalf("token should be exchanged once and cached, got %d exchanges", n)
	}

	m1 := got[0]
	if m1.ID != "m1" || m1.Sentiment != model.SentimentPositive || m1.Reach != 1200 || m1.Keyword != "acme" {
		t.Fatalf("m1: %+v", m1)
	}
	if m1.Content != "Acme rocks, truly." {
		t.Fatalf("title already leads the text, got %q", m1.Content)
	}
	if !m1.PublishedAt.Equal(time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("published: %v", m1.PublishedAt)
	}

	m2 := got[1]
	if m2.Sentiment != model.SentimentNegative || m2.Reach != 7*adapter.DefaultReachPerShare {
		t.Fatalf("m2 should fall back to score and synthesized reach: %+v", m2)
	}
	if got[2].Sentiment != model.SentimentNeutral {
		t.Fatalf("0.05 is inside the neutral band: %+v", got[2])
	}
}

func TestMonitorAllKeywordsFailing(t *testing.T) {
	var tokens int32
	srv := newServer(t, &tokens)
	_, err := newClient(srv, "bw-pass").Monitor(context.Background(), []string{"boom"})
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestBadCredentials(t *testing.T) {
	var tokens int32
	srv := newServer(t, &tokens)
	c := newClient(srv, "nope")
	if c.ValidateConfiguration(context.Background()) {
		t.Fatal("bad credentials must not validate")
	}
	_, err := c.Monitor(context.Background(), []string{"acme"})
	if errs.KindOf(err) != errs.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestBridgedSearchAndLookup(t *testing.T) {
	var tokens int32
	srv := newServer(t, &tokens)
	a := adapter.FromAdvanced(newClient(srv, "bw-pass"))
	if !a.ValidateConfiguration(context.Background()) {
		t.Fatal("expected valid configuration")
	}
	items, err := a.Search(context.Background(), "acme", model.SearchOptions{Limit: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 || items[0].Metadata["sentiment"] != "positive" {
		t.Fatalf("items: %+v", items)
	}
	got, err := a.GetContent(context.Background(), "brandwatch_m1")
	if err != nil || got == nil || got.Metadata["sentiment"] != "negative" {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if got, err := a.GetContent(context.Background(), "m404"); err != nil || got != nil {
		t.Fatalf("unknown id: %+v %v", got, err)
	}
}

func TestMissingProject(t *testing.T) {
	c := New(Config{Username: "u", Password: "p"})
	if _, err := c.Monitor(context.Background(), []string{"x"}); !errors.Is(err, errs.ErrConfigMissing) {
		t.Fatalf("expected config missing, got %v", err)
	}
}
