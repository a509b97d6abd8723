package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

// fakeReddit issues tokens from /token and rejects the first token it sees
// once, forcing a refresh.
func fakeReddit(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var issued int32
	var rejected int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if id, secret, ok := r.BasicAuth(); !ok || id != "cid" || secret != "csecret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := atomic.AddInt32(&issued, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"t%d","token_type":"bearer","expires_in":86400}`, n)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer t1" && atomic.CompareAndSwapInt32(&rejected, 0, 1) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("q") != "acme widgets" || r.URL.Query().Get("sort") != "new" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"children":[
			{"kind":"t3","data":{"id":"abc123","title":"Acme widgets rock","selftext":"love them",
			 "author":"test_user","permalink":"/r/test/comments/abc123/x/","created_utc":1704110400,
			 "score":15,"ups":10,"num_comments":5,"subreddit":"test","upvote_ratio":0.8,"link_flair_text":"Review"}}
		]}}`))
	})
	mux.HandleFunc("/api/info", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "t3_abc123" {
			_, _ = w.Write([]byte(`{"data":{"children":[]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"children":[{"kind":"t3","data":{"id":"abc123","title":"t"}}]}}`))
	})
	mux.HandleFunc("/api/v1/scopes", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &issued
}

func TestSearchRefreshesRejectedToken(t *testing.T) {
	srv, issued := fakeReddit(t)
	c := NewClient("cid", "csecret", srv.URL+"/token", srv.URL, "", srv.Client())
	items, err := c.Search(context.Background(), "acme widgets", model.SearchOptions{SortBy: "date"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if n := atomic.LoadInt32(issued); n != 2 {
		t.Fatalf("expected one refresh (2 tokens), got %d", n)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.ID != "abc123" || it.URL != "https://www.reddit.com/r/test/comments/abc123/x/" {
		t.Fatalf("item: %+v", it)
	}
	if it.Metadata["subreddit"] != "test" || it.Metadata["upvote_ratio"] != 0.8 || it.Metadata["flair"] != "Review" {
		t.Fatalf("metadata: %v", it.Metadata)
	}
	if it.Engagement["upvotes"] != int64(10) || it.Engagement["comments"] != int64(5) {
		t.Fatalf("engagement: %v", it.Engagement)
	}
	if it.Timestamp != "2024-01-01T12:00:00Z" {
		t.Fatalf("timestamp: %s", it.Timestamp)
	}
}

func TestBadCredentials(t *testing.T) {
	srv, _ := fakeReddit(t)
	c := NewClient("cid", "wrong", srv.URL+"/token", srv.URL, "", srv.Client())
	_, err := c.Search(context.Background(), "acme", model.SearchOptions{})
	if errs.KindOf(err) != errs.KindAuth {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if c.ValidateConfiguration(context.Background()) {
		t.Fatal("bad credentials must not validate")
	}
}

func TestGetContent(t *testing.T) {
	srv, _ := fakeReddit(t)
	c := NewClient("cid", "csecret", srv.URL+"/token", srv.URL, "", srv.Client())
	ctx := context.Background()
	got, err := c.GetContent(ctx, "reddit_abc123")
	if err != nil || got == nil || got.ID != "abc123" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if got, err := c.GetContent(ctx, "zzz"); err != nil || got != nil {
		t.Fatalf("unknown: %+v %v", got, err)
	}
	if !c.ValidateConfiguration(ctx) {
		t.Fatal("expected valid configuration")
	}
}
