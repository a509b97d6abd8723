package v2ex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

func TestSearchFiltersNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("node_name") {
		case "go":
			_, _ = w.Write([]byte(`[
				{"id":1,"title":"Go generics tips","content":"type params","replies":3,"created":1700000000,
				 "member":{"username":"alice"},"node":{"name":"go"}},
				{"id":2,"title":"Rust vs Zig","content":"nothing here","replies":9,"created":1700000100,"node":{"name":"go"}}
			]`))
		case "programmer":
			_, _ = w.Write([]byte(`[
				{"id":1,"title":"Go generics tips","content":"type params","replies":3,"created":1700000000},
				{"id":3,"title":"Generics in Go 1.22","url":"https://www.v2ex.com/t/3","replies":1,"created":1700000200}
			]`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", []string{"go", "programmer", "broken"})
	items, err := c.Search(context.Background(), "GO generics", model.SearchOptions{SortBy: "recent"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 deduplicated matches, got %d: %+v", len(items), items)
	}
	if items[0].ID != "3" || items[1].ID != "1" {
		t.Fatalf("expected newest first, got %s, %s", items[0].ID, items[1].ID)
	}
	if items[1].Author != "alice" || items[1].URL != srv.URL+"/t/1" {
		t.Fatalf("topic 1: %+v", items[1])
	}
	if items[1].Engagement["replies"] != 3 || items[1].Metadata["node"] != "go" {
		t.Fatalf("topic 1 fields: %+v", items[1])
	}
}

func TestSearchAllNodesFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, "", []string{"go"}).Search(context.Background(), "go", model.SearchOptions{})
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestGetContentAndValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/topics/show.json":
			if r.URL.Query().Get("id") == "42" {
				_, _ = w.Write([]byte(`[{"id":42,"title":"hello","created":1700000000}]`))
				return
			}
			_, _ = w.Write([]byte(`[]`))
		case "/api/site/info.json":
			_, _ = w.Write([]byte(`{"title":"V2EX"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	ctx := context.Background()
	got, err := c.GetContent(ctx, "v2ex_42")
	if err != nil || got == nil || got.ID != "42" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if got, err := c.GetContent(ctx, "7"); err != nil || got != nil {
		t.Fatalf("missing topic: %+v %v", got, err)
	}
	if !c.ValidateConfiguration(ctx) {
		t.Fatal("expected valid configuration")
	}
}
