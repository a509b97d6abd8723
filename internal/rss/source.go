// Package rss matches keywords against configured RSS/Atom feeds (news sites,
// alert feeds, blogs).
package rss

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
	"mentionwatch/internal/scrape"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
)

const (
	Platform = "rss"

	maxFeedBytes     = 10 << 20
	feedConcurrency  = 4
	defaultUserAgent = "mentionwatch/1.0 (+feed reader)"
)

type Source struct {
	feeds     []string
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

func New(feeds []string, client *http.Client, userAgent string) *Source {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Source{
		feeds:     feeds,
		client:    client,
		userAgent: cmp.Or(userAgent, defaultUserAgent),
		log:       slog.Default(),
	}
}

func (s *Source) Platform() string { return Platform }

type entry struct {
	feed string
	item *gofeed.Item
}

// Search fetches every feed and returns the items mentioning keyword. A feed
// that fails is logged and skipped; only when all fail is an error returned.
func (s *Source) Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error) {
	kw, err := adapter.SanitizeKeyword(Platform, keyword)
	if err != nil {
		return nil, err
	}
	if len(s.feeds) == 0 {
		return nil, errs.New(errs.KindConfig, Platform, "no feeds configured")
	}

	perFeed := make([][]entry, len(s.feeds))
	failures := make([]error, len(s.feeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedConcurrency)
	for i, u := range s.feeds {
		g.Go(func() error {
			feed, err := s.fetch(gctx, u)
			if err != nil {
				s.log.Warn("rss: feed fetch failed", "feed", u, "err", err)
				failures[i] = err
				return nil
			}
			for _, it := range feed.Items {
				if it != nil {
					perFeed[i] = append(perFeed[i], entry{feed: feed.Title, item: it})
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []entry
	failed := 0
	var lastErr error
	for i := range s.feeds {
		if failures[i] != nil {
			failed++
			lastErr = failures[i]
			continue
		}
		all = append(all, perFeed[i]...)
	}
	if failed == len(s.feeds) {
		return nil, lastErr
	}

	seen := make(map[string]bool)
	var matched []entry
	for _, e := range all {
		it := e.item
		if !adapter.MatchesKeyword(it.Title+" "+it.Description+" "+it.Content, kw) {
			continue
		}
		id := itemID(it)
		if seen[id] {
			continue
		}
		seen[id] = true
		if t := published(it); t != nil {
			if opts.Since != nil && t.Before(*opts.Since) {
				continue
			}
			if opts.Until != nil && t.After(*opts.Until) {
				continue
			}
		}
		matched = append(matched, e)
	}
	if opts.SortBy == "date" || opts.SortBy == "recent" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := published(matched[i].item), published(matched[j].item)
			return a != nil && (b == nil || a.After(*b))
		})
	}
	if limit := adapter.ClampLimit(opts.Limit, adapter.DefaultLimit, 500); len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]model.RawContent, 0, len(matched))
	for _, e := range matched {
		out = append(out, convert(e))
	}
	return out, nil
}

// GetContent is unsupported: feeds have no lookup by id.
func (s *Source) GetContent(context.Context, string) (*model.RawContent, error) {
	return nil, nil
}

// ValidateConfiguration fetches and parses the first feed.
func (s *Source) ValidateConfiguration(ctx context.Context) bool {
	if len(s.feeds) == 0 {
		return false
	}
	_, err := s.fetch(ctx, s.feeds[0])
	return err == nil
}

func (s *Source) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "rss feed url", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errs.Provider(Platform, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.FromStatus(Platform, resp.StatusCode, string(b))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, errs.Provider(Platform, err)
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Provider(Platform, fmt.Errorf("parse feed %s: %w", url, err))
	}
	return feed, nil
}

// itemID is stable across fetches: the GUID, else a hash of title and link.
func itemID(it *gofeed.Item) string {
	if g := strings.TrimSpace(it.GUID); g != "" && len(g) <= 128 {
		return g
	}
	h := sha256.Sum256([]byte(it.Title + "|" + cmp.Or(it.GUID, it.Link)))
	return hex.EncodeToString(h[:16])
}

func published(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}
	return it.UpdatedParsed
}

func convert(e entry) model.RawContent {
	it := e.item
	body := cmp.Or(it.Content, it.Description)
	content := strings.TrimSpace(it.Title + "\n\n" + scrape.Parse([]byte(body)).Text())
	var author string
	if len(it.Authors) > 0 && it.Authors[0] != nil {
		author = cmp.Or(it.Authors[0].Name, it.Authors[0].Email)
	}
	var ts string
	if t := published(it); t != nil {
		ts = t.UTC().Format(time.RFC3339)
	} else {
		ts = cmp.Or(it.Published, it.Updated)
	}
	meta := map[string]any{"feed": e.feed}
	if len(it.Categories) > 0 {
		meta["categories"] = it.Categories
	}
	return model.RawContent{
		ID:        itemID(it),
		Content:   content,
		Author:    author,
		URL:       it.Link,
		Timestamp: ts,
		Metadata:  meta,
	}
}
