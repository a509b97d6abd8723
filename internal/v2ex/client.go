package v2ex

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

const (
	Platform       = "v2ex"
	DefaultBaseURL = "https://www.v2ex.com"
)

// Client reads V2EX topics. V2EX has no search endpoint, so Search pulls the
// configured nodes (or the latest feed) and filters topics by keyword.
type Client struct {
	api     *adapter.Client
	baseURL string
	nodes   []string
	log     *slog.Logger
}

func NewClient(baseURL, token string, nodes []string, opts ...adapter.ClientOption) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	var auth adapter.TokenSource
	if token != "" {
		auth = adapter.StaticToken(token)
	}
	return &Client{
		api:     adapter.NewClient(Platform, baseURL, auth, opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
		nodes:   nodes,
		log:     slog.Default(),
	}
}

func (c *Client) Platform() string { return Platform }

// Topic represents a subset of V2EX topic fields used by this service.
type Topic struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Replies int    `json:"replies"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Node    struct {
		Name string `json:"name"`
	} `json:"node"`
	Member struct {
		Username string `json:"username"`
	} `json:"member"`
	Created int64 `json:"created"`
}

// TopicsByNode fetches topics for a given node.
// API: GET /api/topics/show.json?node_name={node}
func (c *Client) TopicsByNode(ctx context.Context, node string) ([]Topic, error) {
	var raw []Topic
	if err := c.api.GetJSON(ctx, "/api/topics/show.json", url.Values{"node_name": {node}}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Latest fetches the site-wide latest topics.
func (c *Client) Latest(ctx context.Context) ([]Topic, error) {
	var raw []Topic
	if err := c.api.GetJSON(ctx, "/api/topics/latest.json", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Search filters node (or latest) topics whose title or body contains every
// keyword word. A node that fails is skipped unless every node fails.
func (c *Client) Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error) {
	kw, err := adapter.SanitizeKeyword(Platform, keyword)
	if err != nil {
		return nil, err
	}
	var topics []Topic
	if len(c.nodes) == 0 {
		if topics, err = c.Latest(ctx); err != nil {
			return nil, err
		}
	} else {
		var lastErr error
		failed := 0
		for _, node := range c.nodes {
			ts, err := c.TopicsByNode(ctx, node)
			if err != nil {
				c.log.Warn("v2ex: node fetch failed", "node", node, "err", err)
				lastErr = err
				failed++
				continue
			}
			topics = append(topics, ts...)
		}
		if failed == len(c.nodes) {
			return nil, lastErr
		}
	}

	seen := make(map[int]bool, len(topics))
	var matched []Topic
	for _, t := range topics {
		if seen[t.ID] || !adapter.MatchesKeyword(t.Title+" "+t.Content, kw) {
			continue
		}
		seen[t.ID] = true
		created := time.Unix(t.Created, 0)
		if opts.Since != nil && created.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && created.After(*opts.Until) {
			continue
		}
		matched = append(matched, t)
	}
	if opts.SortBy == "date" || opts.SortBy == "recent" {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Created > matched[j].Created })
	}
	if limit := adapter.ClampLimit(opts.Limit, adapter.DefaultLimit, 100); len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]model.RawContent, 0, len(matched))
	for _, t := range matched {
		out = append(out, c.convert(t))
	}
	return out, nil
}

// GetContent looks a topic up by id.
func (c *Client) GetContent(ctx context.Context, id string) (*model.RawContent, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(id), Platform+"_"))
	if err != nil {
		return nil, nil
	}
	var raw []Topic
	if err := c.api.GetJSON(ctx, "/api/topics/show.json", url.Values{"id": {strconv.Itoa(n)}}, &raw); err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	rc := c.convert(raw[0])
	return &rc, nil
}

// ValidateConfiguration reads the public site info.
func (c *Client) ValidateConfiguration(ctx context.Context) bool {
	var info struct {
		Title string `json:"title"`
	}
	return c.api.GetJSON(ctx, "/api/site/info.json", nil, &info) == nil
}

func (c *Client) convert(t Topic) model.RawContent {
	urlStr := t.URL
	if urlStr == "" {
		urlStr = fmt.Sprintf("%s/t/%d", c.baseURL, t.ID)
	}
	content := strings.TrimSpace(t.Title + "\n\n" + t.Content)
	return model.RawContent{
		ID:         strconv.Itoa(t.ID),
		Content:    content,
		Author:     t.Member.Username,
		URL:        urlStr,
		Timestamp:  time.Unix(t.Created, 0).UTC().Format(time.RFC3339),
		Engagement: map[string]any{"replies": t.Replies},
		Metadata:   map[string]any{"node": t.Node.Name, "title": t.Title},
	}
}
