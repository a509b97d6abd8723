package hackernews

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

const (
	Platform = "hackernews"

	DefaultSearchURL = "https://hn.algolia.com/api/v1"
	DefaultBaseAPI   = "https://hacker-news.firebaseio.com/v0"

	// maxHitsPerPage is Algolia's page size ceiling for the HN index.
	maxHitsPerPage = 100
)

// Client searches Hacker News through the Algolia index and resolves single
// items through the official Firebase API.
// Docs: https://hn.algolia.com/api and https://github.com/HackerNews/API
type Client struct {
	search *adapter.Client
	items  *adapter.Client
}

// NewClient creates a Hacker News source. Empty URLs fall back to the public endpoints.
func NewClient(searchURL, baseAPI string, opts ...adapter.ClientOption) *Client {
	if strings.TrimSpace(searchURL) == "" {
		searchURL = DefaultSearchURL
	}
	if strings.TrimSpace(baseAPI) == "" {
		baseAPI = DefaultBaseAPI
	}
	return &Client{
		search: adapter.NewClient(Platform, searchURL, nil, opts...),
		items:  adapter.NewClient(Platform, baseAPI, nil, opts...),
	}
}

func (c *Client) Platform() string { return Platform }

// hit mirrors the subset of Algolia search fields we care about.
type hit struct {
	ObjectID    string   `json:"objectID"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Author      string   `json:"author"`
	StoryText   string   `json:"story_text"`
	CommentText string   `json:"comment_text"`
	StoryID     int      `json:"story_id"`
	StoryTitle  string   `json:"story_title"`
	Points      int      `json:"points"`
	NumComments int      `json:"num_comments"`
	CreatedAt   string   `json:"created_at"`
	CreatedAtI  int64    `json:"created_at_i"`
	Tags        []string `json:"_tags"`
}

type searchResponse struct {
	Hits []hit `json:"hits"`
}

// hnItem mirrors the subset of HN item fields we care about.
type hnItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"` // story, job, comment, poll, etc.
	By          string `json:"by"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Time        int64  `json:"time"`
	Kids        []int  `json:"kids"`
	Descendants int    `json:"descendants"`
	Score       int    `json:"score"`
	Parent      int    `json:"parent"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

// Search queries stories (and comments when IncludeReplies is set) matching keyword.
func (c *Client) Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error) {
	kw, err := adapter.SanitizeKeyword(Platform, keyword)
	if err != nil {
		return nil, err
	}
	q := url.Values{
		"query":       {kw},
		"hitsPerPage": {strconv.Itoa(adapter.ClampLimit(opts.Limit, adapter.DefaultLimit, maxHitsPerPage))},
		"tags":        {"story"},
	}
	if opts.IncludeReplies {
		q.Set("tags", "(story,comment)")
	}
	var filters []string
	if opts.Since != nil {
		filters = append(filters, fmt.Sprintf("created_at_i>=%d", opts.Since.Unix()))
	}
	if opts.Until != nil {
		filters = append(filters, fmt.Sprintf("created_at_i<=%d", opts.Until.Unix()))
	}
	if len(filters) > 0 {
		q.Set("numericFilters", strings.Join(filters, ","))
	}
	// search ranks by relevance, search_by_date by recency
	endpoint := "/search"
	if opts.SortBy == "date" || opts.SortBy == "recent" {
		endpoint = "/search_by_date"
	}
	var resp searchResponse
	if err := c.search.GetJSON(ctx, endpoint, q, &resp); err != nil {
		return nil, err
	}
	out := make([]model.RawContent, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		out = append(out, convertHit(h))
	}
	return out, nil
}

// GetContent fetches a single item by id (with or without the platform prefix).
func (c *Client) GetContent(ctx context.Context, id string) (*model.RawContent, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(id), Platform+"_"))
	if err != nil {
		return nil, nil
	}
	var it *hnItem
	if err := c.items.GetJSON(ctx, fmt.Sprintf("/item/%d.json", n), nil, &it); err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	// Firebase answers unknown ids with a literal null.
	if it == nil || it.ID == 0 || it.Deleted {
		return nil, nil
	}
	raw := convertItem(*it)
	return &raw, nil
}

// ValidateConfiguration reads the current max item id.
func (c *Client) ValidateConfiguration(ctx context.Context) bool {
	var maxID int
	return c.items.GetJSON(ctx, "/maxitem.json", nil, &maxID) == nil && maxID > 0
}

func convertHit(h hit) model.RawContent {
	text := h.StoryText
	kind := "story"
	if h.CommentText != "" {
		text = h.CommentText
		kind = "comment"
	}
	title := h.Title
	if title == "" {
		title = h.StoryTitle
	}
	content := stripHTML(text)
	if title != "" {
		content = strings.TrimSpace(title + "\n\n" + content)
	}
	link := strings.TrimSpace(h.URL)
	if link == "" || kind == "comment" {
		link = "https://news.ycombinator.com/item?id=" + h.ObjectID
	}
	ts := h.CreatedAt
	if ts == "" && h.CreatedAtI > 0 {
		ts = time.Unix(h.CreatedAtI, 0).UTC().Format(time.RFC3339)
	}
	meta := map[string]any{
		"type":   kind,
		"points": h.Points,
	}
	if h.StoryID != 0 {
		meta["story_id"] = h.StoryID
	}
	return model.RawContent{
		ID:        h.ObjectID,
		Content:   content,
		Author:    h.Author,
		URL:       link,
		Timestamp: ts,
		Engagement: map[string]any{
			"upvotes":  h.Points,
			"comments": h.NumComments,
		},
		Metadata: meta,
	}
}

// convertItem maps a Firebase item onto RawContent.
func convertItem(h hnItem) model.RawContent {
	idStr := strconv.Itoa(h.ID)
	urlStr := strings.TrimSpace(h.URL)
	if urlStr == "" {
		urlStr = "https://news.ycombinator.com/item?id=" + idStr
	}
	content := stripHTML(h.Text)
	if h.Title != "" {
		content = strings.TrimSpace(h.Title + "\n\n" + content)
	}
	// Derive a category: ask/show/job/story/comment
	typ := strings.ToLower(strings.TrimSpace(h.Type))
	cat := typ
	if typ == "story" {
		t := strings.ToLower(strings.TrimSpace(h.Title))
		if strings.HasPrefix(t, "ask hn:") {
			cat = "ask"
		} else if strings.HasPrefix(t, "show hn:") {
			cat = "show"
		}
	}
	meta := map[string]any{"type": cat, "points": h.Score}
	if h.Parent != 0 {
		meta["parent"] = h.Parent
	}
	return model.RawContent{
		ID:        idStr,
		Content:   content,
		Author:    h.By,
		URL:       urlStr,
		Timestamp: time.Unix(h.Time, 0).UTC().Format(time.RFC3339),
		Engagement: map[string]any{
			"upvotes":  h.Score,
			"comments": max(h.Descendants, len(h.Kids)),
		},
		Metadata: meta,
	}
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`) // best-effort removal

// stripHTML flattens the simple HTML HN uses in text fields.
func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "<p>", "\n\n")
	s = htmlTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}
