// Package reddit searches Reddit posts with an app-only OAuth2 token.
package reddit

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

const (
	Platform        = "reddit"
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
	DefaultUA       = "mentionwatch/1.0"

	maxLimit = 100
)

type Client struct {
	api *adapter.Client
}

// NewClient builds the source. hc, when set, is used both for the token
// endpoint and for API calls.
func NewClient(clientID, clientSecret, tokenURL, baseURL, userAgent string, hc *http.Client) *Client {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUA
	}
	auth := adapter.ClientCredentials(Platform, clientID, clientSecret, tokenURL, hc)
	return &Client{api: adapter.NewClient(Platform, baseURL, auth,
		adapter.WithHTTPClient(hc), adapter.WithUserAgent(userAgent))}
}

func (c *Client) Platform() string { return Platform }

type listing struct {
	Data struct {
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	Body          string  `json:"body"`
	Author        string  `json:"author"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	CreatedUTC    float64 `json:"created_utc"`
	Score         int64   `json:"score"`
	Ups           int64   `json:"ups"`
	NumComments   int64   `json:"num_comments"`
	NumCrossposts int64   `json:"num_crossposts"`
	Subreddit     string  `json:"subreddit"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	Flair         string  `json:"link_flair_text"`
	Over18        bool    `json:"over_18"`
}

// Search queries /search. Reddit has no absolute time filter, so Since/Until
// are applied to the returned page.
func (c *Client) Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error) {
	kw, err := adapter.SanitizeKeyword(Platform, keyword)
	if err != nil {
		return nil, err
	}
	sortBy := "relevance"
	if opts.SortBy == "date" || opts.SortBy == "recent" || opts.SortBy == "new" {
		sortBy = "new"
	}
	q := url.Values{
		"q":           {kw},
		"limit":       {strconv.Itoa(adapter.ClampLimit(opts.Limit, adapter.DefaultLimit, maxLimit))},
		"sort":        {sortBy},
		"type":        {"link"},
		"raw_json":    {"1"},
		"restrict_sr": {"false"},
	}
	var l listing
	if err := c.api.GetJSON(ctx, "/search", q, &l); err != nil {
		return nil, err
	}
	out := make([]model.RawContent, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		created := time.Unix(int64(ch.Data.CreatedUTC), 0).UTC()
		if opts.Since != nil && created.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && created.After(*opts.Until) {
			continue
		}
		out = append(out, convert(ch.Data))
	}
	return out, nil
}

// GetContent resolves a post id (with or without the t3_ or platform prefix).
func (c *Client) GetContent(ctx context.Context, id string) (*model.RawContent, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), Platform+"_")
	if id == "" {
		return nil, nil
	}
	if !strings.HasPrefix(id, "t3_") {
		id = "t3_" + id
	}
	var l listing
	if err := c.api.GetJSON(ctx, "/api/info", url.Values{"id": {id}, "raw_json": {"1"}}, &l); err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(l.Data.Children) == 0 {
		return nil, nil
	}
	rc := convert(l.Data.Children[0].Data)
	return &rc, nil
}

// ValidateConfiguration obtains a token and lists the OAuth scopes.
func (c *Client) ValidateConfiguration(ctx context.Context) bool {
	return c.api.GetJSON(ctx, "/api/v1/scopes", nil, nil) == nil
}

func convert(p post) model.RawContent {
	body := p.Selftext
	if body == "" {
		body = p.Body
	}
	link := p.URL
	if p.Permalink != "" {
		link = "https://www.reddit.com" + p.Permalink
	}
	return model.RawContent{
		ID:        p.ID,
		Content:   strings.TrimSpace(p.Title + "\n\n" + body),
		Author:    p.Author,
		URL:       link,
		Timestamp: time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339),
		Engagement: map[string]any{
			"upvotes":  p.Ups,
			"comments": p.NumComments,
			"shares":   p.NumCrossposts,
		},
		Metadata: map[string]any{
			"subreddit":    p.Subreddit,
			"score":        p.Score,
			"upvote_ratio": p.UpvoteRatio,
			"flair":        p.Flair,
			"over_18":      p.Over18,
		},
	}
}
