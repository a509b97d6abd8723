// Package twitter searches recent posts through the X API v2.
package twitter

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

const (
	Platform       = "twitter"
	DefaultBaseURL = "https://api.twitter.com"

	minResults = 10
	maxResults = 100

	tweetFields = "created_at,public_metrics,lang,context_annotations,author_id,conversation_id"
	userFields  = "username,verified"
)

type Client struct {
	api *adapter.Client
}

func NewClient(bearerToken, baseURL string, opts ...adapter.ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: adapter.NewClient(Platform, baseURL, adapter.StaticToken(bearerToken), opts...)}
}

func (c *Client) Platform() string { return Platform }

type tweet struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	CreatedAt      string `json:"created_at"`
	Lang           string `json:"lang"`
	ConversationID string `json:"conversation_id"`
	PublicMetrics  struct {
		RetweetCount int64 `json:"retweet_count"`
		ReplyCount   int64 `json:"reply_count"`
		LikeCount    int64 `json:"like_count"`
		QuoteCount   int64 `json:"quote_count"`
	} `json:"public_metrics"`
	ContextAnnotations []map[string]any `json:"context_annotations"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Verified bool   `json:"verified"`
}

type includes struct {
	Users []user `json:"users"`
}

type searchResponse struct {
	Data     []tweet  `json:"data"`
	Includes includes `json:"includes"`
}

type lookupResponse struct {
	Data     *tweet   `json:"data"`
	Includes includes `json:"includes"`
}

// Search calls /2/tweets/search/recent. Retweets are always excluded; replies
// unless IncludeReplies is set.
func (c *Client) Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error) {
	kw, err := adapter.SanitizeKeyword(Platform, keyword)
	if err != nil {
		return nil, err
	}
	query := kw + " -is:retweet"
	if !opts.IncludeReplies {
		query += " -is:reply"
	}
	limit := adapter.ClampLimit(opts.Limit, adapter.DefaultLimit, maxResults)
	q := url.Values{
		"query":        {query},
		"max_results":  {strconv.Itoa(max(limit, minResults))},
		"tweet.fields": {tweetFields},
		"expansions":   {"author_id"},
		"user.fields":  {userFields},
	}
	if opts.SortBy == "date" || opts.SortBy == "recent" {
		q.Set("sort_order", "recency")
	} else {
		q.Set("sort_order", "relevancy")
	}
	if opts.Since != nil {
		q.Set("start_time", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.Until != nil {
		q.Set("end_time", opts.Until.UTC().Format(time.RFC3339))
	}
	var resp searchResponse
	if err := c.api.GetJSON(ctx, "/2/tweets/search/recent", q, &resp); err != nil {
		return nil, err
	}
	users := indexUsers(resp.Includes.Users)
	data := resp.Data
	if len(data) > limit {
		data = data[:limit]
	}
	out := make([]model.RawContent, 0, len(data))
	for _, t := range data {
		out = append(out, convert(t, users[t.AuthorID]))
	}
	return out, nil
}

func (c *Client) GetContent(ctx context.Context, id string) (*model.RawContent, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), Platform+"_")
	if id == "" {
		return nil, nil
	}
	q := url.Values{"tweet.fields": {tweetFields}, "expansions": {"author_id"}, "user.fields": {userFields}}
	var resp lookupResponse
	if err := c.api.GetJSON(ctx, "/2/tweets/"+url.PathEscape(id), q, &resp); err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	// Unknown ids come back as 200 with an errors array and no data.
	if resp.Data == nil {
		return nil, nil
	}
	rc := convert(*resp.Data, indexUsers(resp.Includes.Users)[resp.Data.AuthorID])
	return &rc, nil
}

// ValidateConfiguration runs the smallest permitted search.
func (c *Client) ValidateConfiguration(ctx context.Context) bool {
	q := url.Values{"query": {"twitter"}, "max_results": {strconv.Itoa(minResults)}}
	return c.api.GetJSON(ctx, "/2/tweets/search/recent", q, nil) == nil
}

func indexUsers(us []user) map[string]user {
	m := make(map[string]user, len(us))
	for _, u := range us {
		m[u.ID] = u
	}
	return m
}

func convert(t tweet, u user) model.RawContent {
	author := u.Username
	if author == "" {
		author = t.AuthorID
	}
	link := "https://twitter.com/i/web/status/" + t.ID
	if u.Username != "" {
		link = "https://twitter.com/" + u.Username + "/status/" + t.ID
	}
	meta := map[string]any{
		"lang":        t.Lang,
		"verified":    u.Verified,
		"quote_count": t.PublicMetrics.QuoteCount,
	}
	if len(t.ContextAnnotations) > 0 {
		meta["context_annotations"] = t.ContextAnnotations
	}
	if t.ConversationID != "" {
		meta["conversation_id"] = t.ConversationID
	}
	return model.RawContent{
		ID:        t.ID,
		Content:   t.Text,
		Author:    author,
		URL:       link,
		Timestamp: t.CreatedAt,
		Engagement: map[string]any{
			"likes":    t.PublicMetrics.LikeCount,
			"retweets": t.PublicMetrics.RetweetCount,
			"replies":  t.PublicMetrics.ReplyCount,
		},
		Metadata: meta,
	}
}
