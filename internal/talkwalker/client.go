// Package talkwalker monitors keywords through the Talkwalker search API.
package talkwalker

import (
	"context"
	"fmt"
	"log/slog"
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
	Platform       = "talkwalker"
	DefaultBaseURL = "https://api.talkwalker.com"

	hitsPerPage = 100
)

type Config struct {
	Token      string
	BaseURL    string
	ProjectID  string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Scale maps the provider's signed sentiment; zero means FivePointScale.
	Scale adapter.Scale
	// ReachPerShare estimates reach for results without one.
	ReachPerShare int64
}

type Client struct {
	api           *adapter.Client
	projectID     string
	scale         adapter.Scale
	reachPerShare int64
	log           *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Scale == (adapter.Scale{}) {
		cfg.Scale = adapter.FivePointScale
	}
	if cfg.ReachPerShare <= 0 {
		cfg.ReachPerShare = adapter.DefaultReachPerShare
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		api: adapter.NewClient(Platform, cfg.BaseURL, adapter.StaticToken(cfg.Token),
			adapter.WithHTTPClient(cfg.HTTPClient), adapter.WithLogger(cfg.Logger)),
		projectID:     cfg.ProjectID,
		scale:         cfg.Scale,
		reachPerShare: cfg.ReachPerShare,
		log:           cfg.Logger,
	}
}

func (c *Client) Platform() string { return Platform }

type document struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Published int64  `json:"published"` // epoch millis
	Sentiment *int   `json:"sentiment"`
	Reach     int64  `json:"reach"`
	Shares    int64  `json:"shares"`
	Likes     int64  `json:"likes"`
	Comments  int64  `json:"comments"`
	Lang      string `json:"lang"`
	Source    string `json:"source_type"`
	Author    struct {
		Name     string `json:"name"`
		Nickname string `json:"nickname"`
	} `json:"extra_author_attributes"`
}

type searchResponse struct {
	Status        string `json:"status_code"`
	Message       string `json:"status_message"`
	ResultContent struct {
		Data []struct {
			Data document `json:"data"`
		} `json:"data"`
	} `json:"result_content"`
}

// Monitor searches each keyword in the project; failing keywords are logged
// and skipped unless all of them fail.
func (c *Client) Monitor(ctx context.Context, keywords []string) ([]model.ConversationData, error) {
	if c.projectID == "" {
		return nil, errs.New(errs.KindConfig, Platform, "project_id not configured")
	}
	var out []model.ConversationData
	var lastErr error
	failed := 0
	for _, kw := range keywords {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		docs, err := c.search(ctx, kw)
		if err != nil {
			c.log.Warn("talkwalker: keyword failed", "keyword", kw, "err", err)
			lastErr = err
			failed++
			continue
		}
		for _, d := range docs {
			cd := c.convert(d)
			cd.Keyword = kw
			out = append(out, cd)
		}
	}
	if failed > 0 && failed == len(keywords) {
		return nil, lastErr
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, keyword string) ([]document, error) {
	q := url.Values{
		"q":    {fmt.Sprintf("%q", keyword)},
		"hpp":  {strconv.Itoa(hitsPerPage)},
		"sort": {"published"},
	}
	var resp searchResponse
	path := fmt.Sprintf("/api/v1/search/p/%s/results", url.PathEscape(c.projectID))
	if err := c.api.GetJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	// Talkwalker reports some failures in-band with HTTP 200.
	if resp.Status != "" && resp.Status != "0" {
		return nil, errs.Newf(errs.KindProvider, Platform, "status %s: %s", resp.Status, resp.Message)
	}
	docs := make([]document, 0, len(resp.ResultContent.Data))
	for _, d := range resp.ResultContent.Data {
		docs = append(docs, d.Data)
	}
	return docs, nil
}

// GetConversation is unsupported: results have no stable lookup id.
func (c *Client) GetConversation(context.Context, string) (*model.ConversationData, error) {
	return nil, nil
}

// ValidateConfiguration reads the remaining API credits.
func (c *Client) ValidateConfiguration(ctx context.Context) bool {
	var resp searchResponse
	if err := c.api.GetJSON(ctx, "/api/v1/status/credits", nil, &resp); err != nil {
		return false
	}
	return resp.Status == "" || resp.Status == "0"
}

func (c *Client) convert(d document) model.ConversationData {
	author := d.Author.Name
	if author == "" {
		author = d.Author.Nickname
	}
	text := d.Content
	if d.Title != "" && !strings.HasPrefix(text, d.Title) {
		text = strings.TrimSpace(d.Title + "\n\n" + text)
	}
	cd := model.ConversationData{
		ID:        d.URL,
		Platform:  Platform,
		Content:   text,
		Author:    author,
		URL:       d.URL,
		Sentiment: model.SentimentNeutral,
		Reach:     adapter.EstimateReach(d.Reach, d.Shares, c.reachPerShare),
		Engagement: model.Engagement{
			Likes:    max(d.Likes, 0),
			Shares:   max(d.Shares, 0),
			Comments: max(d.Comments, 0),
		},
		Metadata: map[string]any{"lang": d.Lang, "source_type": d.Source},
	}
	if d.Published > 0 {
		cd.PublishedAt = time.UnixMilli(d.Published).UTC()
	}
	if d.Sentiment != nil {
		score := c.scale.Unit(float64(*d.Sentiment))
		cd.SentimentScore = &score
		cd.Sentiment = c.scale.Classify(float64(*d.Sentiment))
	}
	return cd
}
