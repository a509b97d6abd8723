// Package brandwatch monitors keywords through the Brandwatch Consumer
// Research API. It implements the advanced contract and is exposed to the
// rest of the system through adapter.FromAdvanced.
package brandwatch

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

	"github.com/araddon/dateparse"
)

const (
	Platform        = "brandwatch"
	DefaultBaseURL  = "https://api.brandwatch.com"
	DefaultLookback = 7 * 24 * time.Hour

	pageSize = 100
)

// Config configures the client. Username and Password are exchanged for a
// bearer token at BaseURL/oauth/token.
type Config struct {
	Username   string
	Password   string
	BaseURL    string
	ProjectID  string
	Lookback   time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
	// Scale maps numeric scores when a mention has no categorical sentiment.
	Scale adapter.Scale
}

type Client struct {
	api       *adapter.Client
	projectID string
	lookback  time.Duration
	scale     adapter.Scale
	log       *slog.Logger
	now       func() time.Time
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Scale == (adapter.Scale{}) {
		cfg.Scale = adapter.UnitScale
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	auth := adapter.BasicExchange(Platform, base+"/oauth/token", cfg.Username, cfg.Password, cfg.HTTPClient)
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		api:       adapter.NewClient(Platform, base, auth, adapter.WithHTTPClient(cfg.HTTPClient), adapter.WithLogger(log)),
		projectID: cfg.ProjectID,
		lookback:  cfg.Lookback,
		scale:     cfg.Scale,
		log:       log,
		now:       cfg.Now,
	}
}

func (c *Client) Platform() string { return Platform }

type mention struct {
	GUID           string   `json:"guid"`
	ResourceID     string   `json:"resourceId"`
	Title          string   `json:"title"`
	Snippet        string   `json:"snippet"`
	FullText       string   `json:"fullText"`
	Author         string   `json:"author"`
	URL            string   `json:"url"`
	Date           string   `json:"date"`
	Sentiment      string   `json:"sentiment"`
	SentimentScore *float64 `json:"sentimentScore"`
	ReachEstimate  int64    `json:"reachEstimate"`
	Impressions    int64    `json:"impressions"`
	Likes          int64    `json:"likes"`
	Shares         int64    `json:"shares"`
	Comments       int64    `json:"comments"`
	Domain         string   `json:"domain"`
	PageType       string   `json:"pageType"`
	Country        string   `json:"country"`
	Language       string   `json:"language"`
}

type mentionsResponse struct {
	Results []mention `json:"results"`
}

// Monitor fetches recent mentions per keyword. A keyword that fails is logged
// and skipped; the call fails only when every keyword fails.
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
		ms, err := c.mentions(ctx, kw)
		if err != nil {
			c.log.Warn("brandwatch: keyword failed", "keyword", kw, "err", err)
			lastErr = err
			failed++
			continue
		}
		for _, m := range ms {
			cd := c.convert(m)
			cd.Keyword = kw
			out = append(out, cd)
		}
	}
	if failed > 0 && failed == len(keywords) {
		return nil, lastErr
	}
	return out, nil
}

func (c *Client) mentions(ctx context.Context, keyword string) ([]mention, error) {
	now := c.now().UTC()
	q := url.Values{
		"search":         {keyword},
		"startDate":      {now.Add(-c.lookback).Format(time.RFC3339)},
		"endDate":        {now.Format(time.RFC3339)},
		"pageSize":       {strconv.Itoa(pageSize)},
		"orderBy":        {"date"},
		"orderDirection": {"desc"},
	}
	var resp mentionsResponse
	path := fmt.Sprintf("/projects/%s/data/mentions", url.PathEscape(c.projectID))
	if err := c.api.GetJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetConversation looks up one mention. Unknown ids yield nil, nil.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.ConversationData, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), Platform+"_")
	if id == "" || c.projectID == "" {
		return nil, nil
	}
	var m mention
	path := fmt.Sprintf("/projects/%s/data/mentions/%s", url.PathEscape(c.projectID), url.PathEscape(id))
	if err := c.api.GetJSON(ctx, path, nil, &m); err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	if m.GUID == "" && m.ResourceID == "" {
		return nil, nil
	}
	cd := c.convert(m)
	return &cd, nil
}

// ValidateConfiguration exchanges credentials and reads the account profile.
func (c *Client) ValidateConfiguration(ctx context.Context) bool {
	return c.api.GetJSON(ctx, "/me", nil, nil) == nil
}

func (c *Client) convert(m mention) model.ConversationData {
	id := m.ResourceID
	if id == "" {
		id = m.GUID
	}
	text := m.FullText
	if text == "" {
		text = m.Snippet
	}
	if m.Title != "" && !strings.HasPrefix(text, m.Title) {
		text = strings.TrimSpace(m.Title + "\n\n" + text)
	}
	cd := model.ConversationData{
		ID:             id,
		Platform:       Platform,
		Content:        text,
		Author:         m.Author,
		URL:            m.URL,
		Sentiment:      model.SentimentNeutral,
		SentimentScore: m.SentimentScore,
		Reach:          adapter.EstimateReach(max(m.ReachEstimate, m.Impressions), m.Shares, adapter.DefaultReachPerShare),
		Engagement: model.Engagement{
			Likes:    max(m.Likes, 0),
			Shares:   max(m.Shares, 0),
			Comments: max(m.Comments, 0),
		},
		Metadata: map[string]any{
			"domain":    m.Domain,
			"page_type": m.PageType,
			"country":   m.Country,
			"language":  m.Language,
		},
	}
	if t, err := dateparse.ParseIn(m.Date, time.UTC); err == nil {
		cd.PublishedAt = t.UTC()
	}
	if s, ok := adapter.ParseTone(m.Sentiment); ok {
		cd.Sentiment = s
	} else if m.SentimentScore != nil {
		cd.Sentiment = c.scale.Classify(*m.SentimentScore)
	}
	return cd
}
