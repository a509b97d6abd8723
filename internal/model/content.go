package model

import "time"

// Sentiment is the shared categorical sentiment every provider encoding maps onto.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid reports whether s is one of the three known values.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// RawContent is what an adapter returns before normalization. Timestamp is kept
// as the provider sent it; Engagement and Metadata are open maps because every
// provider names these fields differently.
type RawContent struct {
	ID         string         `json:"id" yaml:"id"`
	Content    string         `json:"content" yaml:"content"`
	Author     string         `json:"author" yaml:"author"`
	URL        string         `json:"url" yaml:"url"`
	Timestamp  string         `json:"timestamp" yaml:"timestamp"`
	Engagement map[string]any `json:"engagement,omitempty" yaml:"engagement,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Engagement is the canonical non-negative interaction triple.
type Engagement struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
}

// Total sums all engagement counters.
func (e Engagement) Total() int64 {
	return e.Likes + e.Shares + e.Comments
}

// NormalizedContent is the canonical record produced by the normalizer.
type NormalizedContent struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Author     string         `json:"author"`
	Platform   string         `json:"platform"`
	URL        string         `json:"url"`
	Timestamp  string         `json:"timestamp"`
	Engagement Engagement     `json:"engagement"`
	Metadata   map[string]any `json:"metadata"`
}

// Conversation is a persisted NormalizedContent scoped to a tenant and the
// keyword that surfaced it. Sentiment and Tags may be enriched after ingest.
type Conversation struct {
	NormalizedContent
	TenantID   string    `json:"tenant_id"`
	KeywordID  string    `json:"keyword_id"`
	ExternalID string    `json:"external_id"`
	Sentiment  Sentiment `json:"sentiment"`
	Keywords   []string  `json:"keywords"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Time parses the normalized ISO-8601 timestamp. Zero time when unparseable.
func (c Conversation) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, c.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ConversationData is the richer record produced by advanced monitoring
// providers that already classify sentiment and estimate reach.
type ConversationData struct {
	ID             string         `json:"id"`
	Platform       string         `json:"platform"`
	Content        string         `json:"content"`
	Author         string         `json:"author"`
	URL            string         `json:"url"`
	PublishedAt    time.Time      `json:"published_at"`
	Sentiment      Sentiment      `json:"sentiment"`
	SentimentScore *float64       `json:"sentiment_score,omitempty"`
	Reach          int64          `json:"reach"`
	Engagement     Engagement     `json:"engagement"`
	Keyword        string         `json:"keyword,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SearchOptions controls a single adapter search.
type SearchOptions struct {
	Limit          int
	Since          *time.Time
	Until          *time.Time
	SortBy         string
	IncludeReplies bool
}
