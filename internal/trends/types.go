package trends

import "time"

// Direction compares a topic's volume in the later half of the window with the earlier half.
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionStable  Direction = "stable"
	DirectionFalling Direction = "falling"
)

// Options bounds an analysis. Zero values select defaults.
type Options struct {
	Window           time.Duration `json:"window"`
	MinConversations int           `json:"min_conversations"`
	MinRelevance     float64       `json:"min_relevance"`
	MaxResults       int           `json:"max_results"`
}

const (
	DefaultWindow           = 7 * 24 * time.Hour
	DefaultMinConversations = 2
	DefaultMaxResults       = 20
)

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MinConversations <= 0 {
		o.MinConversations = DefaultMinConversations
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	o.MinRelevance = clamp01(o.MinRelevance)
	return o
}

type TimeRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

type SentimentDistribution struct {
	Positive int `json:"positive" yaml:"positive"`
	Negative int `json:"negative" yaml:"negative"`
	Neutral  int `json:"neutral" yaml:"neutral"`
}

// Net is (positive - negative) / total, in [-1, 1]. Zero when empty.
func (d SentimentDistribution) Net() float64 {
	n := d.Positive + d.Negative + d.Neutral
	if n == 0 {
		return 0
	}
	return float64(d.Positive-d.Negative) / float64(n)
}

type TrendingTopic struct {
	ID                string                `json:"id" yaml:"id"`
	Theme             string                `json:"theme" yaml:"theme"`
	Keywords          []string              `json:"keywords" yaml:"keywords"`
	RelevanceScore    float64               `json:"relevance_score" yaml:"relevance_score"`
	ConversationCount int                   `json:"conversation_count" yaml:"conversation_count"`
	Engagement        int64                 `json:"engagement" yaml:"engagement"`
	Sentiment         SentimentDistribution `json:"sentiment" yaml:"sentiment"`
	Platforms         []string              `json:"platforms" yaml:"platforms"`
	TimeRange         TimeRange             `json:"time_range" yaml:"time_range"`
	Direction         Direction             `json:"direction" yaml:"direction"`
	Rising            bool                  `json:"rising" yaml:"rising"`
	Emerging          bool                  `json:"emerging" yaml:"emerging"`
	ConversationIDs   []string              `json:"conversation_ids" yaml:"conversation_ids"`
}

type EmergingTheme struct {
	Theme             string    `json:"theme" yaml:"theme"`
	Keywords          []string  `json:"keywords" yaml:"keywords"`
	ConversationCount int       `json:"conversation_count" yaml:"conversation_count"`
	RecentCount       int       `json:"recent_count" yaml:"recent_count"`
	FirstSeen         time.Time `json:"first_seen" yaml:"first_seen"`
	Platforms         []string  `json:"platforms" yaml:"platforms"`
}

// Timeframe names the two halves a sentiment change compares.
type Timeframe struct {
	Previous TimeRange `json:"previous" yaml:"previous"`
	Current  TimeRange `json:"current" yaml:"current"`
}

type DecliningSentiment struct {
	Theme             string    `json:"theme" yaml:"theme"`
	Keywords          []string  `json:"keywords" yaml:"keywords"`
	PreviousSentiment float64   `json:"previous_sentiment" yaml:"previous_sentiment"`
	CurrentSentiment  float64   `json:"current_sentiment" yaml:"current_sentiment"`
	SentimentChange   float64   `json:"sentiment_change" yaml:"sentiment_change"`
	ConversationCount int       `json:"conversation_count" yaml:"conversation_count"`
	Timeframe         Timeframe `json:"timeframe" yaml:"timeframe"`
}

// SentimentPoint is one non-empty time bucket of a cluster's sentiment series.
type SentimentPoint struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Sentiment float64   `json:"sentiment" yaml:"sentiment"`
	Count     int       `json:"count" yaml:"count"`
	Positive  int       `json:"positive" yaml:"positive"`
	Negative  int       `json:"negative" yaml:"negative"`
	Neutral   int       `json:"neutral" yaml:"neutral"`
}

// CrossPlatformLink relates two platforms inside a story cluster.
type CrossPlatformLink struct {
	From           string   `json:"from" yaml:"from"`
	To             string   `json:"to" yaml:"to"`
	SharedKeywords []string `json:"shared_keywords" yaml:"shared_keywords"`
	Strength       float64  `json:"strength" yaml:"strength"`
}

type StoryCluster struct {
	ID                 string              `json:"id" yaml:"id"`
	Title              string              `json:"title" yaml:"title"`
	Summary            string              `json:"summary" yaml:"summary"`
	MainTheme          string              `json:"main_theme" yaml:"main_theme"`
	SubThemes          []string            `json:"sub_themes" yaml:"sub_themes"`
	RelevanceScore     float64             `json:"relevance_score" yaml:"relevance_score"`
	ConversationIDs    []string            `json:"conversation_ids" yaml:"conversation_ids"`
	Platforms          []string            `json:"platforms" yaml:"platforms"`
	TimeSpan           TimeRange           `json:"time_span" yaml:"time_span"`
	SentimentEvolution []SentimentPoint    `json:"sentiment_evolution" yaml:"sentiment_evolution"`
	KeyPhrases         []string            `json:"key_phrases" yaml:"key_phrases"`
	Links              []CrossPlatformLink `json:"cross_platform_links" yaml:"cross_platform_links"`
}

type CrossPlatformInsight struct {
	Theme               string   `json:"theme" yaml:"theme"`
	Keywords            []string `json:"keywords" yaml:"keywords"`
	Platforms           []string `json:"platforms" yaml:"platforms"`
	CorrelationStrength float64  `json:"correlation_strength" yaml:"correlation_strength"`
	SharedKeywords      []string `json:"shared_keywords" yaml:"shared_keywords"`
	ConversationCount   int      `json:"conversation_count" yaml:"conversation_count"`
}

// Report is the full result of one analysis. Every list is non-nil.
type Report struct {
	TenantID              string                 `json:"tenant_id" yaml:"tenant_id"`
	GeneratedAt           time.Time              `json:"generated_at" yaml:"generated_at"`
	Window                TimeRange              `json:"window" yaml:"window"`
	TrendingTopics        []TrendingTopic        `json:"trending_topics" yaml:"trending_topics"`
	StoryClusters         []StoryCluster         `json:"story_clusters" yaml:"story_clusters"`
	EmergingThemes        []EmergingTheme        `json:"emerging_themes" yaml:"emerging_themes"`
	DecliningSentiments   []DecliningSentiment   `json:"declining_sentiments" yaml:"declining_sentiments"`
	CrossPlatformInsights []CrossPlatformInsight `json:"cross_platform_insights" yaml:"cross_platform_insights"`
}
