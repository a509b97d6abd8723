// Package adapter defines the single capability contract every platform
// source satisfies, plus the shared plumbing (auth, HTTP error mapping,
// keyword sanitizing, sentiment scales) that concrete sources build on.
package adapter

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/logging"
	"mentionwatch/internal/model"
	"mentionwatch/internal/normalize"

	"github.com/araddon/dateparse"
)

// DefaultLimit is used when a search does not ask for a specific size.
const DefaultLimit = 25

// Adapter is the canonical platform contract.
type Adapter interface {
	Platform() string
	// Search returns raw items matching keyword. The keyword is sanitized first;
	// failures are *errs.Error values.
	Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error)
	// GetContent returns nil, nil when the item is unknown or lookup is unsupported.
	GetContent(ctx context.Context, id string) (*model.RawContent, error)
	// ValidateConfiguration makes one cheap call and never returns an error.
	ValidateConfiguration(ctx context.Context) bool
	// Monitor searches several keywords at once.
	Monitor(ctx context.Context, keywords []string) ([]model.ConversationData, error)
}

// Source is a search-oriented provider. Wrap it with Legacy to get an Adapter.
type Source interface {
	Platform() string
	Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error)
	GetContent(ctx context.Context, id string) (*model.RawContent, error)
	ValidateConfiguration(ctx context.Context) bool
}

// Legacy adds a Monitor built from repeated Search calls. A failing keyword is
// logged and skipped; Monitor only fails when ctx is done.
func Legacy(s Source, log *slog.Logger) Adapter {
	return &legacy{Source: s, log: logging.Or(log)}
}

type legacy struct {
	Source
	log *slog.Logger
}

func (l *legacy) Monitor(ctx context.Context, keywords []string) ([]model.ConversationData, error) {
	var out []model.ConversationData
	for _, kw := range keywords {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		items, err := l.Search(ctx, kw, model.SearchOptions{Limit: DefaultLimit})
		if err != nil {
			l.log.Warn("adapter: monitor keyword failed", "platform", l.Platform(), "keyword", kw, "err", err)
			continue
		}
		for _, it := range items {
			out = append(out, ToConversationData(l.Platform(), kw, it))
		}
	}
	return out, nil
}

// ToConversationData lifts a raw item into the advanced record shape.
func ToConversationData(platform, keyword string, raw model.RawContent) model.ConversationData {
	cd := model.ConversationData{
		ID:         raw.ID,
		Platform:   platform,
		Content:    raw.Content,
		Author:     raw.Author,
		URL:        raw.URL,
		Sentiment:  model.SentimentNeutral,
		Engagement: normalize.Engagement(raw.Engagement),
		Keyword:    keyword,
		Metadata:   raw.Metadata,
	}
	if t, err := dateparse.ParseIn(strings.TrimSpace(raw.Timestamp), time.UTC); err == nil {
		cd.PublishedAt = t.UTC()
	}
	if s, ok := normalize.SentimentFromMetadata(raw.Metadata); ok {
		cd.Sentiment = s
	}
	if f, ok := raw.Metadata["sentiment_score"].(float64); ok {
		cd.SentimentScore = &f
	}
	cd.Reach = normalize.Count(raw.Metadata["reach"])
	return cd
}

// Advanced is a provider that natively monitors keywords and returns
// classified conversations. Bridge it with FromAdvanced.
type Advanced interface {
	Platform() string
	Monitor(ctx context.Context, keywords []string) ([]model.ConversationData, error)
	GetConversation(ctx context.Context, id string) (*model.ConversationData, error)
	ValidateConfiguration(ctx context.Context) bool
}

// FromAdvanced exposes an Advanced provider through the canonical contract.
func FromAdvanced(a Advanced) Adapter {
	return &advancedBridge{a: a}
}

type advancedBridge struct {
	a Advanced
}

func (b *advancedBridge) Platform() string { return b.a.Platform() }

func (b *advancedBridge) Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error) {
	kw, err := SanitizeKeyword(b.a.Platform(), keyword)
	if err != nil {
		return nil, err
	}
	data, err := b.a.Monitor(ctx, []string{kw})
	if err != nil {
		return nil, errs.Provider(b.a.Platform(), err)
	}
	data = filterWindow(data, opts.Since, opts.Until)
	if opts.SortBy == "date" || opts.SortBy == "recent" {
		sort.SliceStable(data, func(i, j int) bool { return data[i].PublishedAt.After(data[j].PublishedAt) })
	}
	limit := ClampLimit(opts.Limit, DefaultLimit, 500)
	if len(data) > limit {
		data = data[:limit]
	}
	out := make([]model.RawContent, 0, len(data))
	for _, cd := range data {
		out = append(out, ToRawContent(cd))
	}
	return out, nil
}

func (b *advancedBridge) GetContent(ctx context.Context, id string) (*model.RawContent, error) {
	cd, err := b.a.GetConversation(ctx, id)
	if err != nil {
		if errs.KindOf(err) == errs.KindNotFound {
			return nil, nil
		}
		return nil, errs.Provider(b.a.Platform(), err)
	}
	if cd == nil {
		return nil, nil
	}
	raw := ToRawContent(*cd)
	return &raw, nil
}

func (b *advancedBridge) ValidateConfiguration(ctx context.Context) bool {
	return b.a.ValidateConfiguration(ctx)
}

func (b *advancedBridge) Monitor(ctx context.Context, keywords []string) ([]model.ConversationData, error) {
	return b.a.Monitor(ctx, keywords)
}

// ToRawContent flattens an advanced record; sentiment, score, reach and keyword
// travel in metadata so the normalizer can pass them through.
func ToRawContent(cd model.ConversationData) model.RawContent {
	meta := make(map[string]any, len(cd.Metadata)+4)
	for k, v := range cd.Metadata {
		meta[k] = v
	}
	if cd.Sentiment.Valid() {
		meta["sentiment"] = string(cd.Sentiment)
	}
	if cd.SentimentScore != nil {
		meta["sentiment_score"] = *cd.SentimentScore
	}
	meta["reach"] = cd.Reach
	if cd.Keyword != "" {
		meta["keyword"] = cd.Keyword
	}
	var ts string
	if !cd.PublishedAt.IsZero() {
		ts = cd.PublishedAt.UTC().Format(time.RFC3339)
	}
	return model.RawContent{
		ID:        cd.ID,
		Content:   cd.Content,
		Author:    cd.Author,
		URL:       cd.URL,
		Timestamp: ts,
		Engagement: map[string]any{
			"likes":    cd.Engagement.Likes,
			"shares":   cd.Engagement.Shares,
			"comments": cd.Engagement.Comments,
		},
		Metadata: meta,
	}
}

func filterWindow(data []model.ConversationData, since, until *time.Time) []model.ConversationData {
	if since == nil && until == nil {
		return data
	}
	out := data[:0]
	for _, cd := range data {
		if since != nil && cd.PublishedAt.Before(*since) {
			continue
		}
		if until != nil && cd.PublishedAt.After(*until) {
			continue
		}
		out = append(out, cd)
	}
	return out
}
