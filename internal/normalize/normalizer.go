// Package normalize turns provider-shaped RawContent into the canonical
// NormalizedContent record. Every step has a safe default, so normalization
// never fails, and the output depends only on the input and the injected clock.
package normalize

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"mentionwatch/internal/model"

	"github.com/araddon/dateparse"
)

const (
	MaxContentLength  = 10000
	MaxAuthorLength   = 100
	MaxURLLength      = 500
	MaxMetaString     = 1000
	MaxMetaSerialized = 5000
	// MaxEngagement is the largest integer a float64 represents exactly.
	MaxEngagement int64 = 1<<53 - 1

	UnknownAuthor = "unknown"
	// TimeLayout is ISO-8601 with millisecond precision, always in UTC.
	TimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Normalizer carries the clock used for ingestion-time defaults.
type Normalizer struct {
	now func() time.Time
}

// New returns a Normalizer; a nil clock means time.Now.
func New(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize converts raw into the canonical record for platform.
func (n *Normalizer) Normalize(raw model.RawContent, platform string) model.NormalizedContent {
	now := n.now().UTC()
	return model.NormalizedContent{
		ID:         ID(platform, raw.ID),
		Content:    Content(raw.Content),
		Author:     Author(raw.Author),
		Platform:   platform,
		URL:        URL(raw.URL),
		Timestamp:  Timestamp(raw.Timestamp, now),
		Engagement: Engagement(raw.Engagement),
		Metadata:   Metadata(platform, raw.Metadata, now),
	}
}

// ID prefixes id with "platform_" unless it already carries the prefix.
func ID(platform, id string) string {
	id = strings.TrimSpace(id)
	prefix := platform + "_"
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

var (
	// controlRe matches ASCII control characters that are not whitespace.
	controlRe     = regexp.MustCompile(`[\x00-\x08\x0B\x0E-\x1F\x7F]`)
	spaceRe       = regexp.MustCompile(`\s+`)
	authorStripRe = regexp.MustCompile(`[^\w\s@.\-]`)
)

// Content strips control characters, collapses whitespace, trims and caps the length.
func Content(s string) string {
	s = controlRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return truncate(strings.TrimSpace(s), MaxContentLength)
}

// Author keeps word characters, whitespace and @ . _ -; empty becomes "unknown".
func Author(s string) string {
	s = authorStripRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	s = strings.TrimSpace(truncate(s, MaxAuthorLength))
	if s == "" {
		return UnknownAuthor
	}
	return s
}

// URL re-serializes absolute URLs; anything else passes through trimmed and capped.
func URL(s string) string {
	s = strings.TrimSpace(s)
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		if u.Path == "" && u.Opaque == "" {
			u.Path = "/"
		}
		return truncate(u.String(), MaxURLLength)
	}
	return truncate(s, MaxURLLength)
}

// Timestamp parses s in any common format and emits ISO-8601 UTC.
// Empty or unparseable input yields now.
func Timestamp(s string, now time.Time) string {
	s = strings.TrimSpace(s)
	if s != "" {
		if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
			return t.UTC().Format(TimeLayout)
		}
	}
	return now.UTC().Format(TimeLayout)
}

var engagementSynonyms = map[string][]string{
	"likes":    {"likes", "upvotes", "reactions", "favorites", "like_count"},
	"shares":   {"shares", "retweets", "reposts", "retweet_count"},
	"comments": {"comments", "replies", "reply_count", "num_comments"},
}

// Engagement maps provider synonyms onto the canonical triple. The first
// present synonym wins; non-numeric values count as 0.
func Engagement(m map[string]any) model.Engagement {
	pick := func(field string) int64 {
		for _, k := range engagementSynonyms[field] {
			if v, ok := m[k]; ok {
				return Count(v)
			}
		}
		return 0
	}
	return model.Engagement{
		Likes:    pick("likes"),
		Shares:   pick("shares"),
		Comments: pick("comments"),
	}
}

// Count coerces v to an integer in [0, MaxEngagement].
func Count(v any) int64 {
	f, ok := number(v)
	if !ok || math.IsNaN(f) {
		return 0
	}
	if f <= 0 {
		return 0
	}
	if f >= float64(MaxEngagement) {
		return MaxEngagement
	}
	return int64(f)
}

// Ratio coerces v to a float in [0, 1].
func Ratio(v any) float64 {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || f <= 0 {
		return 0
	}
	return math.Min(f, 1)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// Metadata seeds platform-specific fields, passes through any other valid
// provider entries that do not collide, and stamps normalized_at.
func Metadata(platform string, meta map[string]any, now time.Time) map[string]any {
	out := make(map[string]any)
	switch platform {
	case "reddit":
		setString(out, "subreddit", meta["subreddit"])
		if v, ok := meta["score"]; ok {
			out["score"] = signedCount(v)
		}
		if v, ok := meta["upvote_ratio"]; ok {
			out["upvote_ratio"] = Ratio(v)
		}
		setString(out, "flair", first(meta, "flair", "link_flair_text"))
	case "twitter":
		setString(out, "lang", meta["lang"])
		if v, ok := meta["verified"].(bool); ok {
			out["verified"] = v
		}
		if v, ok := meta["context_annotations"]; ok && ValidMetaValue(v) {
			out["context_annotations"] = v
		}
		if v, ok := meta["quote_count"]; ok {
			out["quote_count"] = Count(v)
		}
	}
	for k, v := range meta {
		if _, taken := out[k]; taken {
			continue
		}
		if ValidMetaValue(v) {
			out[k] = v
		}
	}
	out["normalized_at"] = now.UTC().Format(TimeLayout)
	return out
}

// ValidMetaValue reports whether v may be stored: non-nil, strings up to
// MaxMetaString characters, anything else serializing to at most MaxMetaSerialized bytes.
func ValidMetaValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return utf8.RuneCountInString(x) <= MaxMetaString
	case bool, int, int64, float64:
		return true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return len(b) <= MaxMetaSerialized && string(b) != "null"
}

// signedCount is Count without the lower bound; reddit scores go negative.
func signedCount(v any) int64 {
	f, ok := number(v)
	if !ok || math.IsNaN(f) {
		return 0
	}
	f = math.Max(math.Min(f, float64(MaxEngagement)), -float64(MaxEngagement))
	return int64(f)
}

func setString(out map[string]any, key string, v any) {
	if s, ok := v.(string); ok && s != "" {
		out[key] = truncate(s, MaxMetaString)
	}
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
