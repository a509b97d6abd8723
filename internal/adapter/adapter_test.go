package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

type fakeSource struct {
	platform string
	fail     map[string]bool
	calls    []string
}

func (f *fakeSource) Platform() string { return f.platform }

func (f *fakeSource) Search(_ context.Context, kw string, _ model.SearchOptions) ([]model.RawContent, error) {
	f.calls = append(f.calls, kw)
	if f.fail[kw] {
		return nil, errs.FromStatus(f.platform, 503, "down")
	}
	return []model.RawContent{{ID: kw + "-1", Content: "about " + kw, Timestamp: "2024-03-01T10:00:00Z"}}, nil
}

func (f *fakeSource) GetContent(context.Context, string) (*model.RawContent, error) { return nil, nil }
func (f *fakeSource) ValidateConfiguration(context.Context) bool                   { return true }

func TestLegacyMonitorSkipsFailingKeyword(t *testing.T) {
	src := &fakeSource{platform: "hackernews", fail: map[string]bool{"bad": true}}
	a := Legacy(src, nil)
	out, err := a.Monitor(context.Background(), []string{"golang", "bad", "redis"})
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if len(src.calls) != 3 {
		t.Fatalf("expected every keyword searched, got %v", src.calls)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(out))
	}
	if out[0].Keyword != "golang" || out[0].Platform != "hackernews" {
		t.Fatalf("unexpected first record: %+v", out[0])
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !out[0].PublishedAt.Equal(want) {
		t.Fatalf("published at: got %v want %v", out[0].PublishedAt, want)
	}
	if out[0].Sentiment != model.SentimentNeutral {
		t.Fatalf("default sentiment should be neutral, got %q", out[0].Sentiment)
	}
}

func TestLegacyMonitorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Legacy(&fakeSource{platform: "x"}, nil).Monitor(ctx, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type fakeAdvanced struct {
	data     []model.ConversationData
	keywords []string
	getErr   error
}

func (f *fakeAdvanced) Platform() string { return "brandwatch" }

func (f *fakeAdvanced) Monitor(_ context.Context, kws []string) ([]model.ConversationData, error) {
	f.keywords = append(f.keywords, kws...)
	out := make([]model.ConversationData, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (f *fakeAdvanced) GetConversation(_ context.Context, id string) (*model.ConversationData, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.data {
		if f.data[i].ID == id {
			return &f.data[i], nil
		}
	}
	return nil, nil
}

func (f *fakeAdvanced) ValidateConfiguration(context.Context) bool { return true }

func TestFromAdvancedSearch(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	score := 0.6
	adv := &fakeAdvanced{data: []model.ConversationData{
		{ID: "a", PublishedAt: base, Sentiment: model.SentimentNegative},
		{ID: "b", PublishedAt: base.Add(2 * time.Hour), Sentiment: model.SentimentPositive, SentimentScore: &score, Reach: 500},
		{ID: "c", PublishedAt: base.Add(time.Hour)},
		{ID: "old", PublishedAt: base.Add(-48 * time.Hour)},
	}}
	a := FromAdvanced(adv)
	since := base.Add(-time.Hour)
	got, err := a.Search(context.Background(), "  acme, inc! ", model.SearchOptions{Limit: 2, SortBy: "date", Since: &since})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(adv.keywords) != 1 || adv.keywords[0] != "acme inc" {
		t.Fatalf("keyword not sanitized before monitor: %v", adv.keywords)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("expected [b c], got %+v", got)
	}
	if got[0].Metadata["sentiment"] != "positive" || got[0].Metadata["sentiment_score"] != 0.6 {
		t.Fatalf("sentiment not carried in metadata: %v", got[0].Metadata)
	}
	if got[0].Metadata["reach"] != int64(500) {
		t.Fatalf("reach not carried: %v", got[0].Metadata["reach"])
	}
	if got[0].Timestamp != "2024-05-01T02:00:00Z" {
		t.Fatalf("timestamp: %q", got[0].Timestamp)
	}
}

func TestFromAdvancedSearchRejectsEmptyKeyword(t *testing.T) {
	_, err := FromAdvanced(&fakeAdvanced{}).Search(context.Background(), "?!", model.SearchOptions{})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFromAdvancedGetContent(t *testing.T) {
	adv := &fakeAdvanced{data: []model.ConversationData{{ID: "x1", Content: "hello"}}}
	a := FromAdvanced(adv)
	got, err := a.GetContent(context.Background(), "x1")
	if err != nil || got == nil || got.Content != "hello" {
		t.Fatalf("expected x1, got %+v err=%v", got, err)
	}
	got, err = a.GetContent(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("missing id should be nil, nil; got %+v err=%v", got, err)
	}
	adv.getErr = errs.New(errs.KindNotFound, "brandwatch", "gone")
	got, err = a.GetContent(context.Background(), "x1")
	if err != nil || got != nil {
		t.Fatalf("not found should be nil, nil; got %+v err=%v", got, err)
	}
}

func TestToConversationDataRoundTripsAdvancedFields(t *testing.T) {
	score := -0.4
	cd := model.ConversationData{
		ID:             "q",
		Content:        "c",
		PublishedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Sentiment:      model.SentimentNegative,
		SentimentScore: &score,
		Reach:          42,
		Engagement:     model.Engagement{Likes: 1, Shares: 2, Comments: 3},
	}
	back := ToConversationData("talkwalker", "kw", ToRawContent(cd))
	if back.Sentiment != model.SentimentNegative || back.Reach != 42 || back.Engagement != cd.Engagement {
		t.Fatalf("round trip lost fields: %+v", back)
	}
	if back.SentimentScore == nil || *back.SentimentScore != -0.4 {
		t.Fatalf("score lost: %v", back.SentimentScore)
	}
	if !back.PublishedAt.Equal(cd.PublishedAt) {
		t.Fatalf("time: %v", back.PublishedAt)
	}
}

func TestSanitizeKeyword(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  hello, world! ", "hello world"},
		{"foo\t\tbar", "foo bar"},
		{"c++ & go-lang_v2", "c go-lang_v2"},
		{"東京 タワー", "東京 タワー"},
		{"<script>alert(1)</script>", "scriptalert1script"},
	}
	for _, tc := range cases {
		got, err := SanitizeKeyword("reddit", tc.in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %q want %q", tc.in, got, tc.want)
		}
	}
	long, err := SanitizeKeyword("reddit", strings.Repeat("a", 150))
	if err != nil || len(long) != MaxKeywordLength {
		t.Fatalf("expected %d chars, got %d (%v)", MaxKeywordLength, len(long), err)
	}
	if _, err := SanitizeKeyword("reddit", " !!! "); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	if got := ClampLimit(0, 25, 100); got != 25 {
		t.Fatalf("default: %d", got)
	}
	if got := ClampLimit(500, 25, 100); got != 100 {
		t.Fatalf("max: %d", got)
	}
	if got := ClampLimit(7, 25, 0); got != 7 {
		t.Fatalf("unbounded: %d", got)
	}
}

func TestMatchesKeyword(t *testing.T) {
	if !MatchesKeyword("Redis Streams in Go", "go redis") {
		t.Fatal("expected match regardless of order and case")
	}
	if MatchesKeyword("Redis Streams", "go redis kafka") {
		t.Fatal("missing word must not match")
	}
}

func TestScaleClassify(t *testing.T) {
	cases := []struct {
		name  string
		scale Scale
		score float64
		want  model.Sentiment
	}{
		{"unit band edge", UnitScale, 0.1, model.SentimentNeutral},
		{"unit positive", UnitScale, 0.11, model.SentimentPositive},
		{"unit negative", UnitScale, -0.2, model.SentimentNegative},
		{"unit clamps", UnitScale, 7, model.SentimentPositive},
		{"five band edge", FivePointScale, -1, model.SentimentNeutral},
		{"five positive", FivePointScale, 1.5, model.SentimentPositive},
		{"five negative", FivePointScale, -3, model.SentimentNegative},
		{"percent neutral", PercentScale, 40, model.SentimentNeutral},
		{"percent negative", PercentScale, 39, model.SentimentNegative},
		{"percent positive", PercentScale, 61, model.SentimentPositive},
	}
	for _, tc := range cases {
		if got := tc.scale.Classify(tc.score); got != tc.want {
			t.Errorf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestScaleUnit(t *testing.T) {
	if got := PercentScale.Unit(50); got != 0 {
		t.Fatalf("50%% should be 0, got %v", got)
	}
	if got := PercentScale.Unit(100); got != 1 {
		t.Fatalf("100%% should be 1, got %v", got)
	}
	if got := FivePointScale.Unit(-10); got != -1 {
		t.Fatalf("clamped -10 should be -1, got %v", got)
	}
}

func TestParseTone(t *testing.T) {
	if s, ok := ParseTone(" Positive "); !ok || s != model.SentimentPositive {
		t.Fatalf("positive: %v %v", s, ok)
	}
	if _, ok := ParseTone("sarcastic"); ok {
		t.Fatal("unknown tone should report false")
	}
}

func TestEstimateReach(t *testing.T) {
	if got := EstimateReach(900, 3, 10); got != 900 {
		t.Fatalf("known reach: %d", got)
	}
	if got := EstimateReach(0, 3, 0); got != 3*DefaultReachPerShare {
		t.Fatalf("default multiplier: %d", got)
	}
	if got := EstimateReach(0, -2, 10); got != 0 {
		t.Fatalf("negative shares: %d", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Legacy(&fakeSource{platform: "Reddit"}, nil), FromAdvanced(&fakeAdvanced{}))
	if got := r.Platforms(); len(got) != 2 || got[0] != "brandwatch" || got[1] != "reddit" {
		t.Fatalf("platforms: %v", got)
	}
	if _, err := r.Get("REDDIT"); err != nil {
		t.Fatalf("case-insensitive lookup failed: %v", err)
	}
	if _, err := r.Get("myspace"); !errors.Is(err, errs.ErrConfigMissing) {
		t.Fatalf("expected config missing, got %v", err)
	}
	h := r.Health(context.Background())
	if !h["reddit"] || !h["brandwatch"] {
		t.Fatalf("health: %v", h)
	}
}
