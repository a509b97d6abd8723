package trends

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
	"mentionwatch/internal/storage"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func conv(id, platform string, ago time.Duration, s model.Sentiment, likes int64, kws ...string) model.Conversation {
	return model.Conversation{
		NormalizedContent: model.NormalizedContent{
			ID:         platform + "_" + id,
			Platform:   platform,
			Content:    "content of " + id,
			Timestamp:  now.Add(-ago).Format(time.RFC3339Nano),
			Engagement: model.Engagement{Likes: likes, Shares: likes / 4},
		},
		TenantID:  "t1",
		Sentiment: s,
		Keywords:  kws,
	}
}

// corpus has a fresh multi-platform outage and an older single-platform
// pricing thread whose mood turned sour.
func corpus() []model.Conversation {
	h := time.Hour
	return []model.Conversation{
		conv("o1", "reddit", 1*h, model.SentimentNegative, 200, "outage", "login"),
		conv("o2", "reddit", 2*h, model.SentimentNegative, 200, "outage", "login"),
		conv("o3", "twitter", 3*h, model.SentimentNegative, 200, "outage", "login"),
		conv("o4", "twitter", 4*h, model.SentimentNegative, 200, "outage"),
		conv("p1", "hackernews", 6*24*h, model.SentimentPositive, 0, "pricing"),
		conv("p2", "hackernews", 5*24*h, model.SentimentPositive, 0, "pricing"),
		conv("p3", "hackernews", 1*h, model.SentimentNegative, 0, "pricing"),
		conv("n1", "hackernews", 2*h, model.SentimentNeutral, 0, "random"),
		conv("old", "reddit", 30*24*h, model.SentimentNegative, 0, "outage"),
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	rep := Analyze(nil, now, Options{})
	if rep.TrendingTopics == nil || rep.StoryClusters == nil || rep.EmergingThemes == nil ||
		rep.DecliningSentiments == nil || rep.CrossPlatformInsights == nil {
		t.Fatalf("empty input must produce empty, non-nil lists: %+v", rep)
	}
	if len(rep.TrendingTopics) != 0 {
		t.Fatalf("unexpected topics: %+v", rep.TrendingTopics)
	}
	if !rep.Window.End.Equal(now) || !rep.Window.Start.Equal(now.Add(-DefaultWindow)) {
		t.Fatalf("window: %+v", rep.Window)
	}
}

func TestAnalyzeTopics(t *testing.T) {
	rep := Analyze(corpus(), now, Options{})
	if len(rep.TrendingTopics) != 2 {
		t.Fatalf("expected 2 topics, got %+v", rep.TrendingTopics)
	}
	for i, tp := range rep.TrendingTopics {
		if tp.RelevanceScore < 0 || tp.RelevanceScore > 1 {
			t.Fatalf("score out of range: %+v", tp)
		}
		if i > 0 && tp.RelevanceScore > rep.TrendingTopics[i-1].RelevanceScore {
			t.Fatalf("topics not sorted by relevance: %+v", rep.TrendingTopics)
		}
	}

	outage := rep.TrendingTopics[0]
	if outage.ID != "topic-outage" || outage.Theme != "outage login" {
		t.Fatalf("outage topic: %+v", outage)
	}
	if outage.ConversationCount != 4 || outage.Engagement != 1000 {
		t.Fatalf("the conversation outside the window must be excluded: %+v", outage)
	}
	if outage.Direction != DirectionRising || !outage.Rising || !outage.Emerging {
		t.Fatalf("outage should be rising and emerging: %+v", outage)
	}
	if outage.Sentiment.Negative != 4 || !slices.Equal(outage.Platforms, []string{"reddit", "twitter"}) {
		t.Fatalf("outage aggregates: %+v", outage)
	}

	pricing := rep.TrendingTopics[1]
	if pricing.ID != "topic-pricing" || pricing.Direction != DirectionFalling || pricing.Emerging {
		t.Fatalf("pricing topic: %+v", pricing)
	}

	if len(rep.EmergingThemes) != 1 || rep.EmergingThemes[0].Theme != "outage login" || rep.EmergingThemes[0].RecentCount != 4 {
		t.Fatalf("emerging: %+v", rep.EmergingThemes)
	}
}

func TestAnalyzeDecliningSentiment(t *testing.T) {
	rep := Analyze(corpus(), now, Options{})
	if len(rep.DecliningSentiments) != 1 {
		t.Fatalf("declining: %+v", rep.DecliningSentiments)
	}
	d := rep.DecliningSentiments[0]
	if d.Theme != "pricing" || d.PreviousSentiment != 1 || d.CurrentSentiment != -1 || d.SentimentChange != -2 {
		t.Fatalf("pricing decline: %+v", d)
	}
	if !d.Timeframe.Current.End.Equal(now) || !d.Timeframe.Previous.End.Equal(d.Timeframe.Current.Start) {
		t.Fatalf("timeframe: %+v", d.Timeframe)
	}
}

func TestAnalyzeCrossPlatform(t *testing.T) {
	rep := Analyze(corpus(), now, Options{})
	if len(rep.CrossPlatformInsights) != 1 {
		t.Fatalf("only the outage spans platforms: %+v", rep.CrossPlatformInsights)
	}
	ins := rep.CrossPlatformInsights[0]
	if ins.CorrelationStrength != 1 || !slices.Equal(ins.SharedKeywords, []string{"login", "outage"}) {
		t.Fatalf("insight: %+v", ins)
	}

	if len(rep.StoryClusters) != 2 || rep.StoryClusters[0].ID != "story-outage" {
		t.Fatalf("clusters: %+v", rep.StoryClusters)
	}
	sc := rep.StoryClusters[0]
	if len(sc.Links) != 1 || sc.Links[0].From != "reddit" || sc.Links[0].To != "twitter" || sc.Links[0].Strength != 1 {
		t.Fatalf("links: %+v", sc.Links)
	}
	if len(sc.SentimentEvolution) != 1 || sc.SentimentEvolution[0].Sentiment != -1 || sc.SentimentEvolution[0].Count != 4 {
		t.Fatalf("evolution: %+v", sc.SentimentEvolution)
	}
	if !slices.IsSorted(sc.ConversationIDs) || len(sc.ConversationIDs) != 4 {
		t.Fatalf("conversation ids: %v", sc.ConversationIDs)
	}
	for _, c := range rep.StoryClusters {
		if c.RelevanceScore < 0 || c.RelevanceScore > 1 {
			t.Fatalf("cluster score out of range: %+v", c)
		}
	}
}

func TestAnalyzeFilters(t *testing.T) {
	rep := Analyze(corpus(), now, Options{MinRelevance: 0.3})
	if len(rep.TrendingTopics) != 1 || rep.TrendingTopics[0].ID != "topic-outage" {
		t.Fatalf("min relevance: %+v", rep.TrendingTopics)
	}
	rep = Analyze(corpus(), now, Options{MaxResults: 1})
	if len(rep.TrendingTopics) != 1 || len(rep.StoryClusters) != 1 {
		t.Fatalf("max results: %+v", rep)
	}
	rep = Analyze(corpus(), now, Options{MinConversations: 4})
	if len(rep.TrendingTopics) != 1 || rep.TrendingTopics[0].ConversationCount != 4 {
		t.Fatalf("min conversations: %+v", rep.TrendingTopics)
	}
}

func TestAnalyzeExtractsKeywordsWhenMissing(t *testing.T) {
	var convs []model.Conversation
	for i, p := range []string{"reddit", "twitter", "reddit"} {
		c := conv(string(rune('a'+i)), p, time.Duration(i+1)*time.Hour, model.SentimentNeutral, 10)
		c.Content = "Checkout failing for everyone"
		convs = append(convs, c)
	}
	rep := Analyze(convs, now, Options{})
	if len(rep.TrendingTopics) != 1 {
		t.Fatalf("topics: %+v", rep.TrendingTopics)
	}
	if !slices.Contains(rep.TrendingTopics[0].Keywords, "checkout") {
		t.Fatalf("keywords should come from content: %+v", rep.TrendingTopics[0])
	}
}

func TestRelevanceIsBoundedAndMonotonic(t *testing.T) {
	w := DefaultWindow
	fresh := []time.Duration{time.Hour}
	if s := relevance(0, 0, nil, w); s != 0 {
		t.Fatalf("empty topic should score 0, got %v", s)
	}
	if s := relevance(1_000_000, 1<<50, []time.Duration{0}, w); s < 0 || s > 1 {
		t.Fatalf("score out of range: %v", s)
	}
	base := relevance(3, 100, fresh, w)
	if relevance(3, 1000, fresh, w) < base {
		t.Fatal("more engagement must not lower relevance")
	}
	if relevance(30, 100, fresh, w) < base {
		t.Fatal("more conversations must not lower relevance")
	}
	if relevance(3, 100, []time.Duration{72 * time.Hour}, w) > base {
		t.Fatal("older conversations must not raise relevance")
	}
}

type fakeStore struct {
	convs []model.Conversation
	err   error
	got   storage.Query
}

func (f *fakeStore) ListConversations(_ context.Context, q storage.Query) ([]model.Conversation, error) {
	f.got = q
	return f.convs, f.err
}

type fakeSummarizer struct {
	samples map[string]int
}

func (f *fakeSummarizer) SummarizeCluster(_ context.Context, c StoryCluster, samples []string) (string, error) {
	if c.ID == "story-pricing" {
		return "", errors.New("model unavailable")
	}
	f.samples[c.ID] = len(samples)
	return "summary of " + c.MainTheme, nil
}

func TestAnalyzeTrendsService(t *testing.T) {
	st := &fakeStore{convs: corpus()}
	sum := &fakeSummarizer{samples: map[string]int{}}
	svc := New(Config{Store: st, Summarizer: sum, Now: func() time.Time { return now }})

	rep, err := svc.AnalyzeTrends(context.Background(), "t1", Options{Window: 48 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if st.got.Tenant != "t1" || st.got.Since == nil || !st.got.Since.Equal(now.Add(-48*time.Hour)) {
		t.Fatalf("query: %+v", st.got)
	}
	if rep.TenantID != "t1" || len(rep.StoryClusters) == 0 {
		t.Fatalf("report: %+v", rep)
	}
	if rep.StoryClusters[0].Summary != "summary of outage login" || sum.samples["story-outage"] != 4 {
		t.Fatalf("summarizer output not applied: %+v", rep.StoryClusters[0])
	}
	for _, c := range rep.StoryClusters[1:] {
		if c.Summary == "" {
			t.Fatalf("failed summaries must keep the default text: %+v", c)
		}
	}
}

func TestAnalyzeTrendsErrors(t *testing.T) {
	ctx := context.Background()
	svc := New(Config{Store: &fakeStore{err: errors.New("disk I/O error")}})
	if _, err := svc.AnalyzeTrends(ctx, "t1", Options{}); errs.KindOf(err) != errs.KindPersistence {
		t.Fatalf("store failure should be a persistence error, got %v", err)
	}
	svc = New(Config{Store: &fakeStore{err: errs.New(errs.KindValidation, "", "bad tenant")}})
	if _, err := svc.AnalyzeTrends(ctx, "t1", Options{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("typed errors should pass through, got %v", err)
	}
	if _, err := svc.AnalyzeTrends(ctx, "", Options{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("empty tenant: %v", err)
	}
}
