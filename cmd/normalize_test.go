package cmd

import (
	"testing"
	"time"

	"mentionwatch/internal/model"
)

func TestDecodeRaw(t *testing.T) {
	yamlDoc := []byte(`
- id: "1"
  content: "Great   launch"
  engagement:
    upvotes: 12
- id: "2"
  content: "broken again"
`)
	items, err := decodeRaw(yamlDoc, true)
	if err != nil || len(items) != 2 || items[0].ID != "1" {
		t.Fatalf("yaml list: %+v %v", items, err)
	}
	items, err = decodeRaw([]byte(`{"id":"x","content":"hello"}`), false)
	if err != nil || len(items) != 1 || items[0].Content != "hello" {
		t.Fatalf("json object: %+v %v", items, err)
	}
	if _, err := decodeRaw([]byte(`{not json`), false); err == nil {
		t.Fatal("malformed json should fail")
	}
}

func TestNormalizeItems(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	items := []model.RawContent{
		{ID: "1", Content: "Great   launch", Engagement: map[string]any{"upvotes": 12}},
		{ID: "2", Content: "broken again", Metadata: map[string]any{"sentiment": "positive"}},
	}
	out := normalizeItems(items, "forum", func() time.Time { return at })
	if out[0].ID != "forum_1" || out[0].Content != "Great launch" || out[0].Engagement.Likes != 12 {
		t.Fatalf("normalized: %+v", out[0])
	}
	if out[0].Sentiment != model.SentimentPositive || out[1].Sentiment != model.SentimentPositive {
		t.Fatalf("sentiments: %s %s", out[0].Sentiment, out[1].Sentiment)
	}
	if out[0].Timestamp != "2024-01-02T03:04:05.000Z" {
		t.Fatalf("missing timestamp should use now: %s", out[0].Timestamp)
	}
}
