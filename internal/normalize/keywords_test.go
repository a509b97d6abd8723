package normalize

import (
	"fmt"
	"strings"
	"testing"

	"mentionwatch/internal/model"
)

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("This is a great product with amazing features and excellent customer service")
	set := map[string]bool{}
	for _, k := range got {
		set[k] = true
	}
	for _, want := range []string{"great", "product", "amazing", "features", "excellent", "customer", "service"} {
		if !set[want] {
			t.Errorf("missing %q in %v", want, got)
		}
	}
	for _, bad := range []string{"this", "with", "and", "is", "a"} {
		if set[bad] {
			t.Errorf("unexpected %q in %v", bad, got)
		}
	}
}

func TestExtractKeywordsPunctuationAndDedupe(t *testing.T) {
	got := ExtractKeywords("Release! Release? release... v2.0-beta, (launch)")
	want := []string{"release", "beta", "launch"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractKeywordsCap(t *testing.T) {
	var words []string
	for i := 0; i < 40; i++ {
		words = append(words, fmt.Sprintf("word%02d", i))
	}
	got := ExtractKeywords(strings.Join(words, " "))
	if len(got) != MaxKeywords {
		t.Fatalf("len = %d, want %d", len(got), MaxKeywords)
	}
	if got[0] != "word00" || got[19] != "word19" {
		t.Fatalf("order not preserved: %v", got)
	}
}

func TestInferSentiment(t *testing.T) {
	cases := []struct {
		in   string
		want model.Sentiment
	}{
		{"I love this, works great", model.SentimentPositive},
		{"Terrible update, app keeps crashing and it's slow", model.SentimentNegative},
		{"The release is on Tuesday", model.SentimentNeutral},
		{"not good at all", model.SentimentNegative},
		{"", model.SentimentNeutral},
	}
	for _, tc := range cases {
		if got := InferSentiment(tc.in); got != tc.want {
			t.Errorf("InferSentiment(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSentimentFromMetadata(t *testing.T) {
	if s, ok := SentimentFromMetadata(map[string]any{"sentiment": " Positive "}); !ok || s != model.SentimentPositive {
		t.Fatalf("got %q %v", s, ok)
	}
	if _, ok := SentimentFromMetadata(map[string]any{"sentiment": "mixed"}); ok {
		t.Fatal("mixed is not a canonical sentiment")
	}
	if _, ok := SentimentFromMetadata(nil); ok {
		t.Fatal("nil metadata")
	}
}
