package normalize

import (
	"strings"
	"unicode"

	"mentionwatch/internal/model"
)

var positiveWords = wordSet(`good great excellent amazing awesome love loved loving like liked best
	fantastic wonderful happy helpful impressive recommend recommended perfect nice fast smooth
	reliable easy enjoy enjoyed brilliant outstanding superb solid win wins delighted thanks`)

var negativeWords = wordSet(`bad terrible awful horrible hate hated worst poor broken bug buggy
	slow crash crashes crashed fail failed failure useless disappointing disappointed annoying
	problem problems issue issues scam refund angry frustrating expensive laggy outage down`)

var negators = wordSet(`not no never dont don't isn't wasn't didn't cannot can't won't hardly`)

// InferSentiment is a lexicon heuristic for content whose provider supplied
// no sentiment. A negator flips the polarity of the next sentiment word.
func InferSentiment(text string) model.Sentiment {
	score := 0
	negate := false
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		if _, ok := negators[w]; ok {
			negate = true
			continue
		}
		delta := 0
		if _, ok := positiveWords[w]; ok {
			delta = 1
		} else if _, ok := negativeWords[w]; ok {
			delta = -1
		}
		if delta != 0 {
			if negate {
				delta = -delta
			}
			score += delta
			negate = false
		}
	}
	switch {
	case score > 0:
		return model.SentimentPositive
	case score < 0:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// SentimentFromMetadata reads a provider-classified sentiment, if any.
func SentimentFromMetadata(meta map[string]any) (model.Sentiment, bool) {
	s, ok := meta["sentiment"].(string)
	if !ok {
		return "", false
	}
	v := model.Sentiment(strings.ToLower(strings.TrimSpace(s)))
	return v, v.Valid()
}

func wordSet(words string) map[string]struct{} {
	m := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		m[w] = struct{}{}
	}
	return m
}
