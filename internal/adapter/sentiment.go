package adapter

import (
	"math"
	"strings"

	"mentionwatch/internal/model"
)

// Scale maps a provider's numeric sentiment onto the shared categories.
// Scores strictly above NeutralHigh are positive, strictly below NeutralLow negative.
type Scale struct {
	Min, Max    float64
	NeutralLow  float64
	NeutralHigh float64
}

var (
	// UnitScale is a signed [-1, 1] score with a ±0.1 neutral band.
	UnitScale = Scale{Min: -1, Max: 1, NeutralLow: -0.1, NeutralHigh: 0.1}
	// FivePointScale is a signed [-5, 5] score with a ±1 neutral band.
	FivePointScale = Scale{Min: -5, Max: 5, NeutralLow: -1, NeutralHigh: 1}
	// PercentScale is a 0-100 score; 40..60 is neutral.
	PercentScale = Scale{Min: 0, Max: 100, NeutralLow: 40, NeutralHigh: 60}
)

// Classify clamps score into the scale and categorizes it. NaN is neutral.
func (s Scale) Classify(score float64) model.Sentiment {
	if math.IsNaN(score) {
		return model.SentimentNeutral
	}
	score = math.Max(s.Min, math.Min(s.Max, score))
	switch {
	case score > s.NeutralHigh:
		return model.SentimentPositive
	case score < s.NeutralLow:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// Unit rescales score linearly onto [-1, 1].
func (s Scale) Unit(score float64) float64 {
	if s.Max == s.Min || math.IsNaN(score) {
		return 0
	}
	score = math.Max(s.Min, math.Min(s.Max, score))
	return 2*(score-s.Min)/(s.Max-s.Min) - 1
}

// ParseTone maps categorical tone labels onto the shared categories.
// Unrecognized labels report false.
func ParseTone(tone string) (model.Sentiment, bool) {
	switch strings.ToLower(strings.TrimSpace(tone)) {
	case "positive", "pos", "favorable", "favourable":
		return model.SentimentPositive, true
	case "negative", "neg", "unfavorable", "unfavourable", "critical":
		return model.SentimentNegative, true
	case "neutral", "mixed", "none":
		return model.SentimentNeutral, true
	}
	return "", false
}

// DefaultReachPerShare is the multiplier used when a provider reports shares but no reach.
const DefaultReachPerShare = 10

// EstimateReach returns reach when known, otherwise shares times perShare.
func EstimateReach(reach, shares, perShare int64) int64 {
	if reach > 0 {
		return reach
	}
	if perShare <= 0 {
		perShare = DefaultReachPerShare
	}
	if shares <= 0 {
		return 0
	}
	return shares * perShare
}
