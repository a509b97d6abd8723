package trends

import (
	"cmp"
	"math"
	"slices"
	"sort"
	"strings"

	"mentionwatch/internal/model"
)

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }

func capped[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func addSentiment(d *SentimentDistribution, s model.Sentiment) {
	switch s {
	case model.SentimentPositive:
		d.Positive++
	case model.SentimentNegative:
		d.Negative++
	default:
		d.Neutral++
	}
}

func total(d SentimentDistribution) int { return d.Positive + d.Negative + d.Neutral }

// intersectCount counts common elements of two ascending int slices.
func intersectCount(a, b []int) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}

func jaccard(a, b []int) float64 {
	inter := intersectCount(a, b)
	u := len(a) + len(b) - inter
	if u == 0 {
		return 0
	}
	return float64(inter) / float64(u)
}

// overlapShare is |a∩b| / min(|a|, |b|).
func overlapShare(a, b []int) float64 {
	m := min(len(a), len(b))
	if m == 0 {
		return 0
	}
	return float64(intersectCount(a, b)) / float64(m)
}

// union merges two ascending int slices.
func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func setJaccard(a, b map[string]struct{}) float64 {
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	u := len(a) + len(b) - inter
	if u == 0 {
		return 0
	}
	return float64(inter) / float64(u)
}

func intersectSorted(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// sharedAcross returns terms used on at least two platforms, most widespread first.
func sharedAcross(byPlatform map[string]map[string]struct{}, n int) []string {
	count := map[string]int{}
	for _, set := range byPlatform {
		for t := range set {
			count[t]++
		}
	}
	for t, c := range count {
		if c < 2 {
			delete(count, t)
		}
	}
	return topTerms(count, n)
}

func topTerms(count map[string]int, n int) []string {
	out := make([]string, 0, len(count))
	for t := range count {
		out = append(out, t)
	}
	slices.SortFunc(out, func(x, y string) int {
		return cmp.Or(cmp.Compare(count[y], count[x]), cmp.Compare(x, y))
	})
	return capped(out, n)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
