package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxKeywords caps ExtractKeywords output.
const MaxKeywords = 20

// stopWords only needs entries longer than three characters; shorter words are
// dropped by length.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		about above after again against also because been before being below between both
		came come could did does doing down during each even every from further had has
		have having here hers herself himself into itself just many more most much must
		myself never only other ours ourselves over same should some such than that
		their theirs them themselves then there these they this those through under until
		upon very want were what when where which while will with within without would
		your yours yourself yourselves http https www`) {
		stopWords[w] = struct{}{}
	}
}

// ExtractKeywords lowercases text, replaces punctuation with spaces, and keeps
// distinct words longer than three characters that are not stop words, in
// order of first appearance, up to MaxKeywords.
func ExtractKeywords(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))
	text = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, text)
	seen := make(map[string]struct{})
	out := make([]string, 0, MaxKeywords)
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
