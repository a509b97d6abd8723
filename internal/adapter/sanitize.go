package adapter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"mentionwatch/internal/errs"

	"golang.org/x/text/unicode/norm"
)

// MaxKeywordLength caps a sanitized keyword, in characters.
const MaxKeywordLength = 100

var (
	keywordStripRe = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	keywordSpaceRe = regexp.MustCompile(`\s+`)
)

// SanitizeKeyword trims, drops characters other than letters, digits,
// whitespace, '_' and '-', collapses whitespace and caps the length. A keyword
// that is empty afterwards is a validation error.
func SanitizeKeyword(platform, keyword string) (string, error) {
	s := norm.NFC.String(strings.TrimSpace(keyword))
	s = keywordStripRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(keywordSpaceRe.ReplaceAllString(s, " "))
	if utf8.RuneCountInString(s) > MaxKeywordLength {
		s = strings.TrimSpace(string([]rune(s)[:MaxKeywordLength]))
	}
	if s == "" {
		return "", errs.Newf(errs.KindValidation, platform, "keyword %q is empty after sanitizing", keyword)
	}
	return s, nil
}

// ClampLimit returns def for non-positive limits and caps at max.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// MatchesKeyword reports whether every word of keyword occurs in text,
// case-insensitively. Sources without server-side search filter with it.
func MatchesKeyword(text, keyword string) bool {
	text = strings.ToLower(text)
	for _, w := range strings.Fields(strings.ToLower(keyword)) {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}
