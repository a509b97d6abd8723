// Package reviews scrapes a review site that offers no API. Pages go through
// the shared scraper (robots.txt, pacing, retries) and reviews are recovered
// with tolerant pattern-based extraction.
package reviews

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/adapter"
	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
	"mentionwatch/internal/scrape"

	"github.com/araddon/dateparse"
)

const (
	Platform          = "reviews"
	DefaultSearchPath = "/search?q=%s"

	maxPages    = 3
	maxLimit    = 50
	defaultBest = 5.0
)

type Source struct {
	scraper    *scrape.Scraper
	baseURL    string
	searchPath string
}

func New(baseURL, searchPath string, s *scrape.Scraper) *Source {
	return &Source{
		scraper:    s,
		baseURL:    strings.TrimRight(baseURL, "/"),
		searchPath: cmp.Or(searchPath, DefaultSearchPath),
	}
}

func (s *Source) Platform() string { return Platform }

// review is one block recovered from a listing page. Missing parts stay empty.
type review struct {
	ID        string
	Title     string
	Author    string
	Date      string
	Body      string
	Link      string
	Rating    float64
	Best      float64
	HasRating bool
	Helpful   int64
}

// Search walks up to maxPages of search results following rel="next".
func (s *Source) Search(ctx context.Context, keyword string, opts model.SearchOptions) ([]model.RawContent, error) {
	kw, err := adapter.SanitizeKeyword(Platform, keyword)
	if err != nil {
		return nil, err
	}
	if s.baseURL == "" || s.scraper == nil {
		return nil, errs.New(errs.KindConfig, Platform, "review site base_url not configured")
	}
	limit := adapter.ClampLimit(opts.Limit, adapter.DefaultLimit, maxLimit)
	target := s.baseURL + fmt.Sprintf(s.searchPath, url.QueryEscape(kw))

	var found []review
	for page := 0; page < maxPages && target != "" && len(found) < limit; page++ {
		data, err := s.scraper.Fetch(ctx, target)
		if err != nil {
			if page > 0 {
				break
			}
			return nil, fetchError(err)
		}
		doc := scrape.Parse(data)
		for _, r := range parseReviews(doc, target) {
			if keep(r, opts) {
				found = append(found, r)
			}
		}
		target = nextPage(doc, target)
	}
	if opts.SortBy == "date" || opts.SortBy == "recent" {
		sort.SliceStable(found, func(i, j int) bool { return parseDate(found[i].Date).After(parseDate(found[j].Date)) })
	}
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]model.RawContent, 0, len(found))
	for _, r := range found {
		out = append(out, r.raw())
	}
	return out, nil
}

// GetContent is unsupported: the site has no stable per-review page.
func (s *Source) GetContent(context.Context, string) (*model.RawContent, error) {
	return nil, nil
}

// ValidateConfiguration fetches the site root.
func (s *Source) ValidateConfiguration(ctx context.Context) bool {
	if s.baseURL == "" || s.scraper == nil {
		return false
	}
	_, err := s.scraper.Fetch(ctx, s.baseURL+"/")
	return err == nil
}

func fetchError(err error) error {
	if errors.Is(err, scrape.ErrDisallowed) {
		return &errs.Error{Kind: errs.KindProvider, Platform: Platform, Msg: "blocked by robots.txt", Err: err}
	}
	return errs.Provider(Platform, err)
}

func keep(r review, opts model.SearchOptions) bool {
	if opts.Since == nil && opts.Until == nil {
		return true
	}
	t := parseDate(r.Date)
	if t.IsZero() {
		return true
	}
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	return opts.Until == nil || !t.After(*opts.Until)
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseReviews(doc *scrape.Node, pageURL string) []review {
	blocks := doc.ByAttr("itemprop", "review")
	if len(blocks) == 0 {
		blocks = doc.ByClass("review")
	}
	out := make([]review, 0, len(blocks))
	for _, b := range blocks {
		titleNode := firstNode(b.FirstClass("review-title"), b.FirstAttr("itemprop", "name"), b.First("h3"), b.First("h2"))
		r := review{
			ID:    cmp.Or(b.Attr("data-review-id"), b.Attr("id")),
			Title: titleNode.Text(),
			Author: cmp.Or(
				b.FirstAttr("itemprop", "author").Text(),
				b.FirstClass("review-author").Text(),
				b.FirstClass("author").Text(),
			),
			Date: cmp.Or(
				b.First("time").Attr("datetime"),
				b.FirstAttr("itemprop", "datePublished").Attr("content"),
				b.First("time").Text(),
				b.FirstClass("date").Text(),
			),
			Body: cmp.Or(
				b.FirstAttr("itemprop", "reviewBody").Text(),
				b.FirstClass("review-body").Text(),
				b.FirstClass("review-text").Text(),
				b.First("p").Text(),
			),
			Helpful: scrape.Count(b.FirstClass("helpful").Text()),
		}
		r.Rating, r.Best, r.HasRating = parseRating(b)
		r.Link = resolve(pageURL, cmp.Or(titleNode.First("a").Attr("href"), titleNode.Attr("href")))
		if r.Link == "" {
			r.Link = pageURL
		}
		if r.ID == "" {
			h := sha256.Sum256([]byte(r.Author + "|" + r.Title + "|" + r.Date + "|" + r.Body))
			r.ID = hex.EncodeToString(h[:12])
		}
		if r.Title == "" && r.Body == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

var (
	ratingOutOfRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:/|out of|of)\s*(\d+)`)
	ratingRe      = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
)

// parseRating understands schema.org markup, data-rating attributes,
// "4 out of 5" / "4.5/5" text and star glyphs.
func parseRating(b *scrape.Node) (value, best float64, ok bool) {
	best = defaultBest
	if v, err := parseNumber(b.FirstAttr("itemprop", "bestRating").Attr("content")); err == nil && v > 0 {
		best = v
	}
	rv := b.FirstAttr("itemprop", "ratingValue")
	candidates := []string{
		rv.Attr("content"),
		rv.Text(),
		b.Attr("data-rating"),
		b.FirstClass("rating").Attr("data-rating"),
	}
	for _, c := range candidates {
		if v, err := parseNumber(c); err == nil {
			return clampRating(v, best), best, true
		}
	}
	text := b.FirstClass("rating").Text()
	if m := ratingOutOfRe.FindStringSubmatch(text); m != nil {
		v, err1 := parseNumber(m[1])
		of, err2 := parseNumber(m[2])
		if err1 == nil && err2 == nil && of > 0 {
			return clampRating(v, of), of, true
		}
	}
	if stars := strings.Count(text, "★"); stars > 0 {
		return clampRating(float64(stars), best), best, true
	}
	if v, err := parseNumber(scrape.Match(ratingRe, text)); err == nil {
		return clampRating(v, best), best, true
	}
	return 0, best, false
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

func clampRating(v, best float64) float64 {
	return max(0, min(v, best))
}

func nextPage(doc *scrape.Node, pageURL string) string {
	href := cmp.Or(doc.FirstAttr("rel", "next").Attr("href"), doc.FirstClass("next").Attr("href"))
	next := resolve(pageURL, href)
	if next == pageURL {
		return ""
	}
	return next
}

func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(u).String()
}

func firstNode(nodes ...*scrape.Node) *scrape.Node {
	for _, n := range nodes {
		if n != nil {
			return n
		}
	}
	return nil
}

// raw converts a review; ratings map onto sentiment through the percent scale.
func (r review) raw() model.RawContent {
	meta := map[string]any{"title": r.Title}
	if r.HasRating {
		pct := r.Rating / r.Best * 100
		meta["rating"] = r.Rating
		meta["best_rating"] = r.Best
		meta["sentiment"] = string(adapter.PercentScale.Classify(pct))
		meta["sentiment_score"] = adapter.PercentScale.Unit(pct)
	}
	if u, err := url.Parse(r.Link); err == nil && u.Host != "" {
		meta["site"] = u.Host
	}
	return model.RawContent{
		ID:         r.ID,
		Content:    strings.TrimSpace(r.Title + "\n\n" + r.Body),
		Author:     r.Author,
		URL:        r.Link,
		Timestamp:  r.Date,
		Engagement: map[string]any{"likes": r.Helpful},
		Metadata:   meta,
	}
}
