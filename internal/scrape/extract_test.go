package scrape

import (
	"regexp"
	"testing"
	"time"
)

const articleHTML = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Launch day">
<meta name="description" content="We shipped it">
<meta property="article:published_time" content="2024-03-01T10:00:00Z">
</head><body>
<article>
<span class="author">Jane Doe</span>
<p>The product launched today.</p>
<script>var tracking = 1;</script>
<a href="/reviews/1#top">one</a>
<a href="https://other.example/x">two</a>
<a href="#skip">skip</a>
</article>
</body></html>`

func TestExtract(t *testing.T) {
	p := Extract([]byte(articleHTML), "https://shop.example/blog/launch")
	if p.Title != "Launch day" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Description != "We shipped it" {
		t.Errorf("description = %q", p.Description)
	}
	if p.Author != "Jane Doe" {
		t.Errorf("author = %q", p.Author)
	}
	if p.Published != "2024-03-01T10:00:00Z" {
		t.Errorf("published = %q", p.Published)
	}
	if len(p.Links) != 2 || p.Links[0] != "https://shop.example/reviews/1" || p.Links[1] != "https://other.example/x" {
		t.Errorf("links = %v", p.Links)
	}
	if p.Content == "" {
		t.Errorf("expected content")
	}
}

func TestExtractMalformedMarkup(t *testing.T) {
	p := Extract([]byte("<div><p>unclosed <b>tags"), "::not a url")
	if p == nil {
		t.Fatal("nil page")
	}
	if p.Title != "" || p.Author != "" {
		t.Errorf("unexpected fields: %+v", p)
	}
	if p.Content != "unclosed tags" {
		t.Errorf("content = %q", p.Content)
	}
}

func TestNodeNilSafety(t *testing.T) {
	var n *Node
	if n.Text() != "" || n.Attr("href") != "" || n.FirstClass("x") != nil {
		t.Fatal("nil node should degrade to empty values")
	}
	doc := Parse([]byte(`<ul><li class="review a">x <script>bad()</script></li><li class="review">y</li></ul>`))
	items := doc.ByClass("review")
	if len(items) != 2 {
		t.Fatalf("ByClass = %d", len(items))
	}
	if items[0].Text() != "x" {
		t.Fatalf("text = %q", items[0].Text())
	}
	if doc.FirstClass("missing").FirstClass("deeper").Text() != "" {
		t.Fatal("chained lookups on missing nodes should be empty")
	}
}

func TestCount(t *testing.T) {
	cases := map[string]int64{
		"1,204 likes": 1204,
		"3.4k":        3400,
		"2M views":    2000000,
		"1,5k":        1500,
		"none":        0,
		"":            0,
	}
	for in, want := range cases {
		if got := Count(in); got != want {
			t.Errorf("Count(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestMatch(t *testing.T) {
	re := regexp.MustCompile(`Rated (\d(?:\.\d)?) out of 5`)
	if got := Match(re, "Rated 4.5 out of 5 stars"); got != "4.5" {
		t.Fatalf("Match = %q", got)
	}
	if got := Match(re, "no rating"); got != "" {
		t.Fatalf("Match = %q", got)
	}
}

func TestParseRobots(t *testing.T) {
	body := `# comment
User-agent: mentionwatch
User-agent: otherbot
Disallow: /search
Crawl-delay: 3

User-agent: *
Disallow: /
`
	r := parseRobots(body, "mentionwatch/1.0 (+https://example)")
	if r.allowed("/search?q=x") {
		t.Error("specific group should disallow /search")
	}
	if !r.allowed("/reviews") {
		t.Error("specific group should allow /reviews")
	}
	if r.delay != 3*time.Second {
		t.Errorf("delay = %s", r.delay)
	}
	w := parseRobots(body, "somebot")
	if w.allowed("/anything") {
		t.Error("wildcard group should disallow everything")
	}
	var none *robotsRules
	if !none.allowed("/x") {
		t.Error("nil rules allow everything")
	}
}

func TestMarkdownTitle(t *testing.T) {
	md := "intro\n## Second\n# First\n### Third"
	if got := markdownTitle(md); got != "First" {
		t.Fatalf("markdownTitle = %q", got)
	}
	if got := markdownTitle("no headings"); got != "" {
		t.Fatalf("markdownTitle = %q", got)
	}
}
