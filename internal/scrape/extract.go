package scrape

import (
	"bytes"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html"
)

// Page is what extraction recovers from one HTML document. Missing parts are empty.
type Page struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Author      string            `json:"author"`
	Published   string            `json:"published"`
	Description string            `json:"description"`
	Content     string            `json:"content"`
	Links       []string          `json:"links,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

const readabilityMinWords = 30

// Extract pulls title, author, date, description, links and body text from
// raw HTML. Malformed markup yields a partially filled Page, never an error.
func Extract(data []byte, pageURL string) *Page {
	p := &Page{URL: pageURL, Meta: map[string]string{}}
	doc := Parse(data)
	if doc.n == nil {
		return p
	}
	for _, m := range doc.Find(func(n *html.Node) bool { return n.Data == "meta" }) {
		key := strings.ToLower(firstNonEmpty(m.Attr("property"), m.Attr("name"), m.Attr("itemprop")))
		if key != "" && m.Attr("content") != "" {
			p.Meta[key] = strings.TrimSpace(m.Attr("content"))
		}
	}
	p.Title = firstNonEmpty(p.Meta["og:title"], doc.First("title").Text(), doc.First("h1").Text())
	p.Description = firstNonEmpty(p.Meta["og:description"], p.Meta["description"])
	p.Author = firstNonEmpty(
		p.Meta["author"],
		p.Meta["article:author"],
		doc.FirstWhere(hasAttrValue("rel", "author")).Text(),
		doc.FirstWhere(hasAttrValue("itemprop", "author")).Text(),
		doc.FirstClass("author").Text(),
	)
	p.Published = firstNonEmpty(
		p.Meta["article:published_time"],
		p.Meta["datepublished"],
		doc.FirstWhere(hasAttrValue("itemprop", "datePublished")).Attr("content"),
		doc.First("time").Attr("datetime"),
		doc.First("time").Text(),
	)
	p.Links = extractLinks(doc, pageURL)
	p.Content = extractBody(data, doc, pageURL)
	return p
}

func extractBody(data []byte, doc *Node, pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(data), parsed)
	if err == nil && article.Node != nil {
		var buf bytes.Buffer
		if article.RenderText(&buf) == nil {
			text := collapseSpace(buf.String())
			if len(strings.Fields(text)) >= readabilityMinWords {
				return text
			}
		}
	}
	body := doc.First("body")
	if body == nil {
		body = doc
	}
	return body.Text()
}

func extractLinks(doc *Node, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	seen := map[string]bool{}
	var out []string
	for _, a := range doc.Find(func(n *html.Node) bool { return n.Data == "a" }) {
		href := strings.TrimSpace(a.Attr("href"))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			continue
		}
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		u.Fragment = ""
		s := u.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Node wraps an html.Node. All methods are nil-safe and degrade to empty values,
// so extraction code can chain lookups without checks.
type Node struct {
	n *html.Node
}

// Parse builds a tree from raw HTML. The result is never nil.
func Parse(data []byte) *Node {
	n, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return &Node{}
	}
	return &Node{n: n}
}

// Find returns every element under n matching pred, in document order.
func (n *Node) Find(pred func(*html.Node) bool) []*Node {
	if n == nil || n.n == nil {
		return nil
	}
	var out []*Node
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		if h.Type == html.ElementNode && pred(h) {
			out = append(out, &Node{n: h})
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.n)
	return out
}

// FirstWhere returns the first element matching pred, or nil.
func (n *Node) FirstWhere(pred func(*html.Node) bool) *Node {
	if found := n.Find(pred); len(found) > 0 {
		return found[0]
	}
	return nil
}

// First returns the first element with the given tag name.
func (n *Node) First(tag string) *Node {
	return n.FirstWhere(func(h *html.Node) bool { return h.Data == tag })
}

// ByClass returns elements whose class list contains class.
func (n *Node) ByClass(class string) []*Node {
	return n.Find(hasClass(class))
}

// FirstClass returns the first element whose class list contains class.
func (n *Node) FirstClass(class string) *Node {
	return n.FirstWhere(hasClass(class))
}

// ByAttr returns elements whose key attribute equals value, case-insensitively.
func (n *Node) ByAttr(key, value string) []*Node {
	return n.Find(hasAttrValue(key, value))
}

// FirstAttr is the first element of ByAttr, or nil.
func (n *Node) FirstAttr(key, value string) *Node {
	return n.FirstWhere(hasAttrValue(key, value))
}

// Attr returns the attribute value or "".
func (n *Node) Attr(key string) string {
	if n == nil || n.n == nil {
		return ""
	}
	for _, a := range n.n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// Text returns the visible text under n with whitespace collapsed.
func (n *Node) Text() string {
	if n == nil || n.n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(h *html.Node) {
		if h.Type == html.ElementNode {
			switch h.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if h.Type == html.TextNode {
			b.WriteString(h.Data)
			b.WriteByte(' ')
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n.n)
	return collapseSpace(b.String())
}

func hasClass(class string) func(*html.Node) bool {
	return func(h *html.Node) bool {
		for _, a := range h.Attr {
			if a.Key == "class" {
				for _, c := range strings.Fields(a.Val) {
					if c == class {
						return true
					}
				}
			}
		}
		return false
	}
}

func hasAttrValue(key, value string) func(*html.Node) bool {
	return func(h *html.Node) bool {
		for _, a := range h.Attr {
			if a.Key == key && strings.EqualFold(a.Val, value) {
				return true
			}
		}
		return false
	}
}

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	numberRe = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*([kKmM]\b)?`)
)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Match returns the first capture group of pattern in s, or "".
func Match(pattern *regexp.Regexp, s string) string {
	m := pattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Count parses engagement counters such as "1,204", "3.4k" or "2M".
// Unparseable input yields 0.
func Count(s string) int64 {
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	num := m[1]
	mult := 1.0
	switch strings.ToLower(m[2]) {
	case "k":
		mult = 1e3
		num = strings.ReplaceAll(num, ",", ".")
	case "m":
		mult = 1e6
		num = strings.ReplaceAll(num, ",", ".")
	default:
		num = strings.ReplaceAll(num, ",", "")
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * mult))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
