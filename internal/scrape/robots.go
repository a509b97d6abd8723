package scrape

import (
	"strings"
	"time"
)

// DefaultRobotsTTL is how long parsed robots.txt rules are reused per origin.
const DefaultRobotsTTL = time.Hour

const maxCrawlDelay = 30 * time.Second

type robotsRules struct {
	allow     []string
	disallow  []string
	delay     time.Duration
	fetchedAt time.Time
}

// allowed applies longest-prefix matching; Allow wins ties.
// Rules that failed to load allow everything.
func (r *robotsRules) allowed(path string) bool {
	if r == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	best, allow := -1, true
	for _, p := range r.disallow {
		if strings.HasPrefix(path, p) && len(p) > best {
			best, allow = len(p), false
		}
	}
	for _, p := range r.allow {
		if strings.HasPrefix(path, p) && len(p) >= best {
			best, allow = len(p), true
		}
	}
	return allow
}

// parseRobots keeps the group addressed to userAgent when present,
// otherwise the "*" group.
func parseRobots(body, userAgent string) *robotsRules {
	ua := strings.ToLower(userAgent)
	if i := strings.IndexAny(ua, "/ "); i > 0 {
		ua = ua[:i]
	}
	var wildcard, specific robotsRules
	matched := false
	var agents []string
	prev := ""
	for _, line := range strings.Split(body, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "user-agent" {
			if prev != "user-agent" {
				agents = agents[:0]
			}
			agents = append(agents, strings.ToLower(value))
			prev = key
			continue
		}
		prev = key
		for _, agent := range agents {
			var dst *robotsRules
			switch {
			case agent != "*" && strings.HasPrefix(ua, agent):
				dst = &specific
				matched = true
			case agent == "*":
				dst = &wildcard
			default:
				continue
			}
			switch key {
			case "disallow":
				if value != "" {
					dst.disallow = append(dst.disallow, value)
				}
			case "allow":
				if value != "" {
					dst.allow = append(dst.allow, value)
				}
			case "crawl-delay":
				if d, err := time.ParseDuration(value + "s"); err == nil {
					dst.delay = min(d, maxCrawlDelay)
				}
			}
		}
	}
	if matched {
		return &specific
	}
	return &wildcard
}
