package ratelimit

import (
	"strings"

	"mentionwatch/internal/config"
)

// Quota is the request budget for one platform. PerHour applies to the
// limiter's window; BurstPerMinute is optional (0 disables it).
type Quota struct {
	PerHour        int
	BurstPerMinute int
}

// DefaultQuota applies to platforms with no seeded or configured budget.
var DefaultQuota = Quota{PerHour: 100, BurstPerMinute: 10}

// DefaultQuotas are conservative budgets per known platform family,
// well under each provider's published limits.
func DefaultQuotas() map[string]Quota {
	return map[string]Quota{
		"reddit":     {PerHour: 600, BurstPerMinute: 60},
		"twitter":    {PerHour: 300, BurstPerMinute: 15},
		"hackernews": {PerHour: 1000, BurstPerMinute: 60},
		"v2ex":       {PerHour: 120, BurstPerMinute: 10},
		"rss":        {PerHour: 360, BurstPerMinute: 30},
		"reviews":    {PerHour: 60, BurstPerMinute: 5},
		"brandwatch": {PerHour: 1000, BurstPerMinute: 30},
		"talkwalker": {PerHour: 600, BurstPerMinute: 30},
	}
}

// QuotasFromConfig overlays configured budgets on the defaults.
func QuotasFromConfig(cfg map[string]config.QuotaConfig) map[string]Quota {
	out := DefaultQuotas()
	for platform, q := range cfg {
		out[strings.ToLower(platform)] = Quota{PerHour: q.PerHour, BurstPerMinute: q.BurstPerMinute}
	}
	return out
}
