package monitor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for scans. A nil *Metrics records nothing.
type Metrics struct {
	Scans            *prometheus.CounterVec
	MentionsIngested *prometheus.CounterVec
	RateLimitDenials *prometheus.CounterVec
	ScanDuration     *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionwatch_platform_scans_total",
			Help: "Platform scans by outcome.",
		}, []string{"platform", "outcome"}),
		MentionsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionwatch_mentions_ingested_total",
			Help: "Conversations upserted per platform.",
		}, []string{"platform"}),
		RateLimitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentionwatch_ratelimit_denials_total",
			Help: "Platform scans skipped by the rate limiter.",
		}, []string{"platform"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mentionwatch_platform_scan_duration_seconds",
			Help:    "Duration of one platform search plus ingest.",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
	}
	if reg != nil {
		reg.MustRegister(m.Scans, m.MentionsIngested, m.RateLimitDenials, m.ScanDuration)
	}
	return m
}

func (m *Metrics) observeScan(platform, outcome string, mentions int, seconds float64) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(platform, outcome).Inc()
	if mentions > 0 {
		m.MentionsIngested.WithLabelValues(platform).Add(float64(mentions))
	}
	if outcome != outcomeRateLimited {
		m.ScanDuration.WithLabelValues(platform).Observe(seconds)
	}
}

func (m *Metrics) denied(platform string) {
	if m == nil {
		return
	}
	m.RateLimitDenials.WithLabelValues(platform).Inc()
}
