package model

import (
	"strings"
	"time"
)

// Frequency controls how often a keyword is scanned.
type Frequency string

const (
	FrequencyRealtime Frequency = "realtime"
	FrequencyHourly   Frequency = "hourly"
	FrequencyDaily    Frequency = "daily"
)

// Interval maps a frequency to the delay before the next scan.
// Unknown values fall back to one hour.
func (f Frequency) Interval() time.Duration {
	switch Frequency(strings.ToLower(string(f))) {
	case FrequencyRealtime:
		return 5 * time.Minute
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Keyword is a tracked search term owned by a tenant.
type Keyword struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Text       string     `json:"keyword"`
	Platforms  []string   `json:"platforms"`
	Frequency  Frequency  `json:"frequency"`
	IsActive   bool       `json:"is_active"`
	LastScanAt *time.Time `json:"last_scan_at,omitempty"`
	NextScanAt *time.Time `json:"next_scan_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// MonitoringJob is the scheduling row for one (keyword, tenant).
type MonitoringJob struct {
	KeywordID    string     `json:"keyword_id"`
	TenantID     string     `json:"tenant_id"`
	Platforms    []string   `json:"platforms"`
	Frequency    Frequency  `json:"frequency"`
	IsActive     bool       `json:"is_active"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	FailureCount int        `json:"failure_count"`
	LastError    string     `json:"last_error,omitempty"`
}

// ScanResult is the per-platform outcome of a scan. Errors is empty on success.
type ScanResult struct {
	Platform string   `json:"platform"`
	Mentions int      `json:"mentions"`
	Errors   []string `json:"errors"`
}

// OK reports whether the platform scan finished without errors.
func (r ScanResult) OK() bool { return len(r.Errors) == 0 }

// MonitoringStatus is the projection of a job returned to callers.
type MonitoringStatus struct {
	KeywordID  string     `json:"keyword_id"`
	Keyword    string     `json:"keyword"`
	IsActive   bool       `json:"is_active"`
	Platforms  []string   `json:"platforms"`
	Frequency  Frequency  `json:"frequency"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	NextScanIn int64      `json:"next_scan_in_seconds"`
	LastError  string     `json:"last_error,omitempty"`
}
