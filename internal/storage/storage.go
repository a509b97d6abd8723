// Package storage persists conversations, keywords and monitoring jobs.
// SQLiteStore implements all three stores; RedisStore implements the
// conversation store only.
package storage

import (
	"context"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"
)

// Query filters ListConversations. Zero fields do not filter.
// Results are ordered newest first.
type Query struct {
	Tenant    string
	Since     *time.Time
	Until     *time.Time
	Platform  string
	Sentiment model.Sentiment
	// Keyword matches conversations whose extracted keywords contain it.
	Keyword   string
	KeywordID string
	Limit     int
}

type ConversationStore interface {
	// UpsertConversation inserts or replaces the conversation keyed by
	// (tenant, platform, external id). Tags and CreatedAt of an existing row survive.
	UpsertConversation(ctx context.Context, c model.Conversation) error
	ListConversations(ctx context.Context, q Query) ([]model.Conversation, error)
	UpdateSentiment(ctx context.Context, tenant, id string, s model.Sentiment) error
	UpdateTags(ctx context.Context, tenant, id string, tags []string) error
}

type KeywordStore interface {
	CreateKeyword(ctx context.Context, k model.Keyword) error
	GetKeyword(ctx context.Context, tenant, id string) (model.Keyword, error)
	ListKeywords(ctx context.Context, tenant string) ([]model.Keyword, error)
	SetKeywordActive(ctx context.Context, tenant, id string, active bool) error
	UpdateScanTimes(ctx context.Context, tenant, id string, last, next time.Time) error
}

type JobStore interface {
	UpsertJob(ctx context.Context, j model.MonitoringJob) error
	GetJob(ctx context.Context, tenant, keywordID string) (model.MonitoringJob, error)
	DeactivateJob(ctx context.Context, tenant, keywordID string) error
	ListJobs(ctx context.Context, tenant string) ([]model.MonitoringJob, error)
	// DueJobs returns active jobs whose next run is at or before now.
	DueJobs(ctx context.Context, now time.Time) ([]model.MonitoringJob, error)
	// RecordRun stores a run outcome. A non-empty runErr increments the
	// failure count; an empty one resets it.
	RecordRun(ctx context.Context, tenant, keywordID string, ranAt, next time.Time, runErr string) error
}

// timeLayout is fixed width in UTC so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTime(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func persistence(op string, err error) error {
	return errs.Wrap(errs.KindPersistence, op, err)
}

func notFound(what, id string) error {
	return errs.Newf(errs.KindNotFound, "", "%s %q not found", what, id)
}
