package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps conversations, keywords and monitoring jobs in one
// SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ConversationStore = (*SQLiteStore)(nil)
	_ KeywordStore      = (*SQLiteStore)(nil)
	_ JobStore          = (*SQLiteStore)(nil)
)

// Open opens (or creates) mentionwatch.db in dataDir and applies pending
// migrations. ":memory:" opens a private in-memory database.
func Open(dataDir string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "mentionwatch.db")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: keeps ":memory:" databases alive and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Conversations ---

func (s *SQLiteStore) UpsertConversation(ctx context.Context, c model.Conversation) error {
	c, err := prepareConversation(c)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(orEmptyMap(c.Metadata))
	if err != nil {
		return persistence("storage: encode metadata", err)
	}
	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (tenant_id, id, platform, external_id, keyword_id, content, author, url, ts,
			likes, shares, comments, metadata, sentiment, keywords, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, platform, external_id) DO UPDATE SET
			keyword_id = excluded.keyword_id,
			content    = excluded.content,
			author     = excluded.author,
			url        = excluded.url,
			ts         = excluded.ts,
			likes      = excluded.likes,
			shares     = excluded.shares,
			comments   = excluded.comments,
			metadata   = excluded.metadata,
			sentiment  = excluded.sentiment,
			keywords   = excluded.keywords,
			updated_at = excluded.updated_at`,
		c.TenantID, c.ID, c.Platform, c.ExternalID, c.KeywordID, c.Content, c.Author, c.URL, c.Timestamp,
		c.Engagement.Likes, c.Engagement.Shares, c.Engagement.Comments, string(meta), string(c.Sentiment),
		jsonList(c.Keywords), jsonList(c.Tags), now, now,
	)
	if err != nil {
		return persistence("storage: upsert conversation", err)
	}
	return nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, q Query) ([]model.Conversation, error) {
	if q.Tenant == "" {
		return nil, errs.New(errs.KindValidation, "", "tenant is required")
	}
	where := []string{"tenant_id = ?"}
	args := []any{q.Tenant}
	if q.Since != nil {
		where = append(where, "ts >= ?")
		args = append(args, formatTime(*q.Since))
	}
	if q.Until != nil {
		where = append(where, "ts <= ?")
		args = append(args, formatTime(*q.Until))
	}
	if q.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, strings.ToLower(q.Platform))
	}
	if q.Sentiment != "" {
		where = append(where, "sentiment = ?")
		args = append(args, string(q.Sentiment))
	}
	if q.KeywordID != "" {
		where = append(where, "keyword_id = ?")
		args = append(args, q.KeywordID)
	}
	if q.Keyword != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(conversations.keywords) WHERE json_each.value = ?)")
		args = append(args, strings.ToLower(q.Keyword))
	}
	query := `SELECT tenant_id, id, platform, external_id, keyword_id, content, author, url, ts,
		likes, shares, comments, metadata, sentiment, keywords, tags, created_at, updated_at
		FROM conversations WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ts DESC, id ASC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("storage: list conversations", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		var (
			c                          model.Conversation
			meta, sentiment, kws, tags string
			created, updated           string
		)
		if err := rows.Scan(&c.TenantID, &c.ID, &c.Platform, &c.ExternalID, &c.KeywordID, &c.Content, &c.Author,
			&c.URL, &c.Timestamp, &c.Engagement.Likes, &c.Engagement.Shares, &c.Engagement.Comments,
			&meta, &sentiment, &kws, &tags, &created, &updated); err != nil {
			return nil, persistence("storage: scan conversation", err)
		}
		_ = json.Unmarshal([]byte(meta), &c.Metadata)
		_ = json.Unmarshal([]byte(kws), &c.Keywords)
		_ = json.Unmarshal([]byte(tags), &c.Tags)
		c.Sentiment = model.Sentiment(sentiment)
		c.CreatedAt = parseTime(created)
		c.UpdatedAt = parseTime(updated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("storage: list conversations", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateSentiment(ctx context.Context, tenant, id string, sentiment model.Sentiment) error {
	if !sentiment.Valid() {
		return errs.Newf(errs.KindValidation, "", "invalid sentiment %q", sentiment)
	}
	return s.updateConversation(ctx, "storage: update sentiment", tenant, id,
		"sentiment = ?", string(sentiment))
}

func (s *SQLiteStore) UpdateTags(ctx context.Context, tenant, id string, tags []string) error {
	return s.updateConversation(ctx, "storage: update tags", tenant, id, "tags = ?", jsonList(tags))
}

func (s *SQLiteStore) updateConversation(ctx context.Context, op, tenant, id, set string, value any) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET "+set+", updated_at = ? WHERE tenant_id = ? AND id = ?",
		value, formatTime(s.now()), tenant, id)
	if err != nil {
		return persistence(op, err)
	}
	return requireRow(res, op, "conversation", id)
}

// --- Keywords ---

func (s *SQLiteStore) CreateKeyword(ctx context.Context, k model.Keyword) error {
	if k.ID == "" || k.TenantID == "" {
		return errs.New(errs.KindValidation, "", "keyword id and tenant are required")
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keywords (id, tenant_id, keyword, platforms, frequency, is_active, last_scan_at, next_scan_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.TenantID, k.Text, jsonList(k.Platforms), string(k.Frequency), k.IsActive,
		formatTimePtr(k.LastScanAt), formatTimePtr(k.NextScanAt), formatTime(k.CreatedAt),
	)
	if err != nil {
		return persistence("storage: create keyword", err)
	}
	return nil
}

const keywordColumns = `id, tenant_id, keyword, platforms, frequency, is_active, last_scan_at, next_scan_at, created_at`

func (s *SQLiteStore) GetKeyword(ctx context.Context, tenant, id string) (model.Keyword, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+keywordColumns+" FROM keywords WHERE tenant_id = ? AND id = ?", tenant, id)
	k, err := scanKeyword(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Keyword{}, notFound("keyword", id)
	}
	if err != nil {
		return model.Keyword{}, persistence("storage: get keyword", err)
	}
	return k, nil
}

func (s *SQLiteStore) ListKeywords(ctx context.Context, tenant string) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+keywordColumns+" FROM keywords WHERE tenant_id = ? ORDER BY created_at, id", tenant)
	if err != nil {
		return nil, persistence("storage: list keywords", err)
	}
	defer rows.Close()
	var out []model.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, persistence("storage: scan keyword", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("storage: list keywords", err)
	}
	return out, nil
}

func (s *SQLiteStore) SetKeywordActive(ctx context.Context, tenant, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE keywords SET is_active = ? WHERE tenant_id = ? AND id = ?", active, tenant, id)
	if err != nil {
		return persistence("storage: set keyword active", err)
	}
	return requireRow(res, "storage: set keyword active", "keyword", id)
}

func (s *SQLiteStore) UpdateScanTimes(ctx context.Context, tenant, id string, last, next time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE keywords SET last_scan_at = ?, next_scan_at = ? WHERE tenant_id = ? AND id = ?",
		formatTime(last), formatTime(next), tenant, id)
	if err != nil {
		return persistence("storage: update scan times", err)
	}
	return requireRow(res, "storage: update scan times", "keyword", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKeyword(r rowScanner) (model.Keyword, error) {
	var (
		k               model.Keyword
		platforms, freq string
		last, next      *string
		created         string
	)
	if err := r.Scan(&k.ID, &k.TenantID, &k.Text, &platforms, &freq, &k.IsActive, &last, &next, &created); err != nil {
		return model.Keyword{}, err
	}
	_ = json.Unmarshal([]byte(platforms), &k.Platforms)
	k.Frequency = model.Frequency(freq)
	k.LastScanAt = parseTimePtr(last)
	k.NextScanAt = parseTimePtr(next)
	k.CreatedAt = parseTime(created)
	return k, nil
}

// --- Monitoring jobs ---

func (s *SQLiteStore) UpsertJob(ctx context.Context, j model.MonitoringJob) error {
	if j.KeywordID == "" || j.TenantID == "" {
		return errs.New(errs.KindValidation, "", "job keyword and tenant are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitoring_jobs (keyword_id, tenant_id, platforms, frequency, is_active, last_run, next_run, failure_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(keyword_id, tenant_id) DO UPDATE SET
			platforms     = excluded.platforms,
			frequency     = excluded.frequency,
			is_active     = excluded.is_active,
			last_run      = COALESCE(excluded.last_run, monitoring_jobs.last_run),
			next_run      = excluded.next_run,
			failure_count = excluded.failure_count,
			last_error    = excluded.last_error`,
		j.KeywordID, j.TenantID, jsonList(j.Platforms), string(j.Frequency), j.IsActive,
		formatTimePtr(j.LastRun), formatTimePtr(j.NextRun), j.FailureCount, j.LastError,
	)
	if err != nil {
		return persistence("storage: upsert job", err)
	}
	return nil
}

const jobColumns = `keyword_id, tenant_id, platforms, frequency, is_active, last_run, next_run, failure_count, last_error`

func (s *SQLiteStore) GetJob(ctx context.Context, tenant, keywordID string) (model.MonitoringJob, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM monitoring_jobs WHERE tenant_id = ? AND keyword_id = ?", tenant, keywordID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MonitoringJob{}, notFound("job", keywordID)
	}
	if err != nil {
		return model.MonitoringJob{}, persistence("storage: get job", err)
	}
	return j, nil
}

func (s *SQLiteStore) DeactivateJob(ctx context.Context, tenant, keywordID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE monitoring_jobs SET is_active = 0 WHERE tenant_id = ? AND keyword_id = ?", tenant, keywordID)
	if err != nil {
		return persistence("storage: deactivate job", err)
	}
	return requireRow(res, "storage: deactivate job", "job", keywordID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, tenant string) ([]model.MonitoringJob, error) {
	return s.queryJobs(ctx, "storage: list jobs",
		"SELECT "+jobColumns+" FROM monitoring_jobs WHERE tenant_id = ? ORDER BY keyword_id", tenant)
}

func (s *SQLiteStore) DueJobs(ctx context.Context, now time.Time) ([]model.MonitoringJob, error) {
	return s.queryJobs(ctx, "storage: due jobs",
		"SELECT "+jobColumns+" FROM monitoring_jobs WHERE is_active = 1 AND next_run IS NOT NULL AND next_run <= ? ORDER BY next_run, keyword_id",
		formatTime(now))
}

func (s *SQLiteStore) RecordRun(ctx context.Context, tenant, keywordID string, ranAt, next time.Time, runErr string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs SET
			last_run = ?,
			next_run = ?,
			failure_count = CASE WHEN ? = '' THEN 0 ELSE failure_count + 1 END,
			last_error = ?
		WHERE tenant_id = ? AND keyword_id = ?`,
		formatTime(ranAt), formatTime(next), runErr, runErr, tenant, keywordID)
	if err != nil {
		return persistence("storage: record run", err)
	}
	return requireRow(res, "storage: record run", "job", keywordID)
}

func (s *SQLiteStore) queryJobs(ctx context.Context, op, query string, args ...any) ([]model.MonitoringJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence(op, err)
	}
	defer rows.Close()
	var out []model.MonitoringJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, persistence(op, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence(op, err)
	}
	return out, nil
}

func scanJob(r rowScanner) (model.MonitoringJob, error) {
	var (
		j               model.MonitoringJob
		platforms, freq string
		last, next      *string
	)
	if err := r.Scan(&j.KeywordID, &j.TenantID, &platforms, &freq, &j.IsActive, &last, &next, &j.FailureCount, &j.LastError); err != nil {
		return model.MonitoringJob{}, err
	}
	_ = json.Unmarshal([]byte(platforms), &j.Platforms)
	j.Frequency = model.Frequency(freq)
	j.LastRun = parseTimePtr(last)
	j.NextRun = parseTimePtr(next)
	return j, nil
}

// --- helpers ---

// prepareConversation validates the natural key and canonicalizes fields
// both stores persist.
func prepareConversation(c model.Conversation) (model.Conversation, error) {
	if c.TenantID == "" || c.ID == "" || c.Platform == "" {
		return c, errs.New(errs.KindValidation, c.Platform, "conversation tenant, id and platform are required")
	}
	c.Platform = strings.ToLower(c.Platform)
	if c.ExternalID == "" {
		c.ExternalID = strings.TrimPrefix(c.ID, c.Platform+"_")
	}
	if !c.Sentiment.Valid() {
		c.Sentiment = model.SentimentNeutral
	}
	if t := c.Time(); !t.IsZero() {
		c.Timestamp = formatTime(t)
	}
	return c, nil
}

func requireRow(res sql.Result, op, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistence(op, err)
	}
	if n == 0 {
		return notFound(what, id)
	}
	return nil
}

func jsonList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
