// Package jobs keeps an in-memory history of scheduled scan executions.
package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ScanJob is one execution of a keyword scan.
type ScanJob struct {
	ID          string     `json:"id"`
	KeywordID   string     `json:"keyword_id"`
	TenantID    string     `json:"tenant_id"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Metrics summarizes a set of jobs. AvgProcessingTime is in milliseconds and
// only counts completed jobs that have both timestamps.
type Metrics struct {
	Total             int     `json:"total"`
	Pending           int     `json:"pending"`
	Processing        int     `json:"processing"`
	Completed         int     `json:"completed"`
	Failed            int     `json:"failed"`
	AvgProcessingTime float64 `json:"avg_processing_time_ms"`
}

func CalculateMetrics(jobs []ScanJob) Metrics {
	m := Metrics{Total: len(jobs)}
	var sum time.Duration
	timed := 0
	for _, j := range jobs {
		switch j.Status {
		case StatusPending:
			m.Pending++
		case StatusProcessing:
			m.Processing++
		case StatusCompleted:
			m.Completed++
			if j.StartedAt != nil && j.CompletedAt != nil {
				sum += j.CompletedAt.Sub(*j.StartedAt)
				timed++
			}
		case StatusFailed:
			m.Failed++
		}
	}
	if timed > 0 {
		m.AvgProcessingTime = float64(sum.Milliseconds()) / float64(timed)
	}
	return m
}

const DefaultCapacity = 1000

// Tracker records jobs in creation order and drops the oldest finished ones
// once it holds more than its capacity.
type Tracker struct {
	mu   sync.Mutex
	jobs []*ScanJob
	byID map[string]*ScanJob
	cap  int
	now  func() time.Time
}

func NewTracker(capacity int, now func() time.Time) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{byID: map[string]*ScanJob{}, cap: capacity, now: now}
}

// Enqueue creates a pending job.
func (t *Tracker) Enqueue(keywordID, tenantID string) ScanJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := &ScanJob{
		ID:        uuid.NewString(),
		KeywordID: keywordID,
		TenantID:  tenantID,
		Status:    StatusPending,
		CreatedAt: t.now(),
	}
	t.jobs = append(t.jobs, j)
	t.byID[j.ID] = j
	t.evict()
	return *j
}

func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.byID[id]; ok {
		now := t.now()
		j.StartedAt = &now
		j.Status = StatusProcessing
	}
}

// Finish marks a job completed, or failed when err is non-nil.
func (t *Tracker) Finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.byID[id]
	if !ok {
		return
	}
	now := t.now()
	j.CompletedAt = &now
	if err != nil {
		j.Status = StatusFailed
		j.Error = err.Error()
		return
	}
	j.Status = StatusCompleted
}

// Run tracks fn as one job from enqueue to completion.
func (t *Tracker) Run(ctx context.Context, keywordID, tenantID string, fn func(context.Context) error) error {
	j := t.Enqueue(keywordID, tenantID)
	t.Start(j.ID)
	err := fn(ctx)
	t.Finish(j.ID, err)
	return err
}

func (t *Tracker) Get(id string) (ScanJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.byID[id]
	if !ok {
		return ScanJob{}, false
	}
	return *j, true
}

// List returns copies of the tracked jobs, oldest first. An empty tenant
// returns every job.
func (t *Tracker) List(tenantID string) []ScanJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ScanJob, 0, len(t.jobs))
	for _, j := range t.jobs {
		if tenantID == "" || j.TenantID == tenantID {
			out = append(out, *j)
		}
	}
	return out
}

func (t *Tracker) Metrics(tenantID string) Metrics {
	return CalculateMetrics(t.List(tenantID))
}

// evict drops finished jobs, oldest first, until the tracker fits. Jobs
// still pending or processing are never dropped.
func (t *Tracker) evict() {
	over := len(t.jobs) - t.cap
	if over <= 0 {
		return
	}
	t.jobs = slices.DeleteFunc(t.jobs, func(j *ScanJob) bool {
		if over == 0 || j.Status == StatusPending || j.Status == StatusProcessing {
			return false
		}
		over--
		delete(t.byID, j.ID)
		return true
	})
}
