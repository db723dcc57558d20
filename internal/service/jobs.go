// Package service holds the DiveRoast use cases behind the HTTP, MCP and
// CLI surfaces: uploads, dashboards and corpus refresh jobs.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/diveroast/internal/corpus"
	"github.com/raphaelgruber/diveroast/internal/metrics"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents a corpus refresh run.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	Result      *corpus.Result `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// trackedJob guards a job that its run goroutine keeps updating.
type trackedJob struct {
	mu sync.RWMutex
	Job
}

// Snapshot returns a thread-safe copy of job state.
func (j *trackedJob) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Job
}

// Runner performs one refresh.
type Runner interface {
	Run(ctx context.Context, progress corpus.ProgressFunc) (*corpus.Result, error)
}

// JobStore persists job history. *db.Client implements it.
type JobStore interface {
	CreateRefreshJob(ctx context.Context, id string) error
	UpdateRefreshJob(ctx context.Context, id, status string, progress, total int) error
	CompleteRefreshJob(ctx context.Context, id string, result map[string]any) error
	FailRefreshJob(ctx context.Context, id, reason string) error
	FailInterruptedJobs(ctx context.Context) (int, error)
}

// JobManager runs corpus refreshes in the background, one at a time.
type JobManager struct {
	jobs    map[string]*trackedJob
	active  string
	mu      sync.RWMutex
	runner  Runner
	store   JobStore
	metrics *metrics.Collector
	logger  *slog.Logger

	// base outlives request contexts; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobManager creates a job manager. store and m may be nil.
func NewJobManager(runner Runner, store JobStore, m *metrics.Collector, logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &JobManager{
		jobs:    make(map[string]*trackedJob),
		runner:  runner,
		store:   store,
		metrics: m,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}
}

// StartRefresh starts a refresh unless one is already pending or running,
// in which case that job's id is returned with running set.
func (m *JobManager) StartRefresh(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	if m.active != "" {
		id := m.active
		m.mu.Unlock()
		return id, true, nil
	}
	job := &trackedJob{Job: Job{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}}
	m.jobs[job.ID] = job
	m.active = job.ID
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.CreateRefreshJob(ctx, job.ID); err != nil {
			m.mu.Lock()
			delete(m.jobs, job.ID)
			m.active = ""
			m.mu.Unlock()
			return "", false, fmt.Errorf("persist refresh job: %w", err)
		}
	}

	m.logger.Info("job created", "job_id", job.ID, "type", "corpus_refresh")
	m.wg.Add(1)
	go m.run(job)
	return job.ID, false, nil
}

func (m *JobManager) run(job *trackedJob) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("refresh job panicked", "job_id", job.ID, "panic", r)
			m.fail(job, fmt.Errorf("internal panic: %v", r))
		}
	}()

	start := time.Now()
	m.setRunning(job)
	result, err := m.runner.Run(m.base, func(done, total int) {
		m.updateProgress(job, done, total)
	})
	if err != nil {
		m.metrics.RecordError(metrics.OpRefresh, "failed")
		m.fail(job, err)
		return
	}
	m.metrics.RecordTiming(metrics.OpRefresh, time.Since(start))
	m.complete(job, result)
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.Snapshot(), true
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tracked := make([]*trackedJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		tracked = append(tracked, job)
	}
	// Sort by start time descending (most recent first)
	slices.SortFunc(tracked, func(a, b *trackedJob) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	jobs := make([]Job, len(tracked))
	for i, job := range tracked {
		jobs[i] = job.Snapshot()
	}
	return jobs
}

// RecoverInterrupted marks jobs a previous process left unfinished as failed.
// A scrape cannot be resumed half way, so the diver re-triggers it instead.
func (m *JobManager) RecoverInterrupted(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	n, err := m.store.FailInterruptedJobs(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("marked interrupted refresh jobs failed", "count", n)
	}
	return nil
}

// Close cancels a running refresh and waits for it to stop.
func (m *JobManager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *JobManager) setRunning(job *trackedJob) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	m.persist(func(ctx context.Context) error {
		return m.store.UpdateRefreshJob(ctx, job.ID, string(JobStatusRunning), 0, 0)
	}, job.ID)
}

func (m *JobManager) updateProgress(job *trackedJob, current, total int) {
	job.mu.Lock()
	job.Progress = current
	job.Total = total
	job.mu.Unlock()
	m.persist(func(ctx context.Context) error {
		return m.store.UpdateRefreshJob(ctx, job.ID, string(JobStatusRunning), current, total)
	}, job.ID)
}

func (m *JobManager) complete(job *trackedJob, result *corpus.Result) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()
	m.release(job.ID)

	m.persist(func(ctx context.Context) error {
		return m.store.CompleteRefreshJob(ctx, job.ID, map[string]any{
			"articles":    result.Articles,
			"passages":    result.Passages,
			"by_category": result.ByCategory,
			"skipped":     result.Skipped,
			"duration_ms": result.Duration.Milliseconds(),
		})
	}, job.ID)
	m.logger.Info("job completed", "job_id", job.ID, "passages", result.Passages, "articles", result.Articles)
}

func (m *JobManager) fail(job *trackedJob, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()
	m.release(job.ID)

	m.persist(func(ctx context.Context) error {
		return m.store.FailRefreshJob(ctx, job.ID, err.Error())
	}, job.ID)
	m.logger.Error("job failed", "job_id", job.ID, "error", err)
}

func (m *JobManager) release(id string) {
	m.mu.Lock()
	if m.active == id {
		m.active = ""
	}
	m.mu.Unlock()
}

// persist writes job state, logging rather than failing the job on error.
func (m *JobManager) persist(write func(ctx context.Context) error, id string) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := write(ctx); err != nil {
		m.logger.Warn("failed to persist job state", "job_id", id, "error", err)
	}
}
