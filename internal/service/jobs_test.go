package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/corpus"
)

type blockingRunner struct {
	release chan struct{}
	err     error
	calls   int
	mu      sync.Mutex
}

func (r *blockingRunner) Run(ctx context.Context, progress corpus.ProgressFunc) (*corpus.Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	progress(1, 4)
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	progress(4, 4)
	if r.err != nil {
		return nil, r.err
	}
	return &corpus.Result{Articles: 3, Passages: 12, ByCategory: map[string]int{"incident": 8, "guideline": 4}}, nil
}

type memoryJobStore struct {
	mu          sync.Mutex
	created     []string
	statuses    map[string]string
	results     map[string]map[string]any
	interrupted int
	createErr   error
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{statuses: map[string]string{}, results: map[string]map[string]any{}}
}

func (s *memoryJobStore) CreateRefreshJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, id)
	s.statuses[id] = "pending"
	return nil
}

func (s *memoryJobStore) UpdateRefreshJob(ctx context.Context, id, status string, progress, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *memoryJobStore) CompleteRefreshJob(ctx context.Context, id string, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = "completed"
	s.results[id] = result
	return nil
}

func (s *memoryJobStore) FailRefreshJob(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = "failed"
	return nil
}

func (s *memoryJobStore) FailInterruptedJobs(ctx context.Context) (int, error) {
	return s.interrupted, nil
}

func (s *memoryJobStore) status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

func waitForStatus(t *testing.T, m *JobManager, id string, want JobStatus) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var ok bool
		job, ok = m.GetJob(id)
		return ok && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobManager_SingleFlight(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	store := newMemoryJobStore()
	m := NewJobManager(runner, store, nil, nil)
	defer m.Close()

	id, running, err := m.StartRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, running)
	assert.Len(t, id, 8)

	second, running, err := m.StartRefresh(context.Background())
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, id, second)

	job := waitForStatus(t, m, id, JobStatusRunning)
	assert.Equal(t, 4, job.Total)

	close(runner.release)
	job = waitForStatus(t, m, id, JobStatusCompleted)
	require.NotNil(t, job.Result)
	assert.Equal(t, 12, job.Result.Passages)
	assert.Equal(t, 4, job.Progress)
	assert.NotNil(t, job.CompletedAt)

	require.Eventually(t, func() bool { return store.status(id) == "completed" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, runner.calls)

	// A finished job frees the slot.
	next, running, err := m.StartRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, running)
	assert.NotEqual(t, id, next)
	assert.Len(t, m.ListJobs(), 2)
}

func TestJobManager_Failure(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), err: corpus.ErrEmptyCorpus}
	close(runner.release)
	store := newMemoryJobStore()
	m := NewJobManager(runner, store, nil, nil)
	defer m.Close()

	id, _, err := m.StartRefresh(context.Background())
	require.NoError(t, err)

	job := waitForStatus(t, m, id, JobStatusFailed)
	assert.Contains(t, job.Error, "no passages")
	assert.Nil(t, job.Result)
	require.Eventually(t, func() bool { return store.status(id) == "failed" }, time.Second, 5*time.Millisecond)
}

func TestJobManager_PersistFailure(t *testing.T) {
	store := newMemoryJobStore()
	store.createErr = errors.New("db down")
	m := NewJobManager(&blockingRunner{release: make(chan struct{})}, store, nil, nil)
	defer m.Close()

	_, _, err := m.StartRefresh(context.Background())
	require.ErrorContains(t, err, "db down")
	assert.Empty(t, m.ListJobs())

	// The slot was released.
	store.createErr = nil
	_, running, err := m.StartRefresh(context.Background())
	require.NoError(t, err)
	assert.False(t, running)
}

func TestJobManager_CloseCancelsRun(t *testing.T) {
	m := NewJobManager(&blockingRunner{release: make(chan struct{})}, nil, nil, nil)

	id, _, err := m.StartRefresh(context.Background())
	require.NoError(t, err)
	waitForStatus(t, m, id, JobStatusRunning)

	m.Close()
	job, ok := m.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "canceled")
}

func TestJobManager_RecoverInterrupted(t *testing.T) {
	store := newMemoryJobStore()
	store.interrupted = 2
	m := NewJobManager(&blockingRunner{}, store, nil, nil)
	defer m.Close()
	require.NoError(t, m.RecoverInterrupted(context.Background()))

	noStore := NewJobManager(&blockingRunner{}, nil, nil, nil)
	defer noStore.Close()
	require.NoError(t, noStore.RecoverInterrupted(context.Background()))
}

func TestJobManager_GetUnknown(t *testing.T) {
	m := NewJobManager(&blockingRunner{}, nil, nil, nil)
	defer m.Close()
	_, ok := m.GetJob("nope")
	assert.False(t, ok)
}
