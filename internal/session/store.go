// Package session keeps analysis sessions in memory for their lifetime.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// Analysis is the derived state stored alongside a session's dives.
type Analysis struct {
	Features []models.DiveFeatures
	Ranking  []models.ProblematicDive
	Excluded []models.ExcludedDive
}

// Store is the single authority for session existence and mutation.
type Store interface {
	Create(dives []models.Dive, a Analysis) string
	Get(id string) (models.Session, error)
	// AppendTurns appends all turns or none.
	AppendTurns(id string, turns ...models.Turn) error
	Delete(id string) error
	// AcquireTurn blocks until no other turn runs on the session.
	AcquireTurn(ctx context.Context, id string) (release func(), err error)
	Len() int
}

type entry struct {
	mu      sync.RWMutex
	session models.Session
	turn    *semaphore.Weighted
}

// MemoryStore is a TTL-bounded Store. Sessions expire after ttl of inactivity.
type MemoryStore struct {
	cache  *cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose sessions expire after ttl without use.
func NewMemoryStore(ttl time.Duration, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	c := cache.New(ttl, 10*time.Minute)
	c.OnEvicted(func(id string, _ any) {
		logger.Info("session evicted", "session_id", id)
	})
	return &MemoryStore{cache: c, ttl: ttl, now: time.Now, logger: logger}
}

// Create registers a new session and returns its id.
func (s *MemoryStore) Create(dives []models.Dive, a Analysis) string {
	id := uuid.New().String()
	now := s.now().UTC()
	e := &entry{
		session: models.Session{
			ID:        id,
			Dives:     dives,
			Features:  a.Features,
			Ranking:   a.Ranking,
			Excluded:  a.Excluded,
			CreatedAt: now,
			UpdatedAt: now,
		},
		turn: semaphore.NewWeighted(1),
	}
	s.cache.Set(id, e, cache.DefaultExpiration)
	s.logger.Info("session created", "session_id", id, "dive_count", len(dives))
	return id
}

func (s *MemoryStore) lookup(id string) (*entry, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrSessionNotFound)
	}
	return v.(*entry), nil
}

// Get returns a snapshot; the history slice is a copy.
func (s *MemoryStore) Get(id string) (models.Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return models.Session{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.session
	snap.History = slices.Clone(e.session.History)
	return snap, nil
}

// AppendTurns commits turns in order under the session lock and refreshes its TTL.
func (s *MemoryStore) AppendTurns(id string, turns ...models.Turn) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	e.mu.Lock()
	for i := range turns {
		if turns[i].CreatedAt.IsZero() {
			turns[i].CreatedAt = now
		}
	}
	e.session.History = append(e.session.History, turns...)
	e.session.UpdatedAt = now
	e.mu.Unlock()

	s.cache.Set(id, e, cache.DefaultExpiration)
	return nil
}

// Delete evicts a session explicitly.
func (s *MemoryStore) Delete(id string) error {
	if _, err := s.lookup(id); err != nil {
		return err
	}
	s.cache.Delete(id)
	return nil
}

// AcquireTurn waits for the session's turn lock. If ctx ends first the
// caller gets ErrTurnInProgress.
func (s *MemoryStore) AcquireTurn(ctx context.Context, id string) (func(), error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := e.turn.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrTurnInProgress)
	}
	var once sync.Once
	return func() { once.Do(func() { e.turn.Release(1) }) }, nil
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
