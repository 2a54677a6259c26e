// Package draft keeps the not-yet-submitted service report items of each job.
package draft

import (
	"context"
	"database/sql"
	"sync"

	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

// Store holds one Draft per job. Get returns a draft with empty, non-nil
// lists when nothing is stored. Implementations copy drafts on the way in
// and out, so callers never share slices with stored state.
type Store interface {
	Get(ctx context.Context, jobID int64) (model.Draft, error)
	Save(ctx context.Context, jobID int64, d model.Draft) error
	Clear(ctx context.Context, jobID int64) error
}

// MemoryStore is a process-local Store. Drafts are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[int64]model.Draft
}

// NewMemoryStore creates an empty in-memory draft store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int64]model.Draft)}
}

// Get returns a copy of the job's draft. It never fails.
func (s *MemoryStore) Get(_ context.Context, jobID int64) (model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[jobID].Clone(), nil
}

// Save replaces the job's draft with a copy of d.
func (s *MemoryStore) Save(_ context.Context, jobID int64, d model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Len() == 0 {
		delete(s.data, jobID)
		return nil
	}
	s.data[jobID] = d.Clone()
	return nil
}

// Clear removes the job's draft.
func (s *MemoryStore) Clear(_ context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, jobID)
	return nil
}

// Jobs returns the IDs of jobs with a non-empty draft.
func (s *MemoryStore) Jobs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids
}

// SQLiteStore persists drafts as JSON rows so they survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a draft store backed by the drafts table.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(ctx context.Context, jobID int64) (model.Draft, error) {
	d, err := store.GetDraft(ctx, s.db, jobID)
	if err != nil {
		return model.Draft{}.Clone(), err
	}
	if d == nil {
		return model.Draft{}.Clone(), nil
	}
	return d.Clone(), nil
}

func (s *SQLiteStore) Save(ctx context.Context, jobID int64, d model.Draft) error {
	if d.Len() == 0 {
		return store.DeleteDraft(ctx, s.db, jobID)
	}
	return store.SaveDraft(ctx, s.db, jobID, d)
}

func (s *SQLiteStore) Clear(ctx context.Context, jobID int64) error {
	return store.DeleteDraft(ctx, s.db, jobID)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
