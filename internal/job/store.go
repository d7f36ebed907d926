package job

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the keyed job record store. Implementations must support safe
// concurrent creation and per-id updates; jobs never touch each other's
// records, so no cross-job transaction is required.
//
// Complete and Fail are the only status mutators. Both must enforce
// at-most-one terminal transition, returning ErrTerminal when the job has
// already finished, and must write status and result together so a poller
// never observes a terminal status without its result.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Complete(ctx context.Context, id, downloadPath string, warnings []string) (*Job, error)
	Fail(ctx context.Context, id, errorMessage string, warnings []string) (*Job, error)
	// ClearDownloadPath nulls the artifact location after the artifact has
	// been reaped. The record itself persists.
	ClearDownloadPath(ctx context.Context, id string) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Job, error)
	Close() error
}

// MemoryStore keeps job records in a mutex-guarded map. It is the default
// store and sufficient for a single-process deployment; records live for
// the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create stores a new job record.
func (s *MemoryStore) Create(ctx context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	return nil
}

// Get returns a copy of the job record, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// Complete transitions a processing job to completed.
func (s *MemoryStore) Complete(ctx context.Context, id, downloadPath string, warnings []string) (*Job, error) {
	return s.finish(id, func(j *Job) {
		j.Status = StatusCompleted
		j.DownloadPath = &downloadPath
		j.Warnings = append([]string(nil), warnings...)
	})
}

// Fail transitions a processing job to failed.
func (s *MemoryStore) Fail(ctx context.Context, id, errorMessage string, warnings []string) (*Job, error) {
	return s.finish(id, func(j *Job) {
		j.Status = StatusFailed
		j.ErrorMessage = &errorMessage
		j.Warnings = append([]string(nil), warnings...)
	})
}

func (s *MemoryStore) finish(id string, mutate func(*Job)) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status.Terminal() {
		return nil, ErrTerminal
	}

	mutate(j)
	now := time.Now().UTC()
	j.CompletedAt = &now
	return j.Clone(), nil
}

// ClearDownloadPath nulls the artifact location on an already-terminal job.
func (s *MemoryStore) ClearDownloadPath(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.DownloadPath = nil
	return nil
}

// ListBySession returns the most recent jobs for a session, newest first.
func (s *MemoryStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, j := range s.jobs {
		if j.SessionID == sessionID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
