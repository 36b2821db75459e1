package guest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/terra-clan/code-review-quest/internal/models"
)

type memoryEntry struct {
	mu      sync.Mutex
	record  *models.GuestRecord
	removed bool
}

// MemoryStore keeps guest records in process memory.
// The map lock only guards membership; each record has its own lock so
// mutations of different guests never wait on each other.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory guest store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// WithClock overrides the store's clock
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, record *models.GuestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[record.Handle]; ok {
		existing.mu.Lock()
		live := !existing.removed && !existing.record.IsExpired(s.now())
		if !live {
			existing.removed = true
		}
		existing.mu.Unlock()
		if live {
			return ErrHandleTaken
		}
	}

	s.entries[record.Handle] = &memoryEntry{record: record.Clone()}
	return nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, handle string) (*models.GuestRecord, error) {
	record, err := s.Mutate(ctx, handle, nil)
	if errors.Is(err, ErrGuestNotFound) {
		return nil, nil
	}
	return record, err
}

// Mutate implements Store
func (s *MemoryStore) Mutate(_ context.Context, handle string, fn MutateFunc) (*models.GuestRecord, error) {
	s.mu.RLock()
	e, ok := s.entries[handle]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrGuestNotFound
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, ErrGuestNotFound
	}
	now := s.now()
	if e.record.IsExpired(now) {
		e.removed = true
		e.mu.Unlock()
		s.forget(handle, e)
		return nil, ErrGuestNotFound
	}
	defer e.mu.Unlock()

	working := e.record.Clone()
	if fn != nil {
		if err := fn(working); err != nil {
			return nil, err
		}
	}
	working.LastActive = now
	e.record = working

	return working.Clone(), nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, handle string) (*models.GuestRecord, error) {
	s.mu.Lock()
	e, ok := s.entries[handle]
	if ok {
		delete(s.entries, handle)
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.record.IsExpired(s.now()) {
		e.removed = true
		return nil, nil
	}
	e.removed = true
	return e.record.Clone(), nil
}

// Sweep implements Store
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.RLock()
	snapshot := make(map[string]*memoryEntry, len(s.entries))
	for handle, e := range s.entries {
		snapshot[handle] = e
	}
	s.mu.RUnlock()

	now := s.now()
	removed := 0
	for handle, e := range snapshot {
		e.mu.Lock()
		expired := !e.removed && e.record.IsExpired(now)
		if expired {
			e.removed = true
		}
		e.mu.Unlock()

		if expired {
			s.forget(handle, e)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of records currently held, live or not yet swept
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) forget(handle string, e *memoryEntry) {
	s.mu.Lock()
	if s.entries[handle] == e {
		delete(s.entries, handle)
	}
	s.mu.Unlock()
}
