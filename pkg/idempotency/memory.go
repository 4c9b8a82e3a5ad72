package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for single-instance runs and tests
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

// Get returns a copy of the entry
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || (!e.ExpiresAt.IsZero() && s.now().After(e.ExpiresAt)) {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Start claims key
func (s *MemoryStore) Start(_ context.Context, key, handler string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.ExpiresAt) {
		if e.Status != StatusRecoverable {
			return ErrDuplicateMessage
		}
		e.Status = StatusStarted
		e.UpdatedAt = now
		s.entries[key] = e
		return nil
	}
	s.entries[key] = Entry{
		Key:       key,
		Handler:   handler,
		Status:    StatusStarted,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}
	return nil
}

// SetStatus updates an entry; unknown keys are ignored
func (s *MemoryStore) SetStatus(_ context.Context, key string, status Status, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	e.Status = status
	e.Result = result
	e.UpdatedAt = s.now()
	s.entries[key] = e
	return nil
}
