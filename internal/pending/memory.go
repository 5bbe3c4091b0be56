package pending

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/pkg/clock"
)

// MemoryStore keeps entries in a mutex-guarded map
type MemoryStore[T any] struct {
	mu    sync.Mutex
	items map[string]Entry[T]
	clock clock.Clocker
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore[T any](clk clock.Clocker) *MemoryStore[T] {
	return &MemoryStore[T]{
		items: make(map[string]Entry[T]),
		clock: clk,
	}
}

func (s *MemoryStore[T]) Put(_ context.Context, key string, value T, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = Entry[T]{Value: value, ExpiresAt: expiresAt}
	return nil
}

func (s *MemoryStore[T]) PutIfAbsent(_ context.Context, key string, value T, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.live(key); err == nil {
		return false, nil
	}
	s.items[key] = Entry[T]{Value: value, ExpiresAt: expiresAt}
	return true, nil
}

func (s *MemoryStore[T]) Get(_ context.Context, key string) (*Entry[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.live(key)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemoryStore[T]) IncrementAttempts(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.live(key)
	if err != nil {
		return 0, err
	}
	entry.Attempts++
	s.items[key] = entry
	return entry.Attempts, nil
}

// Sweep drops expired entries and returns how many were removed
func (s *MemoryStore[T]) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for key, entry := range s.items {
		if !now.Before(entry.ExpiresAt) {
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// live returns the entry for key. Caller holds s.mu.
func (s *MemoryStore[T]) live(key string) (Entry[T], error) {
	entry, ok := s.items[key]
	if !ok {
		return Entry[T]{}, models.ErrNotFound
	}
	if !s.clock.Now().Before(entry.ExpiresAt) {
		delete(s.items, key)
		return Entry[T]{}, models.ErrExpired
	}
	return entry, nil
}

var (
	_ Store[string] = (*MemoryStore[string])(nil)
	_ Sweeper       = (*MemoryStore[string])(nil)
)
