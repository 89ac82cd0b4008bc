// Package memstore is a process-local storage.Store. Nothing survives a
// restart; it backs tests and throwaway local runs.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"pastebox/internal/storage"
)

// Store implements storage.Store with a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	pastes map[string]storage.Paste
}

// New returns an empty Store.
func New() *Store {
	return &Store{pastes: make(map[string]storage.Paste)}
}

// IncrementStrategy reports the locking path: the write lock covers the read and the write.
func (s *Store) IncrementStrategy() storage.IncrementStrategy {
	return storage.StrategyLocking
}

// Create inserts a paste with a zero view count.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pastes[paste.ID]; ok {
		return storage.ErrDuplicateID
	}
	cp := *paste
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.ExpiresAt = cp.ExpiresAt.UTC()
	cp.ViewCount = 0
	s.pastes[paste.ID] = cp
	return nil
}

// Get returns a copy of the stored paste.
func (s *Store) Get(ctx context.Context, id string) (*storage.Paste, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pastes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// IncrementViews bumps the counter under the write lock.
func (s *Store) IncrementViews(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pastes[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	p.ViewCount++
	s.pastes[id] = p
	return p.ViewCount, nil
}

// Delete removes a paste. It exists for tests that simulate external
// housekeeping racing an access.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pastes, id)
}

// DeleteExpired removes pastes that expired at or before the cutoff.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, p := range s.pastes {
		if p.HasExpiration() && !p.ExpiresAt.After(before) {
			delete(s.pastes, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
