// Package position owns position lifecycle state and the per-position
// operation serialization that keeps concurrent reconciliation requests
// from racing each other.
//
// Persisted state: none. Every position lives only in process memory for
// the agent's lifetime; a restart starts with zero positions, matching the
// external interface contract that operator clients are the system of
// record for what positions should exist.
package position

import (
	"sync"

	"github.com/google/uuid"

	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// Store is the in-memory Position Store: a concurrency-safe map from
// position ID to its current state.
type Store struct {
	mu        sync.RWMutex
	positions map[uuid.UUID]*types.Position
}

func NewStore() *Store {
	return &Store{positions: make(map[uuid.UUID]*types.Position)}
}

// Insert adds a new position. Callers must set p.ID before calling.
func (s *Store) Insert(p types.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = &p
}

// Get returns a copy of the position's current state, or false if it no
// longer exists.
func (s *Store) Get(id uuid.UUID) (types.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return types.Position{}, false
	}
	return p.Clone(), true
}

// Mutate applies fn to the stored position under the store's lock, so
// readers never observe a partially-updated position. fn receives a
// pointer to the live entry; returns false if the position doesn't exist.
func (s *Store) Mutate(id uuid.UUID, fn func(p *types.Position)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// Delete removes a position entirely. The controller calls it when closing
// a position and when attaching a newly created position fails.
func (s *Store) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
}

// List returns a snapshot of every position currently tracked.
func (s *Store) List() []types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	return out
}

// Exists reports whether a position is still tracked.
func (s *Store) Exists(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.positions[id]
	return ok
}
