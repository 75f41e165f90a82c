package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
	staleness time.Duration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(staleness time.Duration) *MemoryStore {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &MemoryStore{
		snapshots: make(map[string]*Snapshot),
		staleness: staleness,
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	cp := *snap
	s.mu.Lock()
	s.snapshots[snap.SessionID] = &cp
	s.mu.Unlock()
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

// FindRecoverable implements Store.
func (s *MemoryStore) FindRecoverable(_ context.Context, userID, sessionType string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Snapshot
	for id, snap := range s.snapshots {
		if snap.UserID != userID || snap.SessionType != sessionType {
			continue
		}
		if snap.Stale(s.staleness) {
			delete(s.snapshots, id)
			continue
		}
		if best == nil || snap.LastSaved.After(best.LastSaved) {
			best = snap
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.snapshots, sessionID)
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
