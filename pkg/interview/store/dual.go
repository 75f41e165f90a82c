package store

import (
	"context"
	"errors"
)

// DualStore writes through to a fast local cache and a durable remote store.
// Reads consult the cache first for latency; the remote is authoritative
// when the cache misses (e.g. after a reload on another node). Only one
// active writer per session is expected, so the upsert is last-writer-wins.
type DualStore struct {
	local  Store
	remote Store
}

// NewDualStore combines a cache tier and a durable tier. Either may be nil,
// in which case the other serves alone.
func NewDualStore(local, remote Store) *DualStore {
	return &DualStore{local: local, remote: remote}
}

// Save implements Store. The durable write decides success; a cache write
// failure is tolerated since the cache can always be repopulated.
func (s *DualStore) Save(ctx context.Context, snap *Snapshot) error {
	var localErr error
	if s.local != nil {
		localErr = s.local.Save(ctx, snap)
	}
	if s.remote != nil {
		if err := s.remote.Save(ctx, snap); err != nil {
			return err
		}
		return nil
	}
	return localErr
}

// Load implements Store.
func (s *DualStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if s.local != nil {
		snap, err := s.local.Load(ctx, sessionID)
		if err == nil && snap != nil {
			return snap, nil
		}
	}
	if s.remote != nil {
		snap, err := s.remote.Load(ctx, sessionID)
		if err != nil || snap == nil {
			return snap, err
		}
		if s.local != nil {
			_ = s.local.Save(ctx, snap)
		}
		return snap, nil
	}
	return nil, nil
}

// FindRecoverable implements Store. The remote answer is authoritative: a
// cache hit alone could be a snapshot already cleared remotely elsewhere.
func (s *DualStore) FindRecoverable(ctx context.Context, userID, sessionType string) (*Snapshot, error) {
	if s.remote != nil {
		snap, err := s.remote.FindRecoverable(ctx, userID, sessionType)
		if err != nil || snap == nil {
			return snap, err
		}
		if s.local != nil {
			_ = s.local.Save(ctx, snap)
		}
		return snap, nil
	}
	if s.local != nil {
		return s.local.FindRecoverable(ctx, userID, sessionType)
	}
	return nil, nil
}

// Clear implements Store. Both tiers are cleared; errors are joined so a
// partial failure is still reported.
func (s *DualStore) Clear(ctx context.Context, sessionID string) error {
	var errs []error
	if s.local != nil {
		if err := s.local.Clear(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	if s.remote != nil {
		if err := s.remote.Clear(ctx, sessionID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Store.
func (s *DualStore) Close() error {
	var errs []error
	if s.local != nil {
		errs = append(errs, s.local.Close())
	}
	if s.remote != nil {
		errs = append(errs, s.remote.Close())
	}
	return errors.Join(errs...)
}
