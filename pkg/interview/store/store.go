// Package store persists point-in-time session snapshots for crash recovery.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by operations that require an existing snapshot.
var ErrNotFound = errors.New("snapshot not found")

// DefaultStaleness is the age past which a snapshot is no longer recoverable.
const DefaultStaleness = 24 * time.Hour

// Snapshot is a point-in-time copy of a session's mutable fields plus the
// in-progress answer text. Each save supersedes the previous snapshot for
// the same session id.
type Snapshot struct {
	SessionID                 string    `json:"session_id"`
	UserID                    string    `json:"user_id"`
	SessionType               string    `json:"session_type"`
	Stage                     string    `json:"stage"`
	CurrentIndex              int       `json:"current_index"`
	TimeRemainingSeconds      int       `json:"time_remaining_seconds"`
	ViolationCount            int       `json:"violation_count"`
	TotalViolationTimeSeconds int       `json:"total_violation_time_seconds"`
	Transcript                string    `json:"transcript,omitempty"`
	StructuredAnswer          string    `json:"structured_answer,omitempty"`
	StartedAt                 time.Time `json:"started_at"`
	LastSaved                 time.Time `json:"last_saved"`
}

// Stale reports whether the snapshot is too old to offer for recovery.
func (s *Snapshot) Stale(maxAge time.Duration) bool {
	if s == nil {
		return true
	}
	if maxAge <= 0 {
		maxAge = DefaultStaleness
	}
	return time.Since(s.LastSaved) >= maxAge
}

// Store persists session snapshots. Save is an idempotent upsert keyed by
// session id; last writer wins.
type Store interface {
	// Save upserts the snapshot for its session id.
	Save(ctx context.Context, snap *Snapshot) error

	// Load retrieves the snapshot for a session id.
	// Returns nil, nil when no snapshot exists (not an error).
	Load(ctx context.Context, sessionID string) (*Snapshot, error)

	// FindRecoverable returns the most recent non-stale snapshot for the
	// user and session type, or nil, nil when none qualifies. Stale
	// snapshots encountered during the search are discarded.
	FindRecoverable(ctx context.Context, userID, sessionType string) (*Snapshot, error)

	// Clear deletes the snapshot for a session id. Deleting a missing
	// snapshot is not an error.
	Clear(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}
