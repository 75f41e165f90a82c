package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "interview:snapshot:"
	recoverKeyPrefix  = "interview:recover:"
)

// RedisStore is the fast local cache tier. Snapshots are stored as JSON
// blobs keyed by session id with a TTL equal to the staleness window, so
// expiry doubles as staleness cleanup. A secondary key per user+session
// type points at the latest session id for recovery lookup.
type RedisStore struct {
	client    *redis.Client
	staleness time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, staleness time.Duration) *RedisStore {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return &RedisStore{client: client, staleness: staleness}
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	val, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(snap.SessionID), val, s.staleness)
	pipe.Set(ctx, s.recoverKey(snap.UserID, snap.SessionType), snap.SessionID, s.staleness)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load implements Store. Returns nil, nil when the key is absent or expired.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return &snap, nil
}

// FindRecoverable implements Store.
func (s *RedisStore) FindRecoverable(ctx context.Context, userID, sessionType string) (*Snapshot, error) {
	sessionID, err := s.client.Get(ctx, s.recoverKey(userID, sessionType)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recoverable for %s: %w", userID, err)
	}

	snap, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	if snap.Stale(s.staleness) {
		// TTL should have expired this already; clean up regardless.
		_ = s.Clear(ctx, sessionID)
		return nil, nil
	}
	return snap, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	snap, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	keys := []string{s.key(sessionID)}
	if snap != nil {
		keys = append(keys, s.recoverKey(snap.UserID, snap.SessionType))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", sessionID, err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return snapshotKeyPrefix + sessionID
}

func (s *RedisStore) recoverKey(userID, sessionType string) string {
	return recoverKeyPrefix + userID + ":" + sessionType
}
