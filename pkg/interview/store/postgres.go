package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the durable, authoritative tier. Saves are single upserts
// keyed by session id; last writer wins.
type PostgresStore struct {
	pool      *pgxpool.Pool
	staleness time.Duration
}

// NewPostgresStore connects to the database and runs pending migrations.
func NewPostgresStore(ctx context.Context, dsn string, staleness time.Duration) (*PostgresStore, error) {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, staleness: staleness}, nil
}

func migrate(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, snap *Snapshot) error {
	const q = `
		INSERT INTO session_snapshots (
			session_id, user_id, session_type, stage, current_index,
			time_remaining_seconds, violation_count, total_violation_seconds,
			transcript, structured_answer, started_at, last_saved
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			current_index = EXCLUDED.current_index,
			time_remaining_seconds = EXCLUDED.time_remaining_seconds,
			violation_count = EXCLUDED.violation_count,
			total_violation_seconds = EXCLUDED.total_violation_seconds,
			transcript = EXCLUDED.transcript,
			structured_answer = EXCLUDED.structured_answer,
			last_saved = EXCLUDED.last_saved`

	_, err := s.pool.Exec(ctx, q,
		snap.SessionID, snap.UserID, snap.SessionType, snap.Stage, snap.CurrentIndex,
		snap.TimeRemainingSeconds, snap.ViolationCount, snap.TotalViolationTimeSeconds,
		snap.Transcript, snap.StructuredAnswer, snap.StartedAt, snap.LastSaved,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	const q = `
		SELECT session_id, user_id, session_type, stage, current_index,
			time_remaining_seconds, violation_count, total_violation_seconds,
			transcript, structured_answer, started_at, last_saved
		FROM session_snapshots WHERE session_id = $1`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, q, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}
	return snap, nil
}

// FindRecoverable implements Store.
func (s *PostgresStore) FindRecoverable(ctx context.Context, userID, sessionType string) (*Snapshot, error) {
	const q = `
		SELECT session_id, user_id, session_type, stage, current_index,
			time_remaining_seconds, violation_count, total_violation_seconds,
			transcript, structured_answer, started_at, last_saved
		FROM session_snapshots
		WHERE user_id = $1 AND session_type = $2 AND last_saved > $3
		ORDER BY last_saved DESC
		LIMIT 1`

	cutoff := time.Now().Add(-s.staleness)
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, q, userID, sessionType, cutoff))
	if errors.Is(err, pgx.ErrNoRows) {
		// Stale rows are not recoverable; sweep them opportunistically.
		_, _ = s.pool.Exec(ctx,
			`DELETE FROM session_snapshots WHERE user_id = $1 AND session_type = $2 AND last_saved <= $3`,
			userID, sessionType, cutoff)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recoverable for %s: %w", userID, err)
	}
	return snap, nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_snapshots WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear snapshot %s: %w", sessionID, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var snap Snapshot
	err := row.Scan(
		&snap.SessionID, &snap.UserID, &snap.SessionType, &snap.Stage, &snap.CurrentIndex,
		&snap.TimeRemainingSeconds, &snap.ViolationCount, &snap.TotalViolationTimeSeconds,
		&snap.Transcript, &snap.StructuredAnswer, &snap.StartedAt, &snap.LastSaved,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
