// Package sqlite stores usage counters and metrics records in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by Metrics for an unknown request id.
var ErrNotFound = errors.New("metrics record not found")

// Store implements ports.UsageStore, ports.CounterStore and
// ports.MetricsStore. Increments are single UPSERT ... RETURNING statements,
// so concurrent requests never lose an update.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *Store) IncrementUsage(ctx context.Context, userID, month, resource string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage (user_id, month, resource, count, updated_at) VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (user_id, month, resource) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
		RETURNING count`, userID, month, resource, now()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return count, nil
}

func (s *Store) DecrementUsage(ctx context.Context, userID, month, resource string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE usage SET count = MAX(count - 1, 0), updated_at = ?
		WHERE user_id = ? AND month = ? AND resource = ?`, now(), userID, month, resource)
	if err != nil {
		return fmt.Errorf("decrement usage: %w", err)
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, key string) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (key, value, updated_at) VALUES (?, 1, ?)
		ON CONFLICT (key) DO UPDATE SET value = value + 1, updated_at = excluded.updated_at
		RETURNING value`, key, now()).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return v, nil
}

func (s *Store) Decrement(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE counters SET value = MAX(value - 1, 0), updated_at = ? WHERE key = ?`, now(), key)
	if err != nil {
		return fmt.Errorf("decrement counter: %w", err)
	}
	return nil
}

// SaveMetrics upserts the record as JSON keyed by request id.
func (s *Store) SaveMetrics(ctx context.Context, rec domain.MetricsRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics (request_id, status, provider, created_at, updated_at, record) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO UPDATE SET
			status = excluded.status, provider = excluded.provider,
			updated_at = excluded.updated_at, record = excluded.record`,
		rec.RequestID, rec.Status, rec.Provider,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano), string(raw))
	if err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

// Metrics loads one stored record.
func (s *Store) Metrics(ctx context.Context, requestID string) (domain.MetricsRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM metrics WHERE request_id = ?`, requestID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MetricsRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.MetricsRecord{}, fmt.Errorf("load metrics: %w", err)
	}
	var rec domain.MetricsRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.MetricsRecord{}, fmt.Errorf("decode metrics: %w", err)
	}
	return rec, nil
}
