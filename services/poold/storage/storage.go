package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("poold storage path must be configured")

// ErrNoSample is returned when no price history exists for the collateral.
var ErrNoSample = errors.New("poold storage: no sample recorded")

const defaultFilePragmas = "mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

const schema = `
CREATE TABLE IF NOT EXISTS refresh_runs (
    run_id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    refreshed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS price_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    collateral_index INTEGER NOT NULL,
    symbol TEXT NOT NULL,
    price TEXT NOT NULL,
    outcome TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_samples_index
    ON price_samples(collateral_index, id DESC);
`

// Storage wraps the poold persistence layer: price refresh history kept in
// SQLite for operators and the HTTP API.
type Storage struct {
	db *sql.DB
}

// FileDSN converts a filesystem path into an on-disk SQLite DSN.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun opens a refresh run and returns its identifier.
func (s *Storage) BeginRun(ctx context.Context, started time.Time) (string, error) {
	if s == nil {
		return "", fmt.Errorf("storage not configured")
	}
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO refresh_runs(run_id, started_at) VALUES(?, ?)
    `, runID, started.UTC())
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// CompleteRun closes a refresh run with its per-collateral outcome counts.
func (s *Storage) CompleteRun(ctx context.Context, runID string, refreshed, failed int, completed time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        UPDATE refresh_runs SET completed_at = ?, refreshed = ?, failed = ?
        WHERE run_id = ?
    `, completed.UTC(), refreshed, failed, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// RecordSample persists one refresh attempt for a collateral. Failed attempts
// are recorded with an empty price and the error string as outcome.
func (s *Storage) RecordSample(ctx context.Context, runID string, index uint64, symbol, price, outcome string, recorded time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO price_samples(run_id, collateral_index, symbol, price, outcome, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?)
    `, runID, index, strings.ToUpper(strings.TrimSpace(symbol)), strings.TrimSpace(price), strings.TrimSpace(outcome), recorded.UTC())
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Sample is one recorded price refresh attempt.
type Sample struct {
	RunID      string
	Index      uint64
	Symbol     string
	Price      string
	Outcome    string
	RecordedAt time.Time
}

// LatestSample returns the most recent successful refresh for the collateral.
func (s *Storage) LatestSample(ctx context.Context, index uint64) (Sample, error) {
	result := Sample{}
	if s == nil {
		return result, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT run_id, collateral_index, symbol, price, outcome, recorded_at
        FROM price_samples
        WHERE collateral_index = ? AND outcome = 'ok'
        ORDER BY id DESC
        LIMIT 1
    `, index)
	if err := row.Scan(&result.RunID, &result.Index, &result.Symbol, &result.Price, &result.Outcome, &result.RecordedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, ErrNoSample
		}
		return result, fmt.Errorf("query sample: %w", err)
	}
	return result, nil
}

// RecentSamples returns up to limit samples for the collateral, newest first.
func (s *Storage) RecentSamples(ctx context.Context, index uint64, limit int) ([]Sample, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, collateral_index, symbol, price, outcome, recorded_at
        FROM price_samples
        WHERE collateral_index = ?
        ORDER BY id DESC
        LIMIT ?
    `, index, limit)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()
	out := make([]Sample, 0, limit)
	for rows.Next() {
		var sample Sample
		if err := rows.Scan(&sample.RunID, &sample.Index, &sample.Symbol, &sample.Price, &sample.Outcome, &sample.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}
