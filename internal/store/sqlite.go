package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailbrief/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection serializes writes from concurrent workers and
	// keeps ":memory:" databases from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Wait on locks held by another process instead of failing.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetClassification returns the cache entry stored under key. The boolean
// is false when no entry exists.
func (s *SQLiteStore) GetClassification(
	ctx context.Context,
	key string,
) (*model.CacheEntry, bool, error) {
	var entry model.CacheEntry
	err := s.db.GetContext(ctx, &entry, `
		SELECT cache_key, category, summary, action_items,
			cost_usd, service_version, created_at
		FROM classification_cache WHERE cache_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting classification %s: %w", key, err)
	}
	return &entry, true, nil
}

// UpsertClassification inserts or replaces the entry for entry.Key. The
// last writer wins.
func (s *SQLiteStore) UpsertClassification(
	ctx context.Context,
	entry model.CacheEntry,
) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO classification_cache (
			cache_key, category, summary, action_items,
			cost_usd, service_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Key, string(entry.Category), entry.Summary, entry.ActionItems,
		entry.Cost, entry.ServiceVersion, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting classification %s: %w", entry.Key, err)
	}
	return nil
}

// ClassificationStats reports the entry count, the total recorded cost and
// the creation time range of the cache.
func (s *SQLiteStore) ClassificationStats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats

	row := s.db.QueryRowxContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(cost_usd), 0.0) FROM classification_cache")
	if err := row.Scan(&stats.Entries, &stats.TotalCost); err != nil {
		return CacheStats{}, fmt.Errorf("counting classifications: %w", err)
	}
	if stats.Entries == 0 {
		return stats, nil
	}

	// Plain column selects keep the DATETIME type so the driver returns
	// time.Time; MIN/MAX would not.
	err := s.db.GetContext(ctx, &stats.Oldest,
		"SELECT created_at FROM classification_cache ORDER BY created_at ASC LIMIT 1")
	if err != nil {
		return CacheStats{}, fmt.Errorf("reading oldest classification: %w", err)
	}
	err = s.db.GetContext(ctx, &stats.Newest,
		"SELECT created_at FROM classification_cache ORDER BY created_at DESC LIMIT 1")
	if err != nil {
		return CacheStats{}, fmt.Errorf("reading newest classification: %w", err)
	}

	return stats, nil
}

// ClearClassifications deletes every cache entry and returns how many were
// removed.
func (s *SQLiteStore) ClearClassifications(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM classification_cache")
	if err != nil {
		return 0, fmt.Errorf("clearing classifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleared classifications: %w", err)
	}
	return n, nil
}

// RecordRun stores a run summary. If the run has no ID, a new UUID is
// generated.
func (s *SQLiteStore) RecordRun(ctx context.Context, run model.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, kind, started_at, finished_at,
			items, cache_hits, label_matches, service_calls, fallbacks, cost_usd
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Items, run.CacheHits, run.LabelMatches, run.ServiceCalls, run.Fallbacks, run.Cost,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// GetRecentRuns returns up to limit runs, most recent first.
func (s *SQLiteStore) GetRecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	var runs []model.RunRecord
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, kind, started_at, finished_at,
			items, cache_hits, label_matches, service_calls, fallbacks, cost_usd
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}
