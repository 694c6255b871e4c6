// Package store persists agent runs and the knowledge base in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"shiftbot/internal/embedding"
	"shiftbot/internal/logging"
)

// Store wraps a single SQLite database holding run history and
// knowledge-base notes. The embedding engine is optional; without one,
// note search degrades to keyword matching.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	engine embedding.Engine
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedding attaches an embedding engine for semantic note search.
func WithEmbedding(engine embedding.Engine) Option {
	return func(s *Store) { s.engine = engine }
}

// Open initializes the SQLite database at the given path, creating
// parent directories and the schema as needed.
func Open(path string, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.L("store").Debugw("failed to set busy_timeout", "error", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.L("store").Debugw("failed to set journal_mode=WAL", "error", err)
	}
	// NORMAL is safe with WAL and much faster than the FULL default.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.L("store").Debugw("failed to set synchronous=NORMAL", "error", err)
	}

	s := &Store{db: db, path: path}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	if s.engine != nil {
		logging.L("store").Debugw("store opened with semantic search", "path", path, "engine", s.engine.Name())
	} else {
		logging.L("store").Debugw("store opened, keyword search only", "path", path)
	}
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL,
		address TEXT NOT NULL,
		model TEXT,
		state TEXT NOT NULL,
		turns INTEGER DEFAULT 0,
		answer TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_slug ON runs(slug);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	toolCallsTable := `
	CREATE TABLE IF NOT EXISTS tool_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		tool TEXT NOT NULL,
		args TEXT,
		output TEXT,
		error TEXT,
		duration_ms INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_run ON tool_calls(run_id);
	`

	notesTable := `
	CREATE TABLE IF NOT EXISTS kb_notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_kb_notes_slug ON kb_notes(slug);
	`

	for _, table := range []string{runsTable, toolCallsTable, notesTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats returns row counts per table.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"runs", "tool_calls", "kb_notes"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			continue
		}
		stats[table] = count
	}
	return stats, nil
}
