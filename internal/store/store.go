// Package store is the embedded SQL persistence layer: sessions, handoffs,
// duties and their executions, missions and their executions, triggers,
// reply-injection cursors, and the system event audit log. It opens a
// single SQLite database in WAL mode and runs idempotent migrations at
// startup, following the pattern in the notes plugin this module was
// grounded on: database/sql, a busy-timeout + WAL DSN, and
// CREATE TABLE IF NOT EXISTS migrations run once at open time.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB with the schema this module needs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL mode and a busy timeout via DSN pragmas, and runs migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite + WAL: one writer connection avoids SQLITE_BUSY churn

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for callers that need a transaction spanning
// more than one of the per-entity helper files in this package.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	mode TEXT NOT NULL DEFAULT 'interactive',
	tmux_pane TEXT,
	transcript_path TEXT,
	conversation_id TEXT,
	parent_session_id TEXT,
	mission_execution_id TEXT,
	subscribed_by TEXT,
	has_pinged INTEGER NOT NULL DEFAULT 0,
	current_state TEXT NOT NULL DEFAULT 'active',
	cwd TEXT,
	description TEXT,
	spec_path TEXT,
	status_text TEXT,
	context_warning_level INTEGER NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	last_seen_at TEXT,
	ended_at TEXT,
	end_reason TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_live ON sessions(ended_at) WHERE ended_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_sessions_pane ON sessions(tmux_pane);

CREATE TABLE IF NOT EXISTS handoffs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT,
	mode TEXT,
	tmux_pane TEXT,
	transcript_path TEXT,
	conversation_id TEXT,
	parent_session_id TEXT,
	mission_execution_id TEXT,
	successor_session_id TEXT,
	reason TEXT,
	handoff_path TEXT,
	handoff_inline TEXT,
	needs_summary INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	requested_at TEXT NOT NULL,
	executed_at TEXT,
	completed_at TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_handoffs_session_status ON handoffs(session_id, status);

CREATE TABLE IF NOT EXISTS chief_duties (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	schedule_time TEXT NOT NULL,
	prompt_file TEXT NOT NULL,
	timeout_minutes INTEGER NOT NULL DEFAULT 45,
	enabled INTEGER NOT NULL DEFAULT 1,
	last_run TEXT,
	last_status TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chief_duty_executions (
	id TEXT PRIMARY KEY,
	duty_id TEXT NOT NULL,
	duty_slug TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	status TEXT NOT NULL DEFAULT 'running',
	session_id TEXT,
	error_message TEXT,
	duration_seconds INTEGER
);
CREATE INDEX IF NOT EXISTS idx_duty_exec_slug ON chief_duty_executions(duty_slug);

CREATE TABLE IF NOT EXISTS missions (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	description TEXT,
	prompt_file TEXT,
	prompt_inline TEXT,
	schedule_type TEXT NOT NULL DEFAULT 'manual',
	schedule_cron TEXT,
	schedule_time TEXT,
	schedule_days TEXT,
	trigger_type TEXT,
	trigger_config TEXT,
	timeout_minutes INTEGER NOT NULL DEFAULT 45,
	role TEXT NOT NULL DEFAULT 'specialist',
	mode TEXT NOT NULL DEFAULT 'mission',
	source TEXT NOT NULL DEFAULT 'user',
	enabled INTEGER NOT NULL DEFAULT 1,
	last_run TEXT,
	last_status TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mission_executions (
	id TEXT PRIMARY KEY,
	mission_id TEXT NOT NULL,
	mission_slug TEXT NOT NULL,
	session_id TEXT,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	status TEXT NOT NULL DEFAULT 'running',
	output_summary TEXT,
	error_message TEXT,
	duration_seconds INTEGER
);
CREATE INDEX IF NOT EXISTS idx_mission_exec_slug ON mission_executions(mission_slug);

CREATE TABLE IF NOT EXISTS triggers (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	kind TEXT NOT NULL,
	config TEXT,
	mission_slug TEXT,
	enabled INTEGER NOT NULL DEFAULT 1,
	last_fired_event_id TEXT,
	last_fired_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reply_injections (
	specialist TEXT NOT NULL,
	position INTEGER NOT NULL,
	injected_at TEXT NOT NULL,
	PRIMARY KEY (specialist, position)
);

CREATE TABLE IF NOT EXISTS system_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_system_events_created ON system_events(created_at);
`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (1, datetime('now'))`)
	return err
}

// generateID returns a short random hex id with the given prefix, matching
// the "<prefix>-<8 hex chars>" scheme used throughout this package.
func generateID(prefix string) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
