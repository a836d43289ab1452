// Package storage provides SQLite-backed persistence for SessionStore,
// SecretStore, and ExecutionLedger: WAL journal mode, a single open
// connection, and idempotent ALTER-based migrations run at startup.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the orchestrator.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	// actorLocks holds one *sync.Mutex per session id, so a given session's
	// sequence of storage calls serializes without contending with an
	// unrelated session's.
	actorLocks sync.Map
}

// sessionLock returns the dedicated mutex for id, creating it on first use.
func (s *Storage) sessionLock(id string) *sync.Mutex {
	v, _ := s.actorLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance, opening (and initializing, if absent)
// the SQLite database under cfg.DataDir.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "swaporch.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Single-writer: SQLite serializes writers anyway, and the orchestrator's
	// per-session serialization is enforced above this layer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// DB returns the underlying *sql.DB, for callers that need raw access.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	status              TEXT NOT NULL,
	source_chain        TEXT NOT NULL,
	destination_chain   TEXT NOT NULL,
	source_token        TEXT NOT NULL,
	destination_token    TEXT NOT NULL,
	source_amount       TEXT NOT NULL,
	destination_amount  TEXT NOT NULL,
	maker               TEXT NOT NULL,
	taker               TEXT NOT NULL,
	slippage_bps        INTEGER NOT NULL DEFAULT 0,
	hashlock            TEXT NOT NULL,
	order_hash          TEXT NOT NULL UNIQUE,
	src_escrow_address  TEXT,
	dst_htlc_handle     TEXT,
	completion_mode     TEXT NOT NULL DEFAULT 'executor_completes_both',
	timelocks_json      TEXT NOT NULL,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	expiration_time     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_order_hash ON sessions(order_hash);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_expiration ON sessions(expiration_time);

CREATE TABLE IF NOT EXISTS encrypted_secrets (
	hashlock    TEXT PRIMARY KEY,
	nonce       TEXT NOT NULL,
	ciphertext  TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	used        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS execution_steps (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	tx_ref      TEXT,
	escrow_ref  TEXT,
	result_json TEXT,
	error       TEXT,
	gas_used    TEXT,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_execution_steps_session ON execution_steps(session_id, seq);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	session_id  TEXT NOT NULL,
	operation   TEXT NOT NULL,
	ref         TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (session_id, operation)
);
`

func (s *Storage) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return s.runMigrations()
}

// runMigrations applies best-effort idempotent ALTERs for columns added
// after the initial schema, ignoring "duplicate column" failures since
// SQLite has no IF NOT EXISTS for columns.
func (s *Storage) runMigrations() error {
	migrations := []string{
		`ALTER TABLE sessions ADD COLUMN failure_reason TEXT`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil && !contains(err.Error(), "duplicate column") {
			return fmt.Errorf("migration %q: %w", m, err)
		}
	}
	return nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
