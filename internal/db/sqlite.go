// Package db opens the SQLite store backing the session history.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

var (
	db      *sql.DB
	once    sync.Once
	initErr error
)

// InitDB opens the database at dbPath, creating its parent directory, and
// runs schema migrations. Later calls return the same handle.
func InitDB(dbPath string) (*sql.DB, error) {
	once.Do(func() {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				initErr = fmt.Errorf("failed to create database directory: %w", err)
				return
			}
		}

		var err error
		db, err = sql.Open("sqlite3", dbPath)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		// WAL lets the HTTP history reads proceed while the recorder writes
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			initErr = fmt.Errorf("failed to enable WAL mode: %w", err)
			return
		}

		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			initErr = fmt.Errorf("failed to set busy timeout: %w", err)
			return
		}

		if err := runMigrations(db); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			return
		}
	})

	if initErr != nil {
		return nil, initErr
	}
	return db, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		confluence_count INTEGER NOT NULL DEFAULT 0,
		analyses INTEGER NOT NULL DEFAULT 0,
		connected_at DATETIME NOT NULL,
		closed_at DATETIME,
		close_reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_session_history_connected_at ON session_history(connected_at);
	CREATE INDEX IF NOT EXISTS idx_session_history_user_id ON session_history(user_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// CloseDB closes the database connection.
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// ResetDB resets the singleton for testing purposes.
func ResetDB() {
	if db != nil {
		db.Close()
	}
	once = sync.Once{}
	db = nil
	initErr = nil
}

// NewTestDB creates a fresh in-memory database, bypassing the singleton.
// The pool is pinned to one connection since every :memory: connection
// would otherwise see its own empty database.
func NewTestDB() (*sql.DB, error) {
	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	testDB.SetMaxOpenConns(1)

	if err := runMigrations(testDB); err != nil {
		testDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return testDB, nil
}
