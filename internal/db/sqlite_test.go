package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitDB_CreatesDirectoryAndSchema(t *testing.T) {
	ResetDB()
	t.Cleanup(ResetDB)

	path := filepath.Join(t.TempDir(), "nested", "sessions.db")

	database, err := InitDB(path)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	var name string
	err = database.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='session_history'`).Scan(&name)
	if err != nil {
		t.Fatalf("session_history table missing: %v", err)
	}

	again, err := InitDB(filepath.Join(t.TempDir(), "other.db"))
	if err != nil {
		t.Fatalf("second InitDB failed: %v", err)
	}
	if again != database {
		t.Errorf("InitDB returned a new handle on the second call")
	}
}

func TestResetDB_AllowsReopen(t *testing.T) {
	ResetDB()
	t.Cleanup(ResetDB)

	first, err := InitDB(filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}

	ResetDB()
	if err := first.Ping(); err == nil {
		t.Errorf("ResetDB left the previous handle open")
	}

	second, err := InitDB(filepath.Join(t.TempDir(), "b.db"))
	if err != nil {
		t.Fatalf("InitDB after reset failed: %v", err)
	}
	if second == first {
		t.Errorf("InitDB after reset returned the closed handle")
	}
	if err := CloseDB(); err != nil {
		t.Errorf("CloseDB failed: %v", err)
	}
}

func TestInitDB_FailureIsSticky(t *testing.T) {
	ResetDB()
	t.Cleanup(ResetDB)

	// A regular file where the parent directory should be
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := InitDB(filepath.Join(blocker, "sessions.db")); err == nil {
		t.Fatal("expected InitDB to fail")
	}
	if _, err := InitDB(filepath.Join(blocker, "sessions.db")); err == nil {
		t.Error("second InitDB call hid the initialization error")
	}
}
