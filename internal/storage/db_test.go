package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSQLiteStore_CreatesDatabase(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		t.Error("Database directory was not created")
	}
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewSQLiteStore(""); err == nil {
		t.Fatal("NewSQLiteStore(\"\") expected error")
	}
}

func TestSQLiteStore_Migration_CreatesSchema(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	defer store.Close()

	for _, table := range []string{"schema_meta", "records"} {
		_, err := store.DB().ExecContext(context.Background(), "SELECT 1 FROM "+table+" LIMIT 1")
		if err != nil {
			t.Errorf("Table %s does not exist: %v", table, err)
		}
	}

	var version int
	err := store.DB().QueryRow("SELECT MAX(version) FROM schema_meta").Scan(&version)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != 2 {
		t.Errorf("schema version = %d, want 2", version)
	}
}

func TestSQLiteStore_Migration_Idempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	store1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	store1.Close()

	store2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer store2.Close()

	var count int
	if err := store2.DB().QueryRow("SELECT COUNT(*) FROM schema_meta").Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("migration rows = %d, want 2", count)
	}
}

func TestSQLiteStore_Close_Idempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}

	return store
}
