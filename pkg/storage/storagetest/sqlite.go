// Package storagetest opens throwaway databases for repository tests.
package storagetest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite opens a private in-memory SQLite database with foreign keys
// enforced. The database lives as long as its single connection and is
// closed when the test ends.
func SQLite(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping sqlite: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
