package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teranos/semstore/db"
)

// CreateTestDB creates an in-memory SQLite test database with all migrations applied.
// The pool is pinned to a single connection so every statement (including
// temporary tables) sees the same in-memory database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn := CreateBareTestDB(t)
	if err := db.Migrate(conn, db.SQLite, nil); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return conn
}

// CreateBareTestDB creates an in-memory SQLite database without migrations.
func CreateBareTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
