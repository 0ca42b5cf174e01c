package db

import (
	"strings"

	"github.com/teranos/semstore/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// The string fallback covers raw driver errors that never pass through this package.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
// Two requests creating the same entity reference race on sem_ids; the loser
// re-reads the winner's row instead of failing the update.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite3
		strings.Contains(msg, "SQLSTATE 23505") || // pgx
		strings.Contains(msg, "duplicate key value")
}
