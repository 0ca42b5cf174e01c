package db

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sym"
)

// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}
	db, err := sql.Open(SQLite.DriverName, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// WAL mode lets readers proceed while a subject update is in flight
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"symbol", sym.DB,
			"dialect", SQLite.Name,
			"wal_mode", true,
		)
	}

	return db, nil
}

// OpenPostgres opens a PostgreSQL database through pgx and verifies the connection.
func OpenPostgres(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open(Postgres.DriverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to reach postgres")
	}
	if logger != nil {
		logger.Infow("Database opened successfully", "symbol", sym.DB, "dialect", Postgres.Name)
	}
	return db, nil
}

// OpenDialect opens source with the named dialect and runs pending migrations.
// For sqlite3 source is a file path, for postgres a DSN.
func OpenDialect(name, source string, logger *zap.SugaredLogger) (*sql.DB, *Dialect, error) {
	dialect, err := DialectByName(name)
	if err != nil {
		return nil, nil, err
	}

	var db *sql.DB
	if dialect == Postgres {
		db, err = OpenPostgres(source, logger)
	} else {
		db, err = Open(source, logger)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := Migrate(db, dialect, logger); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, dialect, nil
}

// OpenWithMigrations opens a SQLite database and runs all pending migrations.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, _, err := OpenDialect(SQLite.Name, path, logger)
	return db, err
}
