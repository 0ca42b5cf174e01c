package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/teranos/semstore/errors"
)

// ColumnType is the engine-neutral column alphabet used by property tables.
// Each dialect translates it to concrete DDL.
type ColumnType int

const (
	ColumnText      ColumnType = iota // bounded text, indexable
	ColumnBlob                        // unbounded payload
	ColumnFloat                       // numeric sortkeys
	ColumnInt                         // small integers and flags
	ColumnForeignID                   // reference into sem_ids
	ColumnNamespace                   // namespace number
)

// String returns the one-letter code used in debug output
func (c ColumnType) String() string {
	switch c {
	case ColumnText:
		return "t"
	case ColumnBlob:
		return "l"
	case ColumnFloat:
		return "f"
	case ColumnInt:
		return "i"
	case ColumnForeignID:
		return "p"
	case ColumnNamespace:
		return "n"
	}
	return "?"
}

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name       string
	DriverName string

	// MigrationsDir is the embedded directory holding this dialect's migrations
	MigrationsDir string

	dollarPlaceholders bool
	columnTypes        map[ColumnType]string

	// DistinctNeedsOrderColumns is set when SELECT DISTINCT requires every
	// ORDER BY expression to appear in the select list.
	DistinctNeedsOrderColumns bool

	// RandomFunction orders rows randomly; empty when unsupported.
	RandomFunction string
}

// SQLite is the default dialect (github.com/mattn/go-sqlite3)
var SQLite = &Dialect{
	Name:          "sqlite3",
	DriverName:    "sqlite3",
	MigrationsDir: "sqlite/migrations",
	columnTypes: map[ColumnType]string{
		ColumnText:      "TEXT",
		ColumnBlob:      "BLOB",
		ColumnFloat:     "DOUBLE",
		ColumnInt:       "INTEGER",
		ColumnForeignID: "INTEGER",
		ColumnNamespace: "INTEGER",
	},
	RandomFunction: "RANDOM()",
}

// Postgres is served by github.com/jackc/pgx/v5/stdlib
var Postgres = &Dialect{
	Name:               "postgres",
	DriverName:         "pgx",
	MigrationsDir:      "postgres/migrations",
	dollarPlaceholders: true,
	columnTypes: map[ColumnType]string{
		ColumnText:      "TEXT",
		ColumnBlob:      "BYTEA",
		ColumnFloat:     "DOUBLE PRECISION",
		ColumnInt:       "BIGINT",
		ColumnForeignID: "BIGINT",
		ColumnNamespace: "INTEGER",
	},
	DistinctNeedsOrderColumns: true,
	RandomFunction:            "RANDOM()",
}

// DialectByName returns the dialect registered under name
func DialectByName(name string) (*Dialect, error) {
	switch name {
	case SQLite.Name:
		return SQLite, nil
	case Postgres.Name:
		return Postgres, nil
	}
	return nil, errors.NewInvalidRequestError("unknown database dialect %q", name)
}

// ColumnDDL returns the column type for c
func (d *Dialect) ColumnDDL(c ColumnType) string {
	return d.columnTypes[c]
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Question marks inside single-quoted literals are left alone.
func (d *Dialect) Rebind(query string) string {
	if !d.dollarPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CreateTempTable returns DDL for an id-set temp table
func (d *Dialect) CreateTempTable(name string) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s (id %s PRIMARY KEY)", name, d.ColumnDDL(ColumnForeignID))
}

// DropTempTable returns DDL removing a temp table
func (d *Dialect) DropTempTable(name string) string {
	return "DROP TABLE IF EXISTS " + name
}

// InsertIgnoreSelect inserts the ids produced by selectSQL, skipping duplicates
func (d *Dialect) InsertIgnoreSelect(table, selectSQL string) string {
	if d.dollarPlaceholders {
		return fmt.Sprintf("INSERT INTO %s (id) %s ON CONFLICT DO NOTHING", table, selectSQL)
	}
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (id) %s", table, selectSQL)
}

// ResetSequence returns a statement realigning an id sequence after explicit
// id inserts, or "" when the engine does not need it.
func (d *Dialect) ResetSequence(table, column string) string {
	if !d.dollarPlaceholders {
		return ""
	}
	return fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', '%s'), (SELECT MAX(%s) FROM %s))",
		table, column, column, table)
}

// Querier is the subset of *sql.DB, *sql.Tx and *sql.Conn the storage layer needs.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Bind wraps q so that every statement is rebound for the dialect.
// Callers write '?' placeholders everywhere.
func (d *Dialect) Bind(q Querier) Querier {
	if !d.dollarPlaceholders {
		return q
	}
	if b, ok := q.(*boundQuerier); ok {
		return b
	}
	return &boundQuerier{q: q, d: d}
}

type boundQuerier struct {
	q Querier
	d *Dialect
}

func (b *boundQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return b.q.ExecContext(ctx, b.d.Rebind(query), args...)
}

func (b *boundQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return b.q.QueryContext(ctx, b.d.Rebind(query), args...)
}

func (b *boundQuerier) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return b.q.QueryRowContext(ctx, b.d.Rebind(query), args...)
}

// LimitClause returns the pagination suffix for a select. A negative limit
// is unbounded.
func (d *Dialect) LimitClause(limit, offset int) string {
	switch {
	case limit >= 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit >= 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset <= 0:
		return ""
	case d.dollarPlaceholders:
		return fmt.Sprintf(" OFFSET %d", offset)
	}
	// SQLite only accepts OFFSET after a LIMIT
	return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
}
