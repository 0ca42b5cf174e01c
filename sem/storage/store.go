// Package storage persists semantic data in per-kind property tables.
//
// A Store ties together the table catalog, the id registry, the diffing
// writer, the lazy reader and the query engine. All of them share one
// *sql.DB and one set of caches.
package storage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/catalog"
	"github.com/teranos/semstore/sem/handlers"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sem/types"
)

// Options configures a Store beyond the am configuration
type Options struct {
	// Dialect defaults to the one named in the configuration
	Dialect *db.Dialect

	// Parser turns stored concept descriptions into conditions
	Parser ask.DescriptionParser

	Logger *zap.SugaredLogger

	// Now reports the current time for concept cache dates
	Now func() time.Time
}

// Store is the semantic store over one database
type Store struct {
	db      *sql.DB
	dialect *db.Dialect
	cfg     *am.Config
	catalog *catalog.Catalog
	ids     *ids.Registry
	writer  *Writer
	reader  *Reader
	stubs   *stubCache
	engine  *ask.Engine
	parser  ask.DescriptionParser
	now     func() time.Time
	logger  *zap.SugaredLogger
}

// New creates a store over conn. The core tables must have been migrated;
// call Setup to create the property tables.
func New(conn *sql.DB, cfg *am.Config, opts Options) (*Store, error) {
	if cfg == nil {
		cfg = am.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dialect == nil {
		d, err := db.DialectByName(cfg.Database.Dialect)
		if err != nil {
			return nil, err
		}
		opts.Dialect = d
	}

	cat, err := catalog.New(cfg.Store, handlers.NewRegistry(), opts.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "build table catalog")
	}
	registry := ids.New(conn, ids.Options{
		Dialect:             opts.Dialect,
		IDCacheSize:         cfg.Store.IDCacheSize,
		PropertyIDCacheSize: cfg.Store.PropertyIDCacheSize,
		ResolveRedirects:    cfg.Store.ResolveRedirects,
		References:          References(cat),
		Logger:              opts.Logger,
	})
	stubs := newStubCache(cfg.Store.StubCacheSize)

	s := &Store{
		db:      conn,
		dialect: opts.Dialect,
		cfg:     cfg,
		catalog: cat,
		ids:     registry,
		stubs:   stubs,
		parser:  opts.Parser,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	s.writer = &Writer{db: conn, dialect: opts.Dialect, catalog: cat, ids: registry, stubs: stubs, logger: opts.Logger}
	s.reader = &Reader{q: opts.Dialect.Bind(conn), catalog: cat, ids: registry, stubs: stubs, logger: opts.Logger}
	s.engine = ask.New(conn, ask.Options{
		Dialect: opts.Dialect,
		Catalog: cat,
		IDs:     registry,
		Parser:  opts.Parser,
		Config:  cfg.Query,
		Logger:  opts.Logger,
		Now:     opts.Now,
	})
	return s, nil
}

// SetParser installs the concept description parser
func (s *Store) SetParser(p ask.DescriptionParser) {
	s.parser = p
	s.engine.SetParser(p)
}

// Update replaces the stored facts of data's subject with data
func (s *Store) Update(ctx context.Context, data *types.SemanticData) (*WriteResult, error) {
	return s.writer.Update(ctx, data)
}

// Delete removes every fact of subject
func (s *Store) Delete(ctx context.Context, subject types.EntityRef) (*WriteResult, error) {
	return s.writer.Delete(ctx, subject)
}

// ChangeTitle moves the facts of from to to
func (s *Store) ChangeTitle(ctx context.Context, from, to types.EntityRef, keepRedirect bool) (*WriteResult, error) {
	return s.writer.ChangeTitle(ctx, from, to, keepRedirect)
}

// Read returns the stored facts of subject
func (s *Store) Read(ctx context.Context, subject types.EntityRef, opts ReadOptions) (*Stub, error) {
	return s.reader.Read(ctx, subject, opts)
}

// Ask runs a query
func (s *Store) Ask(ctx context.Context, q ask.Query) (*ask.Result, error) {
	return s.engine.Ask(ctx, q)
}

// Catalog returns the table catalog
func (s *Store) Catalog() *catalog.Catalog { return s.catalog }

// IDs returns the id registry
func (s *Store) IDs() *ids.Registry { return s.ids }

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect in use
func (s *Store) Dialect() *db.Dialect { return s.dialect }

// ClearCaches drops every in-process cache
func (s *Store) ClearCaches() {
	s.ids.ClearCaches()
	s.stubs.purge()
}
