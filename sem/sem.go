package sem

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/types"
)

// DescriptionParser turns concept text into a condition tree
type DescriptionParser = ask.DescriptionParser

// Writer is the write boundary
type Writer interface {
	Update(ctx context.Context, data *types.SemanticData) (*storage.WriteResult, error)
	Delete(ctx context.Context, subject types.EntityRef) (*storage.WriteResult, error)
	ChangeTitle(ctx context.Context, from, to types.EntityRef, keepRedirect bool) (*storage.WriteResult, error)
}

// Reader is the read boundary
type Reader interface {
	Read(ctx context.Context, subject types.EntityRef, opts storage.ReadOptions) (*storage.Stub, error)
}

// Asker is the query boundary
type Asker interface {
	Ask(ctx context.Context, q ask.Query) (*ask.Result, error)
}

// Store combines the three boundaries with maintenance operations
type Store interface {
	Writer
	Reader
	Asker

	Setup(ctx context.Context) error
	Statistics(ctx context.Context) (*storage.Statistics, error)
	RefreshConceptCache(ctx context.Context, concept types.EntityRef) (int, error)
	DeleteConceptCache(ctx context.Context, concept types.EntityRef) error
}

var _ Store = (*storage.Store)(nil)

// Open connects to the configured database, migrates it and sets up the
// property tables. The caller closes the returned *sql.DB.
func Open(ctx context.Context, cfg *am.Config, parser DescriptionParser, logger *zap.SugaredLogger) (*storage.Store, *sql.DB, error) {
	source := cfg.Database.Path
	if cfg.Database.Dialect == am.DialectPostgres {
		source = cfg.Database.DSN
	}
	conn, dialect, err := db.OpenDialect(cfg.Database.Dialect, source, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(conn, cfg, storage.Options{Dialect: dialect, Parser: parser, Logger: logger})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := store.Setup(ctx); err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "set up store")
	}
	return store, conn, nil
}
