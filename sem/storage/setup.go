package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/catalog"
	"github.com/teranos/semstore/sem/handlers"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sym"
)

// TableDDL returns the statements creating t and its indexes
func TableDDL(c *catalog.Catalog, d *db.Dialect, t *catalog.TableDefinition) []string {
	cols := c.Columns(t)
	defs := make([]string, 0, len(cols))
	for _, f := range cols {
		def := f.Name + " " + d.ColumnDDL(f.Type)
		if strings.HasPrefix(f.Name, "s_") || f.Name == "p_id" {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(defs, ", ")),
	}

	index := func(suffix string, columns ...string) {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			t.Name, suffix, t.Name, strings.Join(columns, ", ")))
	}
	h := c.Handler(t)
	if t.SubjectMode == catalog.SubjectByTitle {
		index("s", "s_title", "s_namespace")
	} else {
		index("s", "s_id")
	}
	if !t.IsFixed() {
		index("p", "p_id", h.IndexField())
	}
	if h.IndexField() != "" && fieldType(h, h.IndexField()) != handlers.FieldBlob {
		index("o", h.IndexField())
	}
	return stmts
}

func fieldType(h handlers.Handler, name string) handlers.FieldType {
	for _, f := range h.Fields() {
		if f.Name == name {
			return f.Type
		}
	}
	return handlers.FieldText
}

// References lists every id-carrying column of the catalog's tables
func References(c *catalog.Catalog) []ids.Reference {
	var refs []ids.Reference
	for _, t := range c.Tables() {
		for _, f := range c.Columns(t) {
			if f.Type != handlers.FieldForeignID {
				continue
			}
			refs = append(refs, ids.Reference{
				Table:      t.Name,
				Column:     f.Name,
				Value:      strings.HasPrefix(f.Name, "o_"),
				TitleKeyed: t.SubjectMode == catalog.SubjectByTitle,
			})
		}
	}
	return refs
}

// Setup creates the property tables and reserves the built-in ids.
// Migrations for the core tables must have run. It is idempotent.
func (s *Store) Setup(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin setup")
	}
	q := s.dialect.Bind(tx)

	for _, t := range s.catalog.Tables() {
		for _, stmt := range TableDDL(s.catalog, s.dialect, t) {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return errors.Wrapf(err, "create %s", t.Name)
			}
		}
	}
	if err := s.ids.WithQuerier(tx).ReserveBuiltins(ctx); err != nil {
		tx.Rollback()
		s.ids.ClearCaches()
		return err
	}
	if err := tx.Commit(); err != nil {
		s.ids.ClearCaches()
		return errors.Wrap(err, "commit setup")
	}

	s.logger.Infow("Store setup complete",
		logger.FieldSymbol, sym.DB,
		"dialect", s.dialect.Name,
		"tables", len(s.catalog.Tables()),
	)
	return nil
}
