package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/catalog"
	"github.com/teranos/semstore/sem/handlers"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// ReadOptions narrows a read
type ReadOptions struct {
	// Kinds restricts the read to tables storing these kinds (all when empty)
	Kinds []types.Kind
}

func (o ReadOptions) accepts(k types.Kind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, want := range o.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Reader reassembles fact sets from the property tables
type Reader struct {
	q       db.Querier
	catalog *catalog.Catalog
	ids     *ids.Registry
	stubs   *stubCache
	logger  *zap.SugaredLogger
}

// Read returns the stored facts of subject as a stub. A subject without an
// id of its own (unknown, or a redirect source) reads as empty.
func (r *Reader) Read(ctx context.Context, subject types.EntityRef, opts ReadOptions) (*Stub, error) {
	cacheable := len(opts.Kinds) == 0
	if cacheable {
		if stub, ok := r.stubs.get(subject); ok {
			return stub, nil
		}
	}

	stub, err := r.read(ctx, subject, opts)
	if err != nil {
		return nil, err
	}
	if cacheable {
		r.stubs.add(stub)
	}
	return stub, nil
}

func (r *Reader) read(ctx context.Context, subject types.EntityRef, opts ReadOptions) (*Stub, error) {
	id, sortkey, err := r.ids.GetIDAndSortkey(ctx, subject, false)
	if err != nil {
		return nil, err
	}
	stub := newStub(subject, id, sortkey)
	if id == 0 {
		return stub, nil
	}

	hashes, err := r.ids.GetTableHashes(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, t := range r.catalog.HashedTables() {
		if !opts.accepts(t.Kind) {
			continue
		}
		// known hashes list every table holding rows for this id
		if hashes != nil && hashes[t.Name] == "" {
			continue
		}
		if err := r.loadTable(ctx, stub, t); err != nil {
			return nil, err
		}
	}

	if !subject.IsSubobject() {
		subs, err := r.ids.SubobjectIDs(ctx, subject)
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			nested, err := r.read(ctx, s.Ref, opts)
			if err != nil {
				return nil, err
			}
			if !nested.IsEmpty() {
				stub.subobjects[s.Ref.Subobject] = nested
			}
		}
	}

	r.logger.Debugw("Read subject",
		logger.FieldSymbol, sym.GET,
		logger.FieldSubject, subject.String(),
		logger.FieldSubjectID, id,
		logger.FieldCount, len(stub.props),
	)
	return stub, nil
}

// selectColumns builds the select list and joins for t: the property key
// for shared tables, the value columns, and the joined entity columns of
// every foreign id.
func selectColumns(c *catalog.Catalog, t *catalog.TableDefinition) (cols []string, names []string, joins []string) {
	if !t.IsFixed() {
		cols = append(cols, "p.title")
		names = append(names, "p_key")
		joins = append(joins, "JOIN sem_ids p ON p.id = t.p_id")
	}
	for i, f := range c.Handler(t).Fields() {
		cols = append(cols, "t."+f.Name)
		names = append(names, f.Name)
		if f.Type != handlers.FieldForeignID {
			continue
		}
		alias := fmt.Sprintf("o%d", i)
		joins = append(joins, fmt.Sprintf("LEFT JOIN sem_ids %s ON %s.id = t.%s", alias, alias, f.Name))
		for _, suffix := range handlers.ForeignSuffixes {
			cols = append(cols, alias+"."+strings.TrimPrefix(suffix, "_"))
			names = append(names, f.Name+suffix)
		}
	}
	return cols, names, joins
}

func (r *Reader) loadTable(ctx context.Context, stub *Stub, t *catalog.TableDefinition) error {
	cols, names, joins := selectColumns(r.catalog, t)
	query := fmt.Sprintf("SELECT %s FROM %s t %s WHERE t.s_id = ?",
		strings.Join(cols, ", "), t.Name, strings.Join(joins, " "))

	rows, err := r.q.QueryContext(ctx, query, stub.id)
	if err != nil {
		return errors.Wrapf(err, "read %s", t.Name)
	}
	defer rows.Close()

	h := r.catalog.Handler(t)
	fieldTypes := make(map[string]handlers.FieldType)
	for _, f := range h.Fields() {
		fieldTypes[f.Name] = f.Type
	}

	byProperty := make(map[string][]handlers.Row)
	var order []string
	for rows.Next() {
		values := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return errors.Wrapf(err, "scan %s", t.Name)
		}
		row := make(handlers.Row, len(names))
		for i, name := range names {
			ft, ok := fieldTypes[name]
			if !ok {
				ft = handlers.FieldText
				if strings.HasSuffix(name, handlers.SuffixNamespace) {
					ft = handlers.FieldNamespace
				}
			}
			row[name] = normalizeScanned(values[i], ft)
		}

		key := t.FixedProperty
		if key == "" {
			k, _ := row["p_key"].(string)
			if k == "" {
				stub.addError(errors.DataCorruption("%s row of %s has no property", t.Name, stub.subject))
				continue
			}
			key = k
			delete(row, "p_key")
		}
		if _, seen := byProperty[key]; !seen {
			order = append(order, key)
		}
		byProperty[key] = append(byProperty[key], row)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrapf(err, "iterate %s", t.Name)
	}

	for _, key := range order {
		stub.addRows(types.Property{Key: key}, h, byProperty[key])
	}
	return nil
}
