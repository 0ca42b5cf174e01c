// Package handlers maps each DataItem kind onto table columns.
//
// A Handler is the single storage strategy for one kind: it declares the
// columns, builds insert rows and where-conditions over exactly the same
// columns, and reconstructs items from fetched rows. Registry is built once
// and shared read-only by the catalog, the write path, the read path and the
// query compiler.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/types"
)

// FieldType is the engine-neutral column alphabet
type FieldType = db.ColumnType

const (
	FieldText      = db.ColumnText
	FieldBlob      = db.ColumnBlob
	FieldFloat     = db.ColumnFloat
	FieldInt       = db.ColumnInt
	FieldForeignID = db.ColumnForeignID
	FieldNamespace = db.ColumnNamespace
)

// Suffixes of the columns the read path joins in for every foreign id column
const (
	SuffixTitle     = "_title"
	SuffixNamespace = "_namespace"
	SuffixInterwiki = "_interwiki"
	SuffixSubobject = "_subobject"
	SuffixSortkey   = "_sortkey"
)

// ForeignSuffixes lists the joined columns in select order
var ForeignSuffixes = []string{SuffixTitle, SuffixNamespace, SuffixInterwiki, SuffixSubobject, SuffixSortkey}

// Field is one value column
type Field struct {
	Name string
	Type FieldType
}

// Row maps column names to values. Nil means SQL NULL.
type Row map[string]interface{}

// Columns returns the row's column names sorted
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Canonical renders the row as a stable string, independent of map order
// and of the driver's choice between string and []byte.
func (r Row) Canonical() string {
	var b strings.Builder
	for i, c := range r.Columns() {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(canonicalValue(r[c]))
	}
	return b.String()
}

func canonicalValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "\x00NULL"
	case []byte:
		return string(x)
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("%v", v)
}

// IDLookup resolves entity references to surrogate ids without creating them
type IDLookup interface {
	GetID(ctx context.Context, ref types.EntityRef, followRedirect bool) (int64, error)
}

// IDMaker resolves or assigns surrogate ids
type IDMaker interface {
	IDLookup
	MakeID(ctx context.Context, ref types.EntityRef, sortkey string) (int64, error)
}

// Handler is the storage strategy of one DataItem kind
type Handler interface {
	Kind() types.Kind

	// Fields lists the value columns in table order
	Fields() []Field

	// IndexField is the column the value index is built on
	IndexField() string

	// LabelField is the column used for sorting and display
	LabelField() string

	// WhereConditions locates the row of item. Unknown entities yield id 0,
	// which matches nothing.
	WhereConditions(ctx context.Context, ids IDLookup, item types.DataItem) (Row, error)

	// InsertValues builds the row of item, assigning ids as needed
	InsertValues(ctx context.Context, ids IDMaker, item types.DataItem) (Row, error)

	// FromRow reconstructs an item from fetched columns
	FromRow(row Row) (types.DataItem, error)
}

// Registry holds one handler per storable kind. It is immutable once built.
type Registry struct {
	handlers map[types.Kind]Handler
	order    []types.Kind
}

// NewRegistry builds the handler registry
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[types.Kind]Handler)}
	for _, h := range []Handler{
		numberHandler{},
		blobHandler{},
		booleanHandler{},
		uriHandler{},
		timeHandler{},
		geoHandler{},
		pageHandler{kind: types.KindWikiPage},
		pageHandler{kind: types.KindContainer},
		conceptHandler{},
		propertyHandler{},
	} {
		r.handlers[h.Kind()] = h
		r.order = append(r.order, h.Kind())
	}
	return r
}

// Handler returns the strategy for kind. Error items and unknown kinds have none.
func (r *Registry) Handler(kind types.Kind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, errors.DataCorruption("no storage strategy for %s values", kind)
	}
	return h, nil
}

// Kinds lists the storable kinds in registration order
func (r *Registry) Kinds() []types.Kind {
	out := make([]types.Kind, len(r.order))
	copy(out, r.order)
	return out
}
