// Package catalog decides which table stores which property.
//
// Tables come from three sources, registered in this order:
//
//  1. one shared table per storable kind, with a p_id column
//  2. one dedicated table per built-in fixed property
//  3. one dedicated table per user property configured with fixed = true
//
// Names are unique across all sources; a later table whose name is taken is
// rejected. The catalog is immutable after New returns.
package catalog

import (
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/handlers"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// ErrTableConflict marks a table whose name is already registered
var ErrTableConflict = errors.Mark(errors.New("property table name already registered"), errors.ErrConflict)

// Table name prefixes
const (
	SharedPrefix = "sem_di_"
	FixedPrefix  = "sem_fpt_"
)

// SubjectMode selects how a table identifies its subject
type SubjectMode int

const (
	// SubjectByID stores the subject's surrogate id in s_id
	SubjectByID SubjectMode = iota
	// SubjectByTitle stores s_title and s_namespace; used by the redirect table
	SubjectByTitle
)

// TableDefinition describes one property table
type TableDefinition struct {
	Name          string
	Kind          types.Kind
	FixedProperty string // empty for shared tables
	SubjectMode   SubjectMode
}

// IsFixed reports whether the table is dedicated to one property
func (t *TableDefinition) IsFixed() bool {
	return t.FixedProperty != ""
}

type builtin struct {
	key  string
	name string
	mode SubjectMode
}

var builtinFixed = []builtin{
	{types.PropType, "type", SubjectByID},
	{types.PropURI, "uri", SubjectByID},
	{types.PropInstance, "inst", SubjectByID},
	{types.PropRedirect, "redi", SubjectByTitle},
	{types.PropSubprop, "subp", SubjectByID},
	{types.PropSubcat, "subc", SubjectByID},
	{types.PropConcept, "conc", SubjectByID},
	{types.PropModified, "mdat", SubjectByID},
	{types.PropSubobjects, "sobj", SubjectByID},
}

// Catalog maps properties to tables
type Catalog struct {
	handlers *handlers.Registry
	tables   []*TableDefinition
	byName   map[string]*TableDefinition
	byKind   map[types.Kind]*TableDefinition
	fixed    map[string]*TableDefinition
	declared map[string]types.Kind
}

// New builds the catalog from the store configuration
func New(cfg am.StoreConfig, registry *handlers.Registry, logger *zap.SugaredLogger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Catalog{
		handlers: registry,
		byName:   make(map[string]*TableDefinition),
		byKind:   make(map[types.Kind]*TableDefinition),
		fixed:    make(map[string]*TableDefinition),
		declared: make(map[string]types.Kind),
	}

	for _, kind := range registry.Kinds() {
		t := &TableDefinition{Name: SharedPrefix + kind.String(), Kind: kind}
		if err := c.register(t); err != nil {
			return nil, err
		}
		c.byKind[kind] = t
	}

	for _, b := range builtinFixed {
		kind, _ := types.PredefinedKind(b.key)
		t := &TableDefinition{Name: FixedPrefix + b.name, Kind: kind, FixedProperty: b.key, SubjectMode: b.mode}
		if err := c.register(t); err != nil {
			return nil, err
		}
	}

	for _, pc := range cfg.Properties {
		key := types.NormalizeTitle(pc.Key)
		kind := types.KindWikiPage
		if pc.Type != "" {
			parsed, ok := types.ParseKind(pc.Type)
			if !ok || parsed == types.KindError || parsed == types.KindConcept {
				return nil, errors.NewInvalidRequestError("property %q has unsupported type %q", pc.Key, pc.Type)
			}
			kind = parsed
		}
		c.declared[key] = kind
		if !pc.Fixed {
			continue
		}
		t := &TableDefinition{Name: FixedTableName(key), Kind: kind, FixedProperty: key}
		if err := c.register(t); err != nil {
			logger.Warnw("Skipping fixed property table",
				"symbol", sym.DB,
				"property", key,
				"table", t.Name,
				"error", err,
			)
		}
	}

	return c, nil
}

func (c *Catalog) register(t *TableDefinition) error {
	if _, taken := c.byName[t.Name]; taken {
		return errors.Mark(errors.Newf("table %s is already registered", t.Name), ErrTableConflict)
	}
	c.byName[t.Name] = t
	c.tables = append(c.tables, t)
	if t.IsFixed() {
		c.fixed[t.FixedProperty] = t
	}
	return nil
}

// FixedTableName derives a dedicated table name from a property key
func FixedTableName(key string) string {
	var b strings.Builder
	b.WriteString(FixedPrefix)
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// PropertyKind returns the storage kind of p. Fixed and declared properties
// have a kind of their own; otherwise the value's kind decides (hint), and
// page references are the fallback.
func (c *Catalog) PropertyKind(p types.Property, hint types.Kind) types.Kind {
	if t, ok := c.fixed[p.Key]; ok {
		return t.Kind
	}
	if k, ok := c.Declared(p); ok {
		return k
	}
	if hint != types.KindUnknown {
		return hint
	}
	return types.KindWikiPage
}

// Declared returns the configured or predefined kind of p
func (c *Catalog) Declared(p types.Property) (types.Kind, bool) {
	if k, ok := c.declared[p.Key]; ok {
		return k, true
	}
	return types.PredefinedKind(p.Key)
}

// FindTable returns the table storing p's values of kind hint
func (c *Catalog) FindTable(p types.Property, hint types.Kind) (*TableDefinition, error) {
	if t, ok := c.fixed[p.Key]; ok {
		return t, nil
	}
	kind := c.PropertyKind(p, hint)
	t, ok := c.byKind[kind]
	if !ok {
		return nil, errors.DataCorruption("no table stores %s values", kind)
	}
	return t, nil
}

// CandidateTables lists every table that may hold values of p. Properties
// with a fixed or declared kind have exactly one; undeclared properties may
// have values in any shared table.
func (c *Catalog) CandidateTables(p types.Property) []*TableDefinition {
	if t, ok := c.fixed[p.Key]; ok {
		return []*TableDefinition{t}
	}
	if k, ok := c.Declared(p); ok {
		if t, ok := c.byKind[k]; ok {
			return []*TableDefinition{t}
		}
		return nil
	}
	var out []*TableDefinition
	for _, t := range c.tables {
		if !t.IsFixed() {
			out = append(out, t)
		}
	}
	return out
}

// Table returns the table registered under name
func (c *Catalog) Table(name string) (*TableDefinition, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Tables returns every table in registration order
func (c *Catalog) Tables() []*TableDefinition {
	out := make([]*TableDefinition, len(c.tables))
	copy(out, c.tables)
	return out
}

// HashedTables returns the id-keyed tables, the ones tracked in table hashes
func (c *Catalog) HashedTables() []*TableDefinition {
	var out []*TableDefinition
	for _, t := range c.tables {
		if t.SubjectMode == SubjectByID {
			out = append(out, t)
		}
	}
	return out
}

// Handler returns the storage strategy of t
func (c *Catalog) Handler(t *TableDefinition) handlers.Handler {
	h, _ := c.handlers.Handler(t.Kind)
	return h
}

// Handlers returns the registry the catalog was built with
func (c *Catalog) Handlers() *handlers.Registry {
	return c.handlers
}

// Columns lists the full column layout of t: subject columns, the property
// column for shared tables, then the value columns.
func (c *Catalog) Columns(t *TableDefinition) []handlers.Field {
	var cols []handlers.Field
	if t.SubjectMode == SubjectByTitle {
		cols = append(cols,
			handlers.Field{Name: "s_title", Type: handlers.FieldText},
			handlers.Field{Name: "s_namespace", Type: handlers.FieldNamespace})
	} else {
		cols = append(cols, handlers.Field{Name: "s_id", Type: handlers.FieldForeignID})
	}
	if !t.IsFixed() {
		cols = append(cols, handlers.Field{Name: "p_id", Type: handlers.FieldForeignID})
	}
	return append(cols, c.Handler(t).Fields()...)
}
