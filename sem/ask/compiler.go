package ask

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/catalog"
	"github.com/teranos/semstore/sem/handlers"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sem/types"
)

// Compiler turns a description into segments. All id lookups happen here,
// so resolving the segments afterwards only touches the property tables.
type Compiler struct {
	catalog         *catalog.Catalog
	ids             *ids.Registry
	q               db.Querier
	parser          DescriptionParser
	maxDepth        int
	conceptLifetime time.Duration
	now             func() time.Time

	segments map[int]*Segment
	nextID   int
	errors   []error
	concepts map[int64]bool
}

func (e *Engine) newCompiler() *Compiler {
	return &Compiler{
		catalog:         e.catalog,
		ids:             e.ids,
		q:               e.dialect.Bind(e.db),
		parser:          e.parser,
		maxDepth:        e.cfg.MaxDepth,
		conceptLifetime: time.Duration(e.cfg.ConceptCacheLifetimeMinutes) * time.Minute,
		now:             e.now,
		segments:        make(map[int]*Segment),
		concepts:        make(map[int64]bool),
	}
}

// Compile compiles d and returns the id of its root segment. Fragments that
// cannot be translated are recorded in Errors and degrade gracefully;
// returned errors are database failures.
func (c *Compiler) Compile(ctx context.Context, d Description) (int, error) {
	return c.compile(ctx, d, 0)
}

// Segment returns a compiled segment
func (c *Compiler) Segment(id int) *Segment {
	return c.segments[id]
}

// Segments returns every compiled segment ordered by id
func (c *Compiler) Segments() []*Segment {
	out := make([]*Segment, 0, len(c.segments))
	for i := 0; i < c.nextID; i++ {
		if s, ok := c.segments[i]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Errors returns the soft errors recorded while compiling
func (c *Compiler) Errors() []error {
	return c.errors
}

func (c *Compiler) soft(err error) {
	c.errors = append(c.errors, err)
}

func (c *Compiler) add(t SegmentType) *Segment {
	s := newSegment(c.nextID, t)
	c.segments[s.ID] = s
	c.nextID++
	return s
}

func (c *Compiler) matchAll() int { return c.add(SegMatchAll).ID }
func (c *Compiler) noQuery() int  { return c.add(SegNoQuery).ID }

func (c *Compiler) compile(ctx context.Context, d Description, depth int) (int, error) {
	if c.maxDepth > 0 && depth > c.maxDepth {
		c.soft(errors.UnsupportedCondition("condition nested deeper than %d levels is ignored", c.maxDepth))
		return c.matchAll(), nil
	}
	switch d := d.(type) {
	case nil, Thing, *Thing:
		return c.matchAll(), nil
	case Conjunction:
		return c.compound(ctx, SegConjunction, d.Parts, depth)
	case Disjunction:
		return c.compound(ctx, SegDisjunction, d.Parts, depth)
	case SomeProperty:
		return c.compileProperty(ctx, d, depth)
	case ValueDescription:
		return c.compileValue(ctx, d)
	case ClassDescription:
		return c.compileClass(ctx, d)
	case NamespaceDescription:
		s := c.add(SegValue)
		s.JoinTable, s.JoinField = "sem_ids", "id"
		s.addWhere(s.Alias+".namespace = ?", d.Namespace)
		return s.ID, nil
	case ConceptRef:
		return c.compileConcept(ctx, d, depth)
	}
	c.soft(errors.UnsupportedCondition("condition %T is not supported", d))
	return c.matchAll(), nil
}

func (c *Compiler) compound(ctx context.Context, t SegmentType, parts []Description, depth int) (int, error) {
	if len(parts) == 0 {
		if t == SegDisjunction {
			return c.noQuery(), nil
		}
		return c.matchAll(), nil
	}
	if len(parts) == 1 {
		return c.compile(ctx, parts[0], depth+1)
	}
	s := c.add(t)
	for _, part := range parts {
		child, err := c.compile(ctx, part, depth+1)
		if err != nil {
			return 0, err
		}
		s.Components[child] = ""
	}
	return s.ID, nil
}

func pageLike(k types.Kind) bool {
	return k == types.KindWikiPage || k == types.KindContainer || k == types.KindProperty
}

func (c *Compiler) compileProperty(ctx context.Context, sp SomeProperty, depth int) (int, error) {
	p := sp.Property
	value := sp.Value

	var tables []*catalog.TableDefinition
	if vd, ok := value.(ValueDescription); ok && vd.Item != nil && !p.Inverse {
		if vd.Item.Kind() == types.KindError {
			c.soft(errors.UnsupportedCondition("value for %s could not be parsed and is ignored", p.Key))
			value = nil
		} else {
			t, err := c.catalog.FindTable(p, vd.Item.Kind())
			if err != nil {
				c.soft(errors.UnsupportedCondition("%s: %v", p.Key, err))
				return c.noQuery(), nil
			}
			if t.SubjectMode != catalog.SubjectByID {
				c.soft(errors.UnsupportedCondition("%s cannot be queried", p.Key))
				return c.noQuery(), nil
			}
			tables = append(tables, t)
		}
	}
	if tables == nil {
		// nested conditions can only be evaluated against referenced pages
		chain := false
		switch value.(type) {
		case nil, Thing, ValueDescription:
		default:
			chain = true
		}
		for _, t := range c.catalog.CandidateTables(p) {
			if t.SubjectMode != catalog.SubjectByID {
				continue
			}
			if (p.Inverse || chain) && !pageLike(t.Kind) {
				continue
			}
			tables = append(tables, t)
		}
	}

	switch len(tables) {
	case 0:
		c.soft(errors.UnsupportedCondition("no table can answer %s", p.Label()))
		return c.noQuery(), nil
	case 1:
		return c.compileTable(ctx, p, tables[0], value, depth)
	}
	s := c.add(SegDisjunction)
	for _, t := range tables {
		child, err := c.compileTable(ctx, p, t, value, depth)
		if err != nil {
			return 0, err
		}
		s.Components[child] = ""
	}
	return s.ID, nil
}

func (c *Compiler) compileTable(ctx context.Context, p types.Property, t *catalog.TableDefinition, value Description, depth int) (int, error) {
	if t.Kind == types.KindConcept {
		switch value.(type) {
		case nil, Thing:
		default:
			c.soft(errors.UnsupportedCondition("concept descriptions cannot be compared"))
			value = nil
		}
	}

	subjectCol, valueCol := "s_id", "o_id"
	if p.Inverse {
		subjectCol, valueCol = "o_id", "s_id"
	}

	var pid int64
	if !t.IsFixed() {
		var err error
		if pid, err = c.ids.GetID(ctx, types.Property{Key: p.Key}.Page(), false); err != nil {
			return 0, err
		}
		if pid == 0 {
			// property never used: nothing can match
			return c.noQuery(), nil
		}
	}

	s := c.add(SegTable)
	s.JoinTable, s.JoinField = t.Name, subjectCol
	if pid != 0 {
		s.addWhere(s.Alias+".p_id = ?", pid)
	}
	h := c.catalog.Handler(t)
	if !pageLike(t.Kind) {
		s.SortFields[p.Key] = s.Alias + "." + h.LabelField()
	}

	switch v := value.(type) {
	case nil, Thing:
	case ValueDescription:
		if v.Item == nil {
			break
		}
		if p.Inverse || pageLike(t.Kind) {
			if v.Comparator == EQ {
				id, err := c.pageID(ctx, v.Item, t)
				if err != nil {
					return 0, err
				}
				s.addWhere(s.Alias+"."+valueCol+" = ?", id)
				break
			}
			child, err := c.compileValue(ctx, v)
			if err != nil {
				return 0, err
			}
			s.Components[child] = valueCol
			break
		}
		cond, args, err := c.valueCondition(ctx, s.Alias, h, v)
		if err != nil {
			return 0, err
		}
		s.addWhere(cond, args...)
	default:
		if !p.Inverse && !pageLike(t.Kind) {
			c.soft(errors.UnsupportedCondition("%s holds %s values and cannot be followed", p.Key, t.Kind))
			break
		}
		child, err := c.compile(ctx, v, depth+1)
		if err != nil {
			return 0, err
		}
		s.Components[child] = valueCol
	}
	return s.ID, nil
}

// pageID resolves the id an equality on a page-like value compares with
func (c *Compiler) pageID(ctx context.Context, item types.DataItem, t *catalog.TableDefinition) (int64, error) {
	if h := c.catalog.Handler(t); h.Kind() == item.Kind() {
		row, err := h.WhereConditions(ctx, c.ids, item)
		if err != nil {
			if errors.IsDataCorruption(err) {
				c.soft(errors.UnsupportedCondition("%v", err))
				return 0, nil
			}
			return 0, err
		}
		id, _ := row["o_id"].(int64)
		return id, nil
	}
	if page, ok := item.(types.WikiPage); ok {
		return c.ids.GetID(ctx, page.Ref, true)
	}
	c.soft(errors.UnsupportedCondition("%s value cannot identify a page", item.Kind()))
	return 0, nil
}

// valueCondition translates a literal comparison over alias
func (c *Compiler) valueCondition(ctx context.Context, alias string, h handlers.Handler, v ValueDescription) (string, []interface{}, error) {
	row, err := h.WhereConditions(ctx, c.ids, v.Item)
	if err != nil {
		if errors.IsDataCorruption(err) {
			c.soft(errors.UnsupportedCondition("%v", err))
			return "", nil, nil
		}
		return "", nil, err
	}

	switch v.Comparator {
	case EQ, NEQ:
		cols := row.Columns()
		parts := make([]string, 0, len(cols))
		var args []interface{}
		for _, col := range cols {
			if row[col] == nil {
				parts = append(parts, alias+"."+col+" IS NULL")
				continue
			}
			parts = append(parts, alias+"."+col+" = ?")
			args = append(args, row[col])
		}
		cond := strings.Join(parts, " AND ")
		if v.Comparator == NEQ {
			cond = "NOT (" + cond + ")"
		}
		return cond, args, nil

	case LT, GT, LEQ, GEQ:
		switch h.Kind() {
		case types.KindBoolean, types.KindGeo:
			c.soft(errors.UnsupportedCondition("%s values cannot be ordered", h.Kind()))
			return "", nil, nil
		}
		op := map[Comparator]string{LT: "<", GT: ">", LEQ: "<=", GEQ: ">="}[v.Comparator]
		return alias + "." + h.LabelField() + " " + op + " ?", []interface{}{row[h.LabelField()]}, nil

	case LIKE, NLIKE:
		var text string
		switch item := v.Item.(type) {
		case types.Blob:
			text = item.Text
		case types.URI:
			text = item.Value
		default:
			c.soft(errors.UnsupportedCondition("pattern matching is not supported for %s values", h.Kind()))
			return "", nil, nil
		}
		op := " LIKE ? ESCAPE '\\'"
		if v.Comparator == NLIKE {
			op = " NOT LIKE ? ESCAPE '\\'"
		}
		return alias + "." + h.IndexField() + op, []interface{}{likePattern(text)}, nil
	}
	c.soft(errors.UnsupportedCondition("comparator %d is not supported", v.Comparator))
	return "", nil, nil
}

// likePattern turns a wildcard pattern (* and ?) into a LIKE pattern
func likePattern(s string) string {
	s = escapeLikePattern(s)
	s = strings.ReplaceAll(s, "*", "%")
	return strings.ReplaceAll(s, "?", "_")
}

// escapeLikePattern escapes special characters in LIKE patterns for SQL ESCAPE clause
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// compileValue compiles a page value into a filter over sem_ids
func (c *Compiler) compileValue(ctx context.Context, v ValueDescription) (int, error) {
	var ref types.EntityRef
	switch item := v.Item.(type) {
	case types.WikiPage:
		ref = item.Ref
	case types.PropertyItem:
		ref = item.Property.Page()
	default:
		kind := "empty"
		if v.Item != nil {
			kind = v.Item.Kind().String()
		}
		c.soft(errors.UnsupportedCondition("a %s value cannot select pages", kind))
		return c.matchAll(), nil
	}

	s := c.add(SegValue)
	s.JoinTable, s.JoinField = "sem_ids", "id"
	switch v.Comparator {
	case EQ, NEQ:
		id, err := c.ids.GetID(ctx, ref, true)
		if err != nil {
			return 0, err
		}
		if v.Comparator == EQ {
			if id == 0 {
				return c.noQuery(), nil
			}
			s.addWhere(s.Alias+".id = ?", id)
		} else {
			s.addWhere(s.Alias+".id <> ?", id)
		}
	case LT, GT, LEQ, GEQ:
		op := map[Comparator]string{LT: "<", GT: ">", LEQ: "<=", GEQ: ">="}[v.Comparator]
		s.addWhere(s.Alias+".sortkey "+op+" ?", ref.DefaultSortkey())
	case LIKE:
		s.addWhere(s.Alias+".sortkey LIKE ? ESCAPE '\\'", likePattern(ref.DefaultSortkey()))
	case NLIKE:
		s.addWhere(s.Alias+".sortkey NOT LIKE ? ESCAPE '\\'", likePattern(ref.DefaultSortkey()))
	}
	return s.ID, nil
}

// compileClass matches members of the categories and of their subcategories
func (c *Compiler) compileClass(ctx context.Context, d ClassDescription) (int, error) {
	seen := make(map[int64]bool)
	var frontier []int64
	for _, cat := range d.Categories {
		if cat.Namespace == types.NSMain {
			cat.Namespace = types.NSCategory
		}
		id, err := c.ids.GetID(ctx, cat, true)
		if err != nil {
			return 0, err
		}
		if id != 0 && !seen[id] {
			seen[id] = true
			frontier = append(frontier, id)
		}
	}

	subc, err := c.catalog.FindTable(types.Property{Key: types.PropSubcat}, types.KindWikiPage)
	if err != nil {
		return 0, err
	}
	for depth := 0; len(frontier) > 0 && (c.maxDepth <= 0 || depth < c.maxDepth); depth++ {
		next, err := c.subcategories(ctx, subc.Name, frontier)
		if err != nil {
			return 0, err
		}
		frontier = frontier[:0]
		for _, id := range next {
			if !seen[id] {
				seen[id] = true
				frontier = append(frontier, id)
			}
		}
	}
	if len(seen) == 0 {
		return c.noQuery(), nil
	}

	inst, err := c.catalog.FindTable(types.Property{Key: types.PropInstance}, types.KindWikiPage)
	if err != nil {
		return 0, err
	}
	all := make([]int64, 0, len(seen))
	for id := range seen {
		all = append(all, id)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	s := c.add(SegTable)
	s.JoinTable, s.JoinField = inst.Name, "s_id"
	cond, args := inList(s.Alias+".o_id", all)
	s.addWhere(cond, args...)
	return s.ID, nil
}

func (c *Compiler) subcategories(ctx context.Context, table string, parents []int64) ([]int64, error) {
	cond, args := inList("o_id", parents)
	rows, err := c.q.QueryContext(ctx, "SELECT s_id FROM "+table+" WHERE "+cond, args...)
	if err != nil {
		return nil, errors.Wrap(err, "read subcategories")
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan subcategory")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "iterate subcategories")
}

func inList(col string, ids []int64) (string, []interface{}) {
	marks := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	if len(ids) == 1 {
		return col + " = ?", args
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")), args
}

// compileConcept uses fresh cached members when available and otherwise
// compiles the concept's stored description
func (c *Compiler) compileConcept(ctx context.Context, d ConceptRef, depth int) (int, error) {
	ref := d.Concept
	if ref.Namespace == types.NSMain {
		ref.Namespace = types.NSConcept
	}
	id, err := c.ids.GetID(ctx, ref, true)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		c.soft(errors.UnsupportedCondition("concept %s does not exist", ref))
		return c.noQuery(), nil
	}
	if c.concepts[id] {
		c.soft(errors.UnsupportedCondition("concept %s refers to itself", ref))
		return c.noQuery(), nil
	}

	conc, err := c.catalog.FindTable(types.Property{Key: types.PropConcept}, types.KindConcept)
	if err != nil {
		return 0, err
	}
	var text []byte
	var cacheDate sql.NullInt64
	err = c.q.QueryRowContext(ctx,
		"SELECT concept_txt, cache_date FROM "+conc.Name+" WHERE s_id = ?", id).Scan(&text, &cacheDate)
	if err == sql.ErrNoRows {
		c.soft(errors.UnsupportedCondition("concept %s has no description", ref))
		return c.noQuery(), nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read concept %s", ref)
	}

	if c.conceptLifetime > 0 && cacheDate.Int64 > 0 {
		cached := time.Unix(cacheDate.Int64, 0)
		if c.now().Sub(cached) <= c.conceptLifetime {
			s := c.add(SegTable)
			s.JoinTable, s.JoinField = "sem_concept_cache", "s_id"
			s.addWhere(s.Alias+".o_id = ?", id)
			return s.ID, nil
		}
	}

	if c.parser == nil {
		c.soft(errors.UnsupportedCondition("concept %s is not cached and no parser is configured", ref))
		return c.noQuery(), nil
	}
	desc, err := c.parser.ParseDescription(string(text))
	if err != nil {
		c.soft(errors.UnsupportedCondition("concept %s: %v", ref, err))
		return c.noQuery(), nil
	}
	c.concepts[id] = true
	defer delete(c.concepts, id)
	return c.compile(ctx, desc, depth+1)
}

// compileSort joins the table of key so its values can be ordered on.
// It returns -1 when the key cannot be sorted on.
func (c *Compiler) compileSort(ctx context.Context, key string) (int, string, error) {
	p := types.Property{Key: types.NormalizeTitle(key)}
	var tables []*catalog.TableDefinition
	for _, t := range c.catalog.CandidateTables(p) {
		if t.SubjectMode == catalog.SubjectByID && t.Kind != types.KindConcept {
			tables = append(tables, t)
		}
	}
	if len(tables) != 1 {
		c.soft(errors.UnsupportedCondition("cannot sort on %s without a declared type", key))
		return -1, "", nil
	}
	t := tables[0]

	var pid int64
	if !t.IsFixed() {
		var err error
		if pid, err = c.ids.GetID(ctx, p.Page(), false); err != nil {
			return 0, "", err
		}
		if pid == 0 {
			c.soft(errors.UnsupportedCondition("cannot sort on unused property %s", key))
			return -1, "", nil
		}
	}

	s := c.add(SegTable)
	s.JoinTable, s.JoinField = t.Name, "s_id"
	if pid != 0 {
		s.addWhere(s.Alias+".p_id = ?", pid)
	}
	h := c.catalog.Handler(t)
	column := s.Alias + "." + h.LabelField()
	if pageLike(t.Kind) {
		sortAlias := "s" + s.Alias
		s.From = fmt.Sprintf("LEFT JOIN sem_ids %s ON %s.id = %s.o_id", sortAlias, sortAlias, s.Alias)
		column = sortAlias + ".sortkey"
	}
	s.SortFields[p.Key] = column
	return s.ID, column, nil
}
