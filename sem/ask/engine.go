package ask

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/catalog"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// Mode selects what Ask returns
type Mode int

const (
	// ModeInstance returns matching pages
	ModeInstance Mode = iota
	// ModeCount returns the number of distinct matching pages
	ModeCount
	// ModeDebug renders the plan without running the final select
	ModeDebug
)

// SortKey orders results by the values of a property. An empty Property
// orders by the page sortkey.
type SortKey struct {
	Property   string `json:"property" yaml:"property"`
	Descending bool   `json:"descending,omitempty" yaml:"descending,omitempty"`
}

// Query is one request to the engine
type Query struct {
	Description Description
	Sort        []SortKey
	Random      bool

	// Limit caps the number of results. 0 uses the configured default,
	// a negative limit is unbounded.
	Limit  int
	Offset int
	Mode   Mode
}

// DebugInfo describes the plan of a query
type DebugInfo struct {
	SQL        string        `json:"sql"`
	Args       []interface{} `json:"args,omitempty"`
	TempTables []Statement   `json:"temp_tables,omitempty"`
	Segments   []string      `json:"segments"`
}

// Result is the outcome of Ask
type Result struct {
	Results []types.WikiPage `json:"results,omitempty"`
	Count   int              `json:"count"`
	HasMore bool             `json:"has_more,omitempty"`
	Debug   *DebugInfo       `json:"debug,omitempty"`

	// Errors holds the soft errors of the query (ErrUnsupportedCondition)
	Errors []error `json:"-"`
}

// Options configures an Engine
type Options struct {
	Dialect *db.Dialect
	Catalog *catalog.Catalog
	IDs     *ids.Registry
	Parser  DescriptionParser
	Config  am.QueryConfig
	Logger  *zap.SugaredLogger

	// Now reports the current time for concept cache freshness
	Now func() time.Time
}

// Engine answers queries over the property tables
type Engine struct {
	db      *sql.DB
	dialect *db.Dialect
	catalog *catalog.Catalog
	ids     *ids.Registry
	parser  DescriptionParser
	cfg     am.QueryConfig
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// New creates an engine over conn
func New(conn *sql.DB, opts Options) *Engine {
	if opts.Dialect == nil {
		opts.Dialect = db.SQLite
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		db:      conn,
		dialect: opts.Dialect,
		catalog: opts.Catalog,
		ids:     opts.IDs,
		parser:  opts.Parser,
		cfg:     opts.Config,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// SetParser installs the parser used for concept descriptions
func (e *Engine) SetParser(p DescriptionParser) {
	e.parser = p
}

const selectColumns = "ids.id, ids.title, ids.namespace, ids.interwiki, ids.subobject, ids.sortkey"

// plan is a compiled query ready to render
type plan struct {
	c     *Compiler
	root  int
	sorts []sortColumn

	// sort segments, joined next to the root
	sortSegments []int
}

func (p *plan) aggregated() int {
	n := 0
	for _, s := range p.sorts {
		if s.aggregated {
			n++
		}
	}
	return n
}

type sortColumn struct {
	expr       string
	descending bool
	aggregated bool
}

func (e *Engine) compile(ctx context.Context, q Query) (*plan, error) {
	c := e.newCompiler()
	root, err := c.Compile(ctx, q.Description)
	if err != nil {
		return nil, err
	}
	p := &plan{c: c, root: root}

	var extra []int
	for _, sk := range q.Sort {
		if sk.Property == "" {
			p.sorts = append(p.sorts, sortColumn{expr: "ids.sortkey", descending: sk.Descending})
			continue
		}
		id, col, err := c.compileSort(ctx, sk.Property)
		if err != nil {
			return nil, err
		}
		if id < 0 {
			continue
		}
		extra = append(extra, id)
		p.sorts = append(p.sorts, sortColumn{expr: col, descending: sk.Descending, aggregated: true})
	}
	if len(extra) > 0 {
		conj := c.add(SegConjunction)
		conj.Components[root] = ""
		for _, id := range extra {
			conj.Components[id] = ""
		}
		p.root = conj.ID
		p.sortSegments = extra
	}
	return p, nil
}

// Ask runs q. Fragments that cannot be translated are reported in
// Result.Errors; a returned error means the database failed.
func (e *Engine) Ask(ctx context.Context, q Query) (*Result, error) {
	queryID := uuid.NewString()
	start := time.Now()
	log := logger.FromContext(ctx, e.logger).With(logger.FieldQueryID, queryID)

	p, err := e.compile(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "compile query")
	}
	result := &Result{}

	if q.Mode == ModeDebug {
		r := newResolver(p.c, e.dialect, recorder{}, e.cfg.MaterializeThreshold)
		f, err := r.Resolve(ctx, p.root, p.sortSegments...)
		if err != nil {
			return nil, err
		}
		info := &DebugInfo{TempTables: r.Statements()}
		if !f.noQuery {
			info.SQL, info.Args = e.instanceSQL(f, p, q, e.limit(q))
		}
		for _, s := range p.c.Segments() {
			info.Segments = append(info.Segments, s.String())
		}
		result.Debug = info
		result.Errors = p.c.Errors()
		return result, nil
	}

	// compiling is done: every lookup above went through the pool, so
	// pinning a connection now cannot starve it
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire query connection")
	}
	defer conn.Close()
	bound := e.dialect.Bind(conn)

	r := newResolver(p.c, e.dialect, bound, e.cfg.MaterializeThreshold)
	defer func() {
		if err := r.Cleanup(context.WithoutCancel(ctx)); err != nil {
			log.Warnw("Failed to drop temp tables", logger.FieldSymbol, sym.Temp, logger.FieldError, err)
		}
	}()

	f, err := r.Resolve(ctx, p.root, p.sortSegments...)
	if err != nil {
		return nil, err
	}
	if f.noQuery {
		result.Errors = p.c.Errors()
		return result, nil
	}

	switch q.Mode {
	case ModeCount:
		query, args := e.countSQL(f)
		if err := bound.QueryRowContext(ctx, query, args...).Scan(&result.Count); err != nil {
			return nil, errors.Wrap(err, "count results")
		}
	default:
		limit := e.limit(q)
		probe := limit
		if probe >= 0 {
			probe++
		}
		query, args := e.instanceSQL(f, p, q, probe)
		pages, err := scanPages(ctx, bound, query, args, p.aggregated())
		if err != nil {
			return nil, err
		}
		if limit >= 0 && len(pages) > limit {
			pages = pages[:limit]
			result.HasMore = true
		}
		result.Results = pages
		result.Count = len(pages)
	}
	result.Errors = p.c.Errors()

	log.Debugw("Answered query",
		logger.FieldSymbol, sym.AX,
		logger.FieldCount, result.Count,
		"temp_tables", len(r.Statements()),
		"soft_errors", len(result.Errors),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Members returns the ids of every page matching desc
func (e *Engine) Members(ctx context.Context, desc Description) ([]int64, error) {
	p, err := e.compile(ctx, Query{Description: desc})
	if err != nil {
		return nil, err
	}
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire query connection")
	}
	defer conn.Close()
	bound := e.dialect.Bind(conn)

	r := newResolver(p.c, e.dialect, bound, e.cfg.MaterializeThreshold)
	defer r.Cleanup(context.WithoutCancel(ctx))
	f, err := r.Resolve(ctx, p.root, p.sortSegments...)
	if err != nil || f.noQuery {
		return nil, err
	}

	from, args := e.from(f)
	rows, err := bound.QueryContext(ctx, "SELECT DISTINCT ids.id"+from+" ORDER BY ids.id", args...)
	if err != nil {
		return nil, errors.Wrap(err, "select members")
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan member")
		}
		out = append(out, id)
	}
	return out, errors.Wrap(rows.Err(), "iterate members")
}

func (e *Engine) limit(q Query) int {
	limit := q.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > 0 && e.cfg.MaxLimit > 0 && limit > e.cfg.MaxLimit {
		limit = e.cfg.MaxLimit
	}
	if limit == 0 {
		return -1
	}
	return limit
}

// from renders the FROM and WHERE clauses joining f to sem_ids
func (e *Engine) from(f *fragment) (string, []interface{}) {
	var b strings.Builder
	var args []interface{}
	b.WriteString(" FROM sem_ids ids")
	if !f.matchAll {
		fmt.Fprintf(&b, " JOIN %s %s ON %s = ids.id", f.table, f.alias, f.field)
		for _, j := range f.joins {
			b.WriteString(" ")
			b.WriteString(j)
		}
		args = append(args, f.joinArgs...)
	}
	b.WriteString(" WHERE ids.interwiki NOT LIKE ?")
	args = append(args, ids.ReservedInterwikiPattern)
	for _, w := range f.where {
		b.WriteString(" AND ")
		b.WriteString(w)
	}
	return b.String(), append(args, f.args...)
}

func (e *Engine) countSQL(f *fragment) (string, []interface{}) {
	from, args := e.from(f)
	return "SELECT COUNT(DISTINCT ids.id)" + from, args
}

func (e *Engine) instanceSQL(f *fragment, p *plan, q Query, limit int) (string, []interface{}) {
	from, args := e.from(f)

	var order []string
	random := q.Random && e.dialect.RandomFunction != ""
	if q.Random && !random {
		p.c.soft(errors.UnsupportedCondition("%s cannot order randomly", e.dialect.Name))
	}

	// aggregated sort columns and random order on engines that insist on
	// ordering by selected columns need GROUP BY instead of DISTINCT
	grouped := p.aggregated() > 0 || (random && e.dialect.DistinctNeedsOrderColumns)

	var b strings.Builder
	if grouped {
		b.WriteString("SELECT " + selectColumns)
	} else {
		b.WriteString("SELECT DISTINCT " + selectColumns)
	}
	for i, s := range p.sorts {
		if !s.aggregated {
			continue
		}
		fn := "MIN"
		if s.descending {
			fn = "MAX"
		}
		fmt.Fprintf(&b, ", %s(%s) AS sort%d", fn, s.expr, i)
	}
	b.WriteString(from)
	if grouped {
		b.WriteString(" GROUP BY " + selectColumns)
	}

	if random {
		order = append(order, e.dialect.RandomFunction)
	} else {
		seen := make(map[string]bool)
		for i, s := range p.sorts {
			expr := s.expr
			if s.aggregated {
				expr = fmt.Sprintf("sort%d", i)
			}
			if seen[expr] {
				continue
			}
			seen[expr] = true
			dir := " ASC"
			if s.descending {
				dir = " DESC"
			}
			order = append(order, expr+dir)
		}
		for _, expr := range []string{"ids.sortkey", "ids.id"} {
			if !seen[expr] {
				order = append(order, expr+" ASC")
			}
		}
	}
	b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	b.WriteString(e.dialect.LimitClause(limit, q.Offset))
	return b.String(), args
}

func scanPages(ctx context.Context, q db.Querier, query string, args []interface{}, extra int) ([]types.WikiPage, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select results")
	}
	defer rows.Close()

	var pages []types.WikiPage
	for rows.Next() {
		var (
			id      int64
			ref     types.EntityRef
			sortkey string
		)
		dest := []interface{}{&id, &ref.Title, &ref.Namespace, &ref.Interwiki, &ref.Subobject, &sortkey}
		for i := 0; i < extra; i++ {
			var ignored interface{}
			dest = append(dest, &ignored)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "scan result")
		}
		pages = append(pages, types.WikiPage{Ref: ref, Sortkey: sortkey})
	}
	return pages, errors.Wrap(rows.Err(), "iterate results")
}
