package ask

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
)

// TempTablePrefix names materialized id sets
const TempTablePrefix = "sem_tmp_"

// Statement is one SQL statement with its arguments
type Statement struct {
	SQL  string        `json:"sql"`
	Args []interface{} `json:"args,omitempty"`
}

func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}
	return fmt.Sprintf("%s %v", s.SQL, s.Args)
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// recorder collects statements instead of running them
type recorder struct{}

func (recorder) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return driver.RowsAffected(0), nil
}

// fragment is the inline form of a resolved segment: a table joined on
// field plus the joins and conditions it drags along.
type fragment struct {
	table string
	alias string
	field string

	joins    []string
	joinArgs []interface{}
	where    []string
	args     []interface{}

	matchAll bool
	noQuery  bool
}

func (f *fragment) addJoin(join string, args ...interface{}) {
	f.joins = append(f.joins, join)
	f.joinArgs = append(f.joinArgs, args...)
}

func (f *fragment) addWhere(cond string, args ...interface{}) {
	if cond == "" {
		return
	}
	f.where = append(f.where, cond)
	f.args = append(f.args, args...)
}

// merge joins child so that its field equals on
func (f *fragment) merge(child *fragment, on string) {
	f.addJoin(fmt.Sprintf("JOIN %s %s ON %s = %s", child.table, child.alias, child.field, on))
	f.joins = append(f.joins, child.joins...)
	f.joinArgs = append(f.joinArgs, child.joinArgs...)
	f.where = append(f.where, child.where...)
	f.args = append(f.args, child.args...)
}

// selectIDs renders the id set of f
func (f *fragment) selectIDs() (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT DISTINCT %s FROM %s %s", f.field, f.table, f.alias)
	for _, j := range f.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(f.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(f.where, " AND "))
	}
	args := make([]interface{}, 0, len(f.joinArgs)+len(f.args))
	args = append(args, f.joinArgs...)
	return b.String(), append(args, f.args...)
}

// Resolver turns compiled segments into a single joinable fragment,
// materializing id sets into temp tables where a join cannot express them.
type Resolver struct {
	c         *Compiler
	dialect   *db.Dialect
	exec      executor
	threshold int

	// pinned segments are joined inline so their columns stay addressable
	pinned map[int]bool

	temps      []string
	statements []Statement
	n          int
}

func newResolver(c *Compiler, d *db.Dialect, exec executor, threshold int) *Resolver {
	return &Resolver{c: c, dialect: d, exec: exec, threshold: threshold}
}

// Resolve resolves the segment id. The segments listed in pinned are
// never folded into a temp table; every other conjunction wider than the
// threshold is.
func (r *Resolver) Resolve(ctx context.Context, id int, pinned ...int) (*fragment, error) {
	r.pinned = make(map[int]bool, len(pinned))
	for _, p := range pinned {
		r.pinned[p] = true
	}
	return r.resolve(ctx, id)
}

// Statements returns the materialization statements issued so far
func (r *Resolver) Statements() []Statement {
	return r.statements
}

// TempTables returns the temp tables created so far
func (r *Resolver) TempTables() []string {
	return r.temps
}

func (r *Resolver) resolve(ctx context.Context, id int) (*fragment, error) {
	s := r.c.Segment(id)
	if s == nil {
		return nil, errors.AssertionFailedf("segment %d does not exist", id)
	}
	switch s.Type {
	case SegMatchAll:
		return &fragment{matchAll: true}, nil
	case SegNoQuery:
		return &fragment{noQuery: true}, nil
	case SegTable, SegValue:
		return r.resolveTable(ctx, s)
	case SegConjunction:
		return r.resolveConjunction(ctx, s)
	case SegDisjunction:
		return r.resolveDisjunction(ctx, s)
	}
	return nil, errors.AssertionFailedf("segment %d has unknown type %d", id, s.Type)
}

func (r *Resolver) resolveTable(ctx context.Context, s *Segment) (*fragment, error) {
	f := &fragment{table: s.JoinTable, alias: s.Alias, field: s.Alias + "." + s.JoinField}
	if s.From != "" {
		f.addJoin(s.From, s.FromArgs...)
	}
	f.addWhere(s.Where, s.Args...)
	for _, childID := range s.children() {
		child, err := r.resolve(ctx, childID)
		if err != nil {
			return nil, err
		}
		if child.noQuery {
			return child, nil
		}
		if child.matchAll {
			continue
		}
		f.merge(child, s.Alias+"."+s.Components[childID])
	}
	return f, nil
}

func (r *Resolver) resolveConjunction(ctx context.Context, s *Segment) (*fragment, error) {
	var parts, pinned []*fragment
	for _, childID := range s.children() {
		child, err := r.resolve(ctx, childID)
		if err != nil {
			return nil, err
		}
		if child.noQuery {
			return child, nil
		}
		switch {
		case child.matchAll:
		case r.pinned[childID]:
			pinned = append(pinned, child)
		default:
			parts = append(parts, child)
		}
	}

	base, err := r.intersect(ctx, parts)
	if err != nil {
		return nil, err
	}
	for _, p := range pinned {
		if base == nil {
			base = p
			continue
		}
		base.merge(p, base.field)
	}
	if base == nil {
		return &fragment{matchAll: true}, nil
	}
	return base, nil
}

// intersect joins parts on their subject field, folding the result into a
// temp table once there are more parts than the threshold allows
func (r *Resolver) intersect(ctx context.Context, parts []*fragment) (*fragment, error) {
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	}
	base := parts[0]
	for _, p := range parts[1:] {
		base.merge(p, base.field)
	}
	if r.threshold <= 0 || len(parts) <= r.threshold {
		return base, nil
	}
	return r.materialize(ctx, base)
}

func (r *Resolver) resolveDisjunction(ctx context.Context, s *Segment) (*fragment, error) {
	var parts []*fragment
	for _, childID := range s.children() {
		child, err := r.resolve(ctx, childID)
		if err != nil {
			return nil, err
		}
		if child.matchAll {
			return child, nil
		}
		if !child.noQuery {
			parts = append(parts, child)
		}
	}
	switch len(parts) {
	case 0:
		return &fragment{noQuery: true}, nil
	case 1:
		return parts[0], nil
	}
	return r.materialize(ctx, parts...)
}

// materialize computes the union of the id sets of parts into a new temp table
func (r *Resolver) materialize(ctx context.Context, parts ...*fragment) (*fragment, error) {
	name := TempTablePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := r.run(ctx, Statement{SQL: r.dialect.CreateTempTable(name)}); err != nil {
		return nil, err
	}
	r.temps = append(r.temps, name)

	for _, p := range parts {
		sel, args := p.selectIDs()
		if err := r.run(ctx, Statement{SQL: r.dialect.InsertIgnoreSelect(name, sel), Args: args}); err != nil {
			return nil, err
		}
	}
	alias := fmt.Sprintf("m%d", r.n)
	r.n++
	return &fragment{table: name, alias: alias, field: alias + ".id"}, nil
}

func (r *Resolver) run(ctx context.Context, st Statement) error {
	r.statements = append(r.statements, st)
	if _, err := r.exec.ExecContext(ctx, st.SQL, st.Args...); err != nil {
		return errors.Wrapf(err, "materialize %s", st.SQL)
	}
	return nil
}

// Cleanup drops every temp table created by the resolver
func (r *Resolver) Cleanup(ctx context.Context) error {
	var first error
	for _, name := range r.temps {
		if _, err := r.exec.ExecContext(ctx, r.dialect.DropTempTable(name)); err != nil && first == nil {
			first = errors.Wrapf(err, "drop %s", name)
		}
	}
	r.temps = nil
	return first
}
