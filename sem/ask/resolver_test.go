package ask

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/semstore/db"
)

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Par*", "Par%"},
		{"L?on", "L_on"},
		{"100%", "100\\%"},
		{"a_b*", "a\\_b%"},
		{"back\\slash", "back\\\\slash"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likePattern(tt.in), tt.in)
	}
}

// buildSegments registers hand-made segments with a compiler
func buildSegments(segs ...*Segment) *Compiler {
	c := &Compiler{segments: make(map[int]*Segment)}
	for _, s := range segs {
		c.segments[s.ID] = s
		if s.ID >= c.nextID {
			c.nextID = s.ID + 1
		}
	}
	return c
}

func table(id int, name, where string, args ...interface{}) *Segment {
	s := newSegment(id, SegTable)
	s.JoinTable, s.JoinField = name, "s_id"
	s.addWhere(strings.ReplaceAll(where, "$", s.Alias), args...)
	return s
}

func TestResolveConjunction(t *testing.T) {
	build := func() *Compiler {
		root := newSegment(0, SegConjunction)
		root.Components[1] = ""
		root.Components[2] = ""
		return buildSegments(root,
			table(1, "sem_di_number", "$.p_id = ?", 7),
			table(2, "sem_di_page", "$.o_id = ?", 9))
	}

	r := newResolver(build(), db.SQLite, recorder{}, 2)
	f, err := r.Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, r.TempTables(), "within the threshold the conjunction stays inline")
	assert.Equal(t, "t1.s_id", f.field)
	assert.Equal(t, []string{"JOIN sem_di_page t2 ON t2.s_id = t1.s_id"}, f.joins)
	assert.Equal(t, []interface{}{7, 9}, f.args)

	r = newResolver(build(), db.SQLite, recorder{}, 1)
	f, err = r.Resolve(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, r.TempTables(), 1, "a root conjunction wider than the threshold is materialized")
	assert.Equal(t, r.TempTables()[0], f.table)
	assert.Equal(t, "m0.id", f.field)
	assert.Empty(t, f.joins)

	stmts := r.Statements()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1].SQL, "JOIN sem_di_page t2 ON t2.s_id = t1.s_id")
	assert.Equal(t, []interface{}{7, 9}, stmts[1].Args)
}

func TestResolveKeepsPinnedSegmentsInline(t *testing.T) {
	root := newSegment(0, SegConjunction)
	root.Components[1] = ""
	root.Components[2] = ""
	root.Components[3] = ""
	byPop := table(3, "sem_di_number", "$.p_id = ?", 5)
	byPop.SortFields["Population"] = byPop.Alias + ".o_sortkey"
	c := buildSegments(root,
		table(1, "sem_di_text", "$.o_hash = ?", "a"),
		table(2, "sem_di_page", "$.o_id = ?", 9),
		byPop)

	r := newResolver(c, db.SQLite, recorder{}, 1)
	f, err := r.Resolve(context.Background(), 0, 3)
	require.NoError(t, err)
	require.Len(t, r.TempTables(), 1)
	assert.Equal(t, r.TempTables()[0], f.table)
	assert.Equal(t, []string{"JOIN sem_di_number t3 ON t3.s_id = m0.id"}, f.joins,
		"the sort table is joined to the materialized set")
	assert.Equal(t, []interface{}{5}, f.args)
	assert.Equal(t, []interface{}{"a", 9}, r.Statements()[1].Args)
}

func TestResolveMaterializes(t *testing.T) {
	or := newSegment(0, SegDisjunction)
	or.Components[1] = ""
	or.Components[2] = ""
	and := newSegment(3, SegConjunction)
	and.Components[4] = ""
	and.Components[5] = ""
	or.Components[3] = ""
	c := buildSegments(or, and,
		table(1, "sem_di_text", "$.o_hash = ?", "a"),
		table(2, "sem_di_text", "$.o_hash = ?", "b"),
		table(4, "sem_di_number", "$.o_sortkey > ?", 1.0),
		table(5, "sem_di_number", "$.o_sortkey < ?", 9.0))

	r := newResolver(c, db.SQLite, recorder{}, 1)
	f, err := r.Resolve(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, r.TempTables(), 2, "the wide conjunction and the disjunction")
	assert.Equal(t, r.TempTables()[1], f.table)
	assert.Equal(t, "m1.id", f.field)

	stmts := r.Statements()
	require.Len(t, stmts, 6)
	assert.True(t, strings.HasPrefix(stmts[0].SQL, "CREATE TEMPORARY TABLE "+TempTablePrefix))
	assert.Contains(t, stmts[1].SQL, "INSERT OR IGNORE INTO")
	assert.Equal(t, []interface{}{1.0, 9.0}, stmts[1].Args)

	require.NoError(t, r.Cleanup(context.Background()))
	assert.Empty(t, r.TempTables())
}

func TestResolvePropagatesEmptySets(t *testing.T) {
	or := newSegment(0, SegDisjunction)
	or.Components[1] = ""
	or.Components[2] = ""
	c := buildSegments(or, newSegment(1, SegNoQuery), table(2, "sem_di_page", "$.o_id = ?", 3))

	r := newResolver(c, db.SQLite, recorder{}, 4)
	f, err := r.Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "sem_di_page", f.table, "a single remaining branch is inlined")

	and := newSegment(0, SegConjunction)
	and.Components[1] = ""
	and.Components[2] = ""
	c = buildSegments(and, newSegment(1, SegNoQuery), newSegment(2, SegMatchAll))
	f, err = newResolver(c, db.SQLite, recorder{}, 4).Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, f.noQuery)

	or = newSegment(0, SegDisjunction)
	or.Components[1] = ""
	or.Components[2] = ""
	c = buildSegments(or, newSegment(1, SegMatchAll), table(2, "sem_di_page", "$.o_id = ?", 3))
	f, err = newResolver(c, db.SQLite, recorder{}, 4).Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, f.matchAll)
}

func TestSegmentString(t *testing.T) {
	s := table(4, "sem_di_page", "$.o_id = ?", 3)
	s.Components[5] = "o_id"
	assert.Equal(t, "#4 table sem_di_page t4.s_id WHERE t4.o_id = ? [5@o_id]", s.String())
	assert.Equal(t, "match-all", SegMatchAll.String())
}
