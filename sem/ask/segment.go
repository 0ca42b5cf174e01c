package ask

import (
	"fmt"
	"sort"
	"strings"
)

// SegmentType classifies a compiled node
type SegmentType int

const (
	// SegTable joins a property table (or a materialized id table)
	SegTable SegmentType = iota
	// SegValue filters sem_ids directly
	SegValue
	SegDisjunction
	SegConjunction
	// SegNoQuery matches nothing
	SegNoQuery
	// SegMatchAll matches everything
	SegMatchAll
)

var segmentTypeNames = map[SegmentType]string{
	SegTable:       "table",
	SegValue:       "value",
	SegDisjunction: "disjunction",
	SegConjunction: "conjunction",
	SegNoQuery:     "no-query",
	SegMatchAll:    "match-all",
}

func (t SegmentType) String() string { return segmentTypeNames[t] }

// Segment is one compiled node. Table and value segments carry SQL
// fragments over Alias; compound segments list their children.
type Segment struct {
	ID   int
	Type SegmentType

	JoinTable string
	Alias     string
	// JoinField is the column of JoinTable holding the matched ids
	JoinField string

	// From holds extra joins over Alias, with FromArgs
	From     string
	FromArgs []interface{}

	Where string
	Args  []interface{}

	// Components maps child segment ids to the column of this segment they
	// join on. Compound segments use "" (their own join field).
	Components map[int]string

	// SortFields maps sort keys to the column exposing them
	SortFields map[string]string
}

func newSegment(id int, t SegmentType) *Segment {
	return &Segment{
		ID:         id,
		Type:       t,
		Alias:      fmt.Sprintf("t%d", id),
		Components: make(map[int]string),
		SortFields: make(map[string]string),
	}
}

// children returns component ids in ascending order
func (s *Segment) children() []int {
	ids := make([]int, 0, len(s.Components))
	for id := range s.Components {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Segment) addWhere(cond string, args ...interface{}) {
	if cond == "" {
		return
	}
	if s.Where == "" {
		s.Where = cond
	} else {
		s.Where = s.Where + " AND " + cond
	}
	s.Args = append(s.Args, args...)
}

// String renders the segment for debug output
func (s *Segment) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s", s.ID, s.Type)
	if s.JoinTable != "" {
		fmt.Fprintf(&b, " %s %s.%s", s.JoinTable, s.Alias, s.JoinField)
	}
	if s.Where != "" {
		fmt.Fprintf(&b, " WHERE %s", s.Where)
	}
	if len(s.Components) > 0 {
		parts := make([]string, 0, len(s.Components))
		for _, id := range s.children() {
			if col := s.Components[id]; col != "" {
				parts = append(parts, fmt.Sprintf("%d@%s", id, col))
			} else {
				parts = append(parts, fmt.Sprintf("%d", id))
			}
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, " "))
	}
	return b.String()
}
