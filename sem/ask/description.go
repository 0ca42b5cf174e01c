// Package ask compiles condition trees into SQL over the property tables
// and executes them.
//
// A Description is compiled into a list of segments (one per node). The
// resolver walks the segments leaves-first and turns each one into joins
// over its parent; disjunctions, and conjunctions wider than the
// materialization threshold, are computed into temporary id tables first.
package ask

import (
	"fmt"
	"strings"

	"github.com/teranos/semstore/sem/types"
)

// Description is a node of a condition tree
type Description interface {
	// String renders the condition for debugging
	String() string
}

// Thing matches every entity
type Thing struct{}

func (Thing) String() string { return "+" }

// Conjunction matches entities matching every part
type Conjunction struct {
	Parts []Description
}

func (c Conjunction) String() string { return join(c.Parts, " AND ") }

// Disjunction matches entities matching any part
type Disjunction struct {
	Parts []Description
}

func (d Disjunction) String() string { return join(d.Parts, " OR ") }

func join(parts []Description, sep string) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = p.String()
	}
	return "(" + strings.Join(s, sep) + ")"
}

// SomeProperty matches subjects having a value of Property that matches
// Value. A nil Value means any value. With an inverse property the roles of
// subject and value are swapped. A Value that is not a ValueDescription is
// evaluated against the referenced pages, which gives property chains.
type SomeProperty struct {
	Property types.Property
	Value    Description
}

func (s SomeProperty) String() string {
	v := "+"
	if s.Value != nil {
		v = s.Value.String()
	}
	return fmt.Sprintf("[[%s::%s]]", s.Property.Label(), v)
}

// Comparator of a value condition
type Comparator int

const (
	EQ Comparator = iota
	NEQ
	LT
	GT
	LEQ
	GEQ
	LIKE
	NLIKE
)

var comparatorSymbols = map[Comparator]string{
	EQ: "", NEQ: "!", LT: "<<", GT: ">>", LEQ: "<", GEQ: ">", LIKE: "~", NLIKE: "!~",
}

func (c Comparator) String() string { return comparatorSymbols[c] }

// ParseComparator reads the comparator prefix of a condition value and
// returns the remaining text
func ParseComparator(text string) (Comparator, string) {
	for _, p := range []struct {
		prefix string
		c      Comparator
	}{
		{"!~", NLIKE}, {"<<", LT}, {">>", GT}, {"<", LEQ}, {">", GEQ},
		{"≤", LEQ}, {"≥", GEQ}, {"~", LIKE}, {"!", NEQ},
	} {
		if strings.HasPrefix(text, p.prefix) {
			return p.c, strings.TrimPrefix(text, p.prefix)
		}
	}
	return EQ, text
}

// ValueDescription matches a single value. At the top of a tree (or inside
// a chain) only page values are meaningful.
type ValueDescription struct {
	Item       types.DataItem
	Comparator Comparator
}

func (v ValueDescription) String() string {
	if v.Item == nil {
		return v.Comparator.String()
	}
	return v.Comparator.String() + v.Item.Hash()
}

// ClassDescription matches members of any of the categories, including
// members of their subcategories
type ClassDescription struct {
	Categories []types.EntityRef
}

func (c ClassDescription) String() string {
	names := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		names[i] = cat.String()
	}
	return "[[" + strings.Join(names, "||") + "]]"
}

// NamespaceDescription matches every entity in a namespace
type NamespaceDescription struct {
	Namespace int
}

func (n NamespaceDescription) String() string { return fmt.Sprintf("[[ns:%d]]", n.Namespace) }

// ConceptRef matches the members of a stored concept
type ConceptRef struct {
	Concept types.EntityRef
}

func (c ConceptRef) String() string { return "[[" + c.Concept.String() + "]]" }

// DescriptionParser turns stored concept text into a description
type DescriptionParser interface {
	ParseDescription(text string) (Description, error)
}
