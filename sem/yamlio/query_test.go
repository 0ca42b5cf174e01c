package yamlio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/types"
)

func TestParseQuery(t *testing.T) {
	p := NewParser(kindMap{"population": types.KindNumber})
	q, err := p.ParseQuery([]byte(`
where:
  and:
    - property: population
      value: ">>1000000"
    - category: City
sort:
  - property: population
    descending: true
limit: 10
offset: 5
`))
	require.NoError(t, err)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 5, q.Offset)
	assert.Equal(t, []ask.SortKey{{Property: "population", Descending: true}}, q.Sort)
	assert.Equal(t, ask.Conjunction{Parts: []ask.Description{
		ask.SomeProperty{
			Property: types.NewProperty("population"),
			Value:    ask.ValueDescription{Item: types.Number{Value: 1000000}, Comparator: ask.GT},
		},
		ask.ClassDescription{Categories: []types.EntityRef{types.NewPage("City", types.NSCategory)}},
	}}, q.Description)
}

func TestParseConditions(t *testing.T) {
	p := NewParser(kindMap{"name": types.KindBlob})

	tests := []struct {
		name string
		text string
		want ask.Description
	}{
		{"empty", "", ask.Thing{}},
		{"anything", "+", ask.Thing{}},
		{"page", "Paris", ask.ValueDescription{Item: types.WikiPage{Ref: types.NewPage("Paris", types.NSMain)}}},
		{"any value", "property: population", ask.SomeProperty{Property: types.NewProperty("population")}},
		{
			"untagged number", "property: population\nvalue: 516000",
			ask.SomeProperty{Property: types.NewProperty("population"), Value: ask.ValueDescription{Item: types.Number{Value: 516000}}},
		},
		{
			"numeric text", "property: population\nvalue: '<1000'",
			ask.SomeProperty{Property: types.NewProperty("population"), Value: ask.ValueDescription{Item: types.Number{Value: 1000}, Comparator: ask.LEQ}},
		},
		{
			"pattern", "property: name\nvalue: '~Par*'",
			ask.SomeProperty{Property: types.NewProperty("name"), Value: ask.ValueDescription{Item: types.Blob{Text: "Par*"}, Comparator: ask.LIKE}},
		},
		{
			"value list", "property: name\nvalue: [Paris, Lyon]",
			ask.Disjunction{Parts: []ask.Description{
				ask.SomeProperty{Property: types.NewProperty("name"), Value: ask.ValueDescription{Item: types.Blob{Text: "Paris"}}},
				ask.SomeProperty{Property: types.NewProperty("name"), Value: ask.ValueDescription{Item: types.Blob{Text: "Lyon"}}},
			}},
		},
		{
			"inverse", "property: -capital_of\nvalue: Paris",
			ask.SomeProperty{
				Property: types.Property{Key: "capital_of", Inverse: true},
				Value:    ask.ValueDescription{Item: types.WikiPage{Ref: types.NewPage("Paris", types.NSMain)}},
			},
		},
		{
			"chain", "property: capital_of\nwhere:\n  property: continent\n  value: Europe",
			ask.SomeProperty{Property: types.NewProperty("capital_of"), Value: ask.SomeProperty{
				Property: types.NewProperty("continent"),
				Value:    ask.ValueDescription{Item: types.WikiPage{Ref: types.NewPage("Europe", types.NSMain)}},
			}},
		},
		{
			"or", "or:\n  - category: [City, Town]\n  - namespace: Category",
			ask.Disjunction{Parts: []ask.Description{
				ask.ClassDescription{Categories: []types.EntityRef{
					types.NewPage("City", types.NSCategory), types.NewPage("Town", types.NSCategory),
				}},
				ask.NamespaceDescription{Namespace: types.NSCategory},
			}},
		},
		{
			"keys form a conjunction", "category: City\nconcept: Big cities",
			ask.Conjunction{Parts: []ask.Description{
				ask.ClassDescription{Categories: []types.EntityRef{types.NewPage("City", types.NSCategory)}},
				ask.ConceptRef{Concept: types.NewPage("Big_cities", types.NSConcept)},
			}},
		},
		{"namespace number", "namespace: 102", ask.NamespaceDescription{Namespace: types.NSProperty}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseDescription(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnparsableValuesAreKept(t *testing.T) {
	p := NewParser(kindMap{"founded": types.KindTime})
	d, err := p.ParseDescription("property: founded\nvalue: '>yesterday'")
	require.NoError(t, err)

	sp, ok := d.(ask.SomeProperty)
	require.True(t, ok)
	vd, ok := sp.Value.(ask.ValueDescription)
	require.True(t, ok)
	assert.Equal(t, types.KindError, vd.Item.Kind())
	assert.Equal(t, ask.GEQ, vd.Comparator)
}

func TestParseDescriptionErrors(t *testing.T) {
	p := NewParser(nil)
	for _, text := range []string{
		"population: 5",
		"value: 5",
		"property: population\nvalue: 1\nwhere: +",
		"and: Paris",
		"namespace: Nowhere",
		"property: [a, b]",
		"category: {a: b}",
		"[unclosed",
	} {
		_, err := p.ParseDescription(text)
		require.Error(t, err, text)
		assert.True(t, errors.IsInvalidRequestError(err), text)
	}
}
