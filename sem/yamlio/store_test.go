package yamlio_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/storage/testutil"
	"github.com/teranos/semstore/sem/yamlio"
)

const cities = `
subject: Paris
facts:
  population: 2161000
  continent: Europe
  _INST: City
---
subject: Lyon
facts:
  population: 516000
  continent: Europe
  _INST: City
---
subject: Tokyo
facts:
  population: 13960000
  continent: Asia
---
subject: Concept:Big cities
facts:
  _CONC: |
    property: population
    value: ">>1000000"
`

func load(t *testing.T) *storage.Store {
	t.Helper()
	s := testutil.SetupStore(t, am.PropertyConfig{Key: "population", Type: "number"})
	s.SetParser(yamlio.NewParser(s.Catalog()))

	docs, err := yamlio.NewLoader(s.Catalog()).DecodeBytes([]byte(cities))
	require.NoError(t, err)
	for _, d := range docs {
		res, err := s.Update(context.Background(), d)
		require.NoError(t, err)
		require.Empty(t, res.Warnings, d.Subject().String())
	}
	return s
}

func query(t *testing.T, s *storage.Store, doc string) []string {
	t.Helper()
	q, err := yamlio.NewParser(s.Catalog()).ParseQuery([]byte(doc))
	require.NoError(t, err)
	res, err := s.Ask(context.Background(), q)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	var out []string
	for _, p := range res.Results {
		out = append(out, p.Ref.Title)
	}
	return out
}

func TestQueryDocumentsAgainstStore(t *testing.T) {
	s := load(t)

	assert.Equal(t, []string{"Paris"}, query(t, s, `
where:
  - property: population
    value: ">>1000000"
  - property: continent
    value: Europe
`))
	assert.Equal(t, []string{"Lyon", "Paris"}, query(t, s, "where:\n  category: City\n"))
	assert.Equal(t, []string{"Tokyo", "Paris", "Lyon"}, query(t, s, `
where:
  property: population
sort:
  - property: population
    descending: true
`))
}

func TestConceptDocuments(t *testing.T) {
	s := load(t)
	assert.Equal(t, []string{"Paris", "Tokyo"}, query(t, s, "where:\n  concept: Big cities\n"))
}

func TestReadBackAsDocument(t *testing.T) {
	s := load(t)
	ctx := context.Background()

	stub, err := s.Read(ctx, testutil.Page("Paris"), storage.ReadOptions{})
	require.NoError(t, err)
	out, err := yamlio.MarshalFacts(stub.SemanticData())
	require.NoError(t, err)

	docs, err := yamlio.NewLoader(s.Catalog()).DecodeBytes(out)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	res, err := s.Update(ctx, docs[0])
	require.NoError(t, err)
	assert.Equal(t, 0, res.Mutations(), "rewriting the rendered document changes nothing:\n%s", out)
}

var _ ask.DescriptionParser = yamlio.NewParser(nil)
