package ask_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/storage"
	"github.com/teranos/semstore/sem/storage/testutil"
	"github.com/teranos/semstore/sem/types"
)

var declared = []am.PropertyConfig{
	{Key: "population", Type: "number"},
	{Key: "name", Type: "text"},
}

func prop(key string) types.Property { return types.NewProperty(key) }

func pageValue(title string) types.WikiPage { return types.NewWikiPage(title, types.NSMain) }

func some(key string, value ask.Description) ask.SomeProperty {
	return ask.SomeProperty{Property: prop(key), Value: value}
}

func value(item types.DataItem, cmp ask.Comparator) ask.ValueDescription {
	return ask.ValueDescription{Item: item, Comparator: cmp}
}

type city struct {
	title      string
	population float64
	continent  string
}

var cities = []city{
	{"Paris", 2148000, "Europe"},
	{"Berlin", 3645000, "Europe"},
	{"Lyon", 516000, "Europe"},
	{"Tokyo", 13960000, "Asia"},
}

// seed writes the cities plus a few pages linking them
func seed(t *testing.T, s *storage.Store) {
	t.Helper()
	ctx := context.Background()
	for _, c := range cities {
		data := types.NewSemanticData(testutil.Page(c.title))
		data.AddValue(prop("population"), types.Number{Value: c.population})
		data.AddValue(prop("continent"), pageValue(c.continent))
		data.AddValue(prop("name"), types.Blob{Text: c.title})
		_, err := s.Update(ctx, data)
		require.NoError(t, err)
	}

	france := types.NewSemanticData(testutil.Page("France"))
	france.AddValue(prop("continent"), pageValue("Europe"))
	_, err := s.Update(ctx, france)
	require.NoError(t, err)

	paris := types.NewSemanticData(testutil.Page("Paris"))
	paris.AddValue(prop("population"), types.Number{Value: 2148000})
	paris.AddValue(prop("continent"), pageValue("Europe"))
	paris.AddValue(prop("name"), types.Blob{Text: "Paris"})
	paris.AddValue(prop("capital_of"), pageValue("France"))
	paris.AddValue(prop(types.PropInstance), types.NewWikiPage("City", types.NSCategory))
	_, err = s.Update(ctx, paris)
	require.NoError(t, err)

	berlin := types.NewSemanticData(testutil.Page("Berlin"))
	berlin.AddValue(prop("population"), types.Number{Value: 3645000})
	berlin.AddValue(prop("continent"), pageValue("Europe"))
	berlin.AddValue(prop("name"), types.Blob{Text: "Berlin"})
	berlin.AddValue(prop(types.PropInstance), types.NewWikiPage("Capital", types.NSCategory))
	_, err = s.Update(ctx, berlin)
	require.NoError(t, err)

	capital := types.NewSemanticData(types.NewPage("Capital", types.NSCategory))
	capital.AddValue(prop(types.PropSubcat), types.NewWikiPage("City", types.NSCategory))
	_, err = s.Update(ctx, capital)
	require.NoError(t, err)
}

func titles(res *ask.Result) []string {
	out := make([]string, len(res.Results))
	for i, p := range res.Results {
		out[i] = p.Ref.Title
	}
	return out
}

func run(t *testing.T, s *storage.Store, q ask.Query) *ask.Result {
	t.Helper()
	res, err := s.Ask(context.Background(), q)
	require.NoError(t, err)
	return res
}

func bigEuropeanCities() ask.Description {
	return ask.Conjunction{Parts: []ask.Description{
		some("population", value(types.Number{Value: 1000000}, ask.GT)),
		some("continent", value(pageValue("Europe"), ask.EQ)),
	}}
}

func TestParisQuery(t *testing.T) {
	s := testutil.SetupStore(t)
	seed(t, s)

	res := run(t, s, ask.Query{Description: bigEuropeanCities()})
	assert.Empty(t, res.Errors)
	assert.Contains(t, titles(res), "Paris")
	assert.Equal(t, []string{"Berlin", "Paris"}, titles(res))
	assert.False(t, res.HasMore)

	count := run(t, s, ask.Query{Description: bigEuropeanCities(), Mode: ask.ModeCount})
	assert.GreaterOrEqual(t, count.Count, 1)
	assert.Equal(t, 2, count.Count)
}

func TestCountMatchesUnboundedInstances(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)

	descriptions := map[string]ask.Description{
		"thing":       ask.Thing{},
		"namespace":   ask.NamespaceDescription{Namespace: types.NSMain},
		"conjunction": bigEuropeanCities(),
		"disjunction": ask.Disjunction{Parts: []ask.Description{
			some("continent", value(pageValue("Asia"), ask.EQ)),
			some("population", value(types.Number{Value: 600000}, ask.LT)),
		}},
		"any value": some("continent", nil),
		"class":     ask.ClassDescription{Categories: []types.EntityRef{types.NewPage("City", types.NSCategory)}},
	}
	for name, d := range descriptions {
		t.Run(name, func(t *testing.T) {
			count := run(t, s, ask.Query{Description: d, Mode: ask.ModeCount})
			all := run(t, s, ask.Query{Description: d, Limit: -1})
			assert.Equal(t, count.Count, len(all.Results))
			assert.False(t, all.HasMore)
		})
	}
}

func TestInlineAndMaterializedAgree(t *testing.T) {
	nested := ask.Conjunction{Parts: []ask.Description{
		ask.Conjunction{Parts: []ask.Description{
			some("population", value(types.Number{Value: 500000}, ask.GT)),
			some("continent", value(pageValue("Europe"), ask.EQ)),
		}},
		some("name", nil),
	}}

	inline := testutil.SetupStore(t, declared...)
	seed(t, inline)

	cfg := testutil.Config(declared...)
	cfg.Query.MaterializeThreshold = 1
	materialized := testutil.SetupStoreWith(t, cfg, storage.Options{})
	seed(t, materialized)

	a := run(t, inline, ask.Query{Description: nested, Limit: -1})
	b := run(t, materialized, ask.Query{Description: nested, Limit: -1})
	assert.Equal(t, []string{"Berlin", "Lyon", "Paris"}, titles(a))
	assert.Equal(t, titles(a), titles(b))

	plainPlan := run(t, inline, ask.Query{Description: nested, Mode: ask.ModeDebug})
	assert.Empty(t, plainPlan.Debug.TempTables)
	tempPlan := run(t, materialized, ask.Query{Description: nested, Mode: ask.ModeDebug})
	require.NotEmpty(t, tempPlan.Debug.TempTables)
	assert.Contains(t, tempPlan.Debug.TempTables[0].SQL, ask.TempTablePrefix)
	assert.Contains(t, tempPlan.Debug.SQL, ask.TempTablePrefix)
}

func TestWideRootConjunctionIsMaterialized(t *testing.T) {
	inline := testutil.SetupStore(t, declared...)
	seed(t, inline)

	cfg := testutil.Config(declared...)
	cfg.Query.MaterializeThreshold = 1
	materialized := testutil.SetupStoreWith(t, cfg, storage.Options{})
	seed(t, materialized)

	plan := run(t, materialized, ask.Query{Description: bigEuropeanCities(), Mode: ask.ModeDebug})
	require.Len(t, plan.Debug.TempTables, 2, "one table and one insert for the flat root")
	assert.Contains(t, plan.Debug.SQL, ask.TempTablePrefix)
	assert.NotContains(t, plan.Debug.SQL, "sem_di_number")

	a := run(t, inline, ask.Query{Description: bigEuropeanCities(), Limit: -1})
	b := run(t, materialized, ask.Query{Description: bigEuropeanCities(), Limit: -1})
	assert.Equal(t, []string{"Berlin", "Paris"}, titles(b))
	assert.Equal(t, titles(a), titles(b))

	sorted := ask.Query{
		Description: bigEuropeanCities(),
		Sort:        []ask.SortKey{{Property: "population"}},
	}
	res := run(t, materialized, sorted)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Paris", "Berlin"}, titles(res), "sort columns survive materialization")

	count := run(t, materialized, ask.Query{Description: bigEuropeanCities(), Mode: ask.ModeCount})
	assert.Equal(t, 2, count.Count)
}

func TestTempTablesAreDropped(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)

	res := run(t, s, ask.Query{Description: ask.Disjunction{Parts: []ask.Description{
		some("continent", value(pageValue("Asia"), ask.EQ)),
		some("population", value(types.Number{Value: 600000}, ask.LT)),
	}}})
	assert.Equal(t, []string{"Lyon", "Tokyo"}, titles(res))

	var n int
	require.NoError(t, s.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_temp_master WHERE name LIKE 'sem_tmp_%'").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestLimitsAndPaging(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)
	europe := some("continent", value(pageValue("Europe"), ask.EQ))

	first := run(t, s, ask.Query{Description: europe, Limit: 2})
	assert.Equal(t, []string{"Berlin", "France"}, titles(first))
	assert.True(t, first.HasMore)

	second := run(t, s, ask.Query{Description: europe, Limit: 2, Offset: 2})
	assert.Equal(t, []string{"Lyon", "Paris"}, titles(second))
	assert.False(t, second.HasMore)

	rest := run(t, s, ask.Query{Description: europe, Limit: -1, Offset: 3})
	assert.Equal(t, []string{"Paris"}, titles(rest))
}

func TestSorting(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)
	everyCity := some("population", nil)

	res := run(t, s, ask.Query{
		Description: everyCity,
		Sort:        []ask.SortKey{{Property: "population", Descending: true}},
	})
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Tokyo", "Berlin", "Paris", "Lyon"}, titles(res))

	res = run(t, s, ask.Query{
		Description: everyCity,
		Sort:        []ask.SortKey{{Descending: true}},
	})
	assert.Equal(t, []string{"Tokyo", "Paris", "Lyon", "Berlin"}, titles(res))

	res = run(t, s, ask.Query{
		Description: everyCity,
		Sort:        []ask.SortKey{{Property: "continent"}},
	})
	require.Len(t, res.Errors, 1, "undeclared sort keys are reported")
	assert.True(t, errors.IsUnsupportedCondition(res.Errors[0]))
	assert.Equal(t, []string{"Berlin", "Lyon", "Paris", "Tokyo"}, titles(res), "falls back to sortkey order")

	random := run(t, s, ask.Query{Description: everyCity, Random: true, Limit: -1})
	assert.ElementsMatch(t, []string{"Berlin", "Lyon", "Paris", "Tokyo"}, titles(random))
}

func TestValueComparators(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)

	tests := []struct {
		name string
		desc ask.Description
		want []string
	}{
		{"less or equal", some("population", value(types.Number{Value: 2148000}, ask.LEQ)), []string{"Lyon", "Paris"}},
		{"greater or equal", some("population", value(types.Number{Value: 3645000}, ask.GEQ)), []string{"Berlin", "Tokyo"}},
		{"not equal page", some("continent", value(pageValue("Europe"), ask.NEQ)), []string{"Tokyo"}},
		{"not equal number", some("population", value(types.Number{Value: 516000}, ask.NEQ)), []string{"Berlin", "Paris", "Tokyo"}},
		{"like", some("name", value(types.Blob{Text: "Par*"}, ask.LIKE)), []string{"Paris"}},
		{"single character wildcard", some("name", value(types.Blob{Text: "L?on"}, ask.LIKE)), []string{"Lyon"}},
		{"not like", some("name", value(types.Blob{Text: "*o*"}, ask.NLIKE)), []string{"Berlin", "Paris"}},
		{"page sortkey", some("continent", value(pageValue("B"), ask.LT)), []string{"Tokyo"}},
		{"unknown page", some("continent", value(pageValue("Atlantis"), ask.EQ)), nil},
		{"unused property", some("mayor", nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, s, ask.Query{Description: tt.desc, Limit: -1})
			assert.Empty(t, res.Errors)
			if tt.want == nil {
				assert.Empty(t, res.Results)
				return
			}
			assert.Equal(t, tt.want, titles(res))
		})
	}
}

func TestLikeEscapesLiteralWildcards(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	ctx := context.Background()
	for title, name := range map[string]string{"A": "100%_pure", "B": "100 percent pure"} {
		data := types.NewSemanticData(testutil.Page(title))
		data.AddValue(prop("name"), types.Blob{Text: name})
		_, err := s.Update(ctx, data)
		require.NoError(t, err)
	}
	res := run(t, s, ask.Query{Description: some("name", value(types.Blob{Text: "100%_*"}, ask.LIKE))})
	assert.Equal(t, []string{"A"}, titles(res))
}

func TestUnsupportedConditionsDegrade(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)

	res := run(t, s, ask.Query{Description: ask.Conjunction{Parts: []ask.Description{
		some("continent", value(pageValue("Europe"), ask.EQ)),
		some("population", value(types.Error{Messages: []string{"not a number"}}, ask.EQ)),
	}}, Limit: -1})
	require.NotEmpty(t, res.Errors)
	assert.True(t, errors.IsUnsupportedCondition(res.Errors[0]))
	assert.Equal(t, []string{"Berlin", "Lyon", "Paris"}, titles(res), "the broken value matches any population")

	res = run(t, s, ask.Query{Description: some("name", value(types.Blob{Text: "Paris"}, ask.GT))})
	assert.Empty(t, res.Errors, "text values are ordered by their index column")

	data := types.NewSemanticData(testutil.Page("Berlin"))
	data.AddValue(prop("is_capital"), types.Boolean{Value: true})
	_, err := s.Update(context.Background(), data)
	require.NoError(t, err)

	res = run(t, s, ask.Query{Description: some("is_capital", value(types.Boolean{Value: true}, ask.LT))})
	require.Len(t, res.Errors, 1, "booleans cannot be ordered")
	assert.True(t, errors.IsUnsupportedCondition(res.Errors[0]))
	assert.Equal(t, []string{"Berlin"}, titles(res))
}

func TestDepthLimit(t *testing.T) {
	cfg := testutil.Config(declared...)
	cfg.Query.MaxDepth = 2
	s := testutil.SetupStoreWith(t, cfg, storage.Options{})
	seed(t, s)

	var d ask.Description = some("continent", value(pageValue("Europe"), ask.EQ))
	for i := 0; i < 4; i++ {
		d = some("capital_of", d)
	}
	res := run(t, s, ask.Query{Description: d})
	require.NotEmpty(t, res.Errors)
	assert.True(t, errors.IsUnsupportedCondition(res.Errors[0]))
}

func TestPropertyChainsAndInverse(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)

	chain := some("capital_of", some("continent", value(pageValue("Europe"), ask.EQ)))
	res := run(t, s, ask.Query{Description: chain})
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Paris"}, titles(res))

	inverse := ask.SomeProperty{
		Property: types.Property{Key: "capital_of", Inverse: true},
		Value:    value(pageValue("Paris"), ask.EQ),
	}
	res = run(t, s, ask.Query{Description: inverse})
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"France"}, titles(res))
}

func TestClassDescription(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)

	res := run(t, s, ask.Query{Description: ask.ClassDescription{
		Categories: []types.EntityRef{types.NewPage("City", types.NSCategory)},
	}})
	assert.Equal(t, []string{"Berlin", "Paris"}, titles(res), "members of subcategories are included")

	res = run(t, s, ask.Query{Description: ask.ClassDescription{
		Categories: []types.EntityRef{types.NewPage("Capital", types.NSCategory)},
	}})
	assert.Equal(t, []string{"Berlin"}, titles(res))

	res = run(t, s, ask.Query{Description: ask.ClassDescription{
		Categories: []types.EntityRef{types.NewPage("Village", types.NSCategory)},
	}})
	assert.Empty(t, res.Results)
}

func TestRedirectedValues(t *testing.T) {
	s := testutil.SetupStore(t)
	ctx := context.Background()

	film := types.NewSemanticData(testutil.Page("Bombay_Talkies"))
	film.AddValue(prop("located_in"), pageValue("Mumbai"))
	_, err := s.Update(ctx, film)
	require.NoError(t, err)

	redirect := types.NewSemanticData(testutil.Page("Bombay"))
	redirect.AddValue(prop(types.PropRedirect), pageValue("Mumbai"))
	_, err = s.Update(ctx, redirect)
	require.NoError(t, err)

	res := run(t, s, ask.Query{Description: some("located_in", value(pageValue("Bombay"), ask.EQ))})
	assert.Equal(t, []string{"Bombay_Talkies"}, titles(res))

	all := run(t, s, ask.Query{Description: ask.NamespaceDescription{Namespace: types.NSMain}, Limit: -1})
	assert.NotContains(t, titles(all), "Bombay", "redirect sources are not results")
}

func TestDebugMode(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	seed(t, s)

	res := run(t, s, ask.Query{Description: bigEuropeanCities(), Mode: ask.ModeDebug})
	require.NotNil(t, res.Debug)
	assert.Empty(t, res.Results)
	assert.Contains(t, res.Debug.SQL, "sem_di_number")
	assert.Contains(t, res.Debug.SQL, "sem_di_page")
	assert.True(t, strings.HasPrefix(res.Debug.SQL, "SELECT DISTINCT"))
	assert.NotEmpty(t, res.Debug.Args)
	assert.Len(t, res.Debug.Segments, 3)
}

type parserFunc func(string) (ask.Description, error)

func (f parserFunc) ParseDescription(text string) (ask.Description, error) { return f(text) }

func TestConcepts(t *testing.T) {
	clock := &testutil.Clock{T: time.Unix(1_800_000_000, 0)}
	parser := parserFunc(func(text string) (ask.Description, error) {
		switch text {
		case "big":
			return some("population", value(types.Number{Value: 1000000}, ask.GT)), nil
		case "self":
			return ask.ConceptRef{Concept: types.NewPage("Loop", types.NSConcept)}, nil
		}
		return nil, errors.Newf("cannot parse %q", text)
	})
	s := testutil.SetupStoreWith(t, testutil.Config(declared...), storage.Options{Parser: parser, Now: clock.Now})
	seed(t, s)
	ctx := context.Background()

	for title, text := range map[string]string{"Big_cities": "big", "Loop": "self"} {
		data := types.NewSemanticData(types.NewPage(title, types.NSConcept))
		data.AddValue(prop(types.PropConcept), types.Concept{Text: text})
		_, err := s.Update(ctx, data)
		require.NoError(t, err)
	}
	big := ask.ConceptRef{Concept: types.NewPage("Big_cities", types.NSConcept)}

	res := run(t, s, ask.Query{Description: big})
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Berlin", "Paris", "Tokyo"}, titles(res))

	n, err := s.RefreshConceptCache(ctx, big.Concept)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	plan := run(t, s, ask.Query{Description: big, Mode: ask.ModeDebug})
	assert.Contains(t, plan.Debug.SQL, "sem_concept_cache", "fresh caches are used")
	res = run(t, s, ask.Query{Description: big})
	assert.Equal(t, []string{"Berlin", "Paris", "Tokyo"}, titles(res))

	clock.T = clock.T.Add(48 * time.Hour)
	plan = run(t, s, ask.Query{Description: big, Mode: ask.ModeDebug})
	assert.NotContains(t, plan.Debug.SQL, "sem_concept_cache", "stale caches are ignored")

	require.NoError(t, s.DeleteConceptCache(ctx, big.Concept))
	var cached int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM sem_concept_cache").Scan(&cached))
	assert.Equal(t, 0, cached)

	loop := run(t, s, ask.Query{Description: ask.ConceptRef{Concept: types.NewPage("Loop", types.NSConcept)}})
	require.NotEmpty(t, loop.Errors, "self reference is cut")
	assert.Empty(t, loop.Results)

	unknown := run(t, s, ask.Query{Description: ask.ConceptRef{Concept: types.NewPage("Nowhere", types.NSConcept)}})
	require.Len(t, unknown.Errors, 1)
	assert.True(t, errors.IsUnsupportedCondition(unknown.Errors[0]))
	assert.Empty(t, unknown.Results)
}

func TestConceptWithoutParser(t *testing.T) {
	s := testutil.SetupStore(t, declared...)
	ctx := context.Background()
	data := types.NewSemanticData(types.NewPage("Big_cities", types.NSConcept))
	data.AddValue(prop(types.PropConcept), types.Concept{Text: "big"})
	_, err := s.Update(ctx, data)
	require.NoError(t, err)

	res := run(t, s, ask.Query{Description: ask.ConceptRef{Concept: types.NewPage("Big_cities", types.NSConcept)}})
	require.Len(t, res.Errors, 1)
	assert.Empty(t, res.Results)

	_, err = s.RefreshConceptCache(ctx, types.NewPage("Big_cities", types.NSConcept))
	assert.True(t, errors.IsInvalidRequestError(err))
}
