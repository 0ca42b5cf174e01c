package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	semtest "github.com/teranos/semstore/internal/testing"
	"github.com/teranos/semstore/sem/types"
)

func newTestStore(t *testing.T, props ...am.PropertyConfig) *Store {
	t.Helper()
	cfg := am.Default()
	cfg.Store.Properties = props
	s, err := New(semtest.CreateTestDB(t), cfg, Options{Dialect: db.SQLite, Logger: zaptest.NewLogger(t).Sugar()})
	require.NoError(t, err)
	require.NoError(t, s.Setup(context.Background()))
	return s
}

func page(title string) types.EntityRef {
	return types.NewPage(title, types.NSMain)
}

func prop(key string) types.Property {
	return types.NewProperty(key)
}

func TestWriteReadParis(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	paris := page("Paris")

	data := types.NewSemanticData(paris)
	data.AddValue(prop("population"), types.Number{Value: 2148000})

	res, err := s.Update(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Deleted)

	stub, err := s.Read(ctx, paris, ReadOptions{})
	require.NoError(t, err)
	values := stub.Expand(prop("population"))
	require.Len(t, values, 1)
	assert.Equal(t, types.Number{Value: 2148000}, values[0])

	hashes, err := s.ids.GetTableHashes(ctx, res.ID)
	require.NoError(t, err)
	require.NotEmpty(t, hashes["sem_di_number"], "number table hash recorded")

	again, err := s.Update(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Mutations(), "second write changes nothing")
	assert.Equal(t, 0, again.ChangedTables)

	s.ids.ClearCaches()
	after, err := s.ids.GetTableHashes(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, hashes, after, "hash unchanged by the repeated write")
}

func TestWritesLogRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, err := New(semtest.CreateTestDB(t), am.Default(), Options{Dialect: db.SQLite, Logger: zap.New(core).Sugar()})
	require.NoError(t, err)
	require.NoError(t, s.Setup(context.Background()))

	ctx := logger.WithRequestID(context.Background(), "req-7")
	data := types.NewSemanticData(page("Paris"))
	data.AddValue(prop("population"), types.Number{Value: 2148000})
	res, err := s.Update(ctx, data)
	require.NoError(t, err)

	updates := logs.FilterMessage("Updated subject").All()
	require.Len(t, updates, 1)
	fields := updates[0].ContextMap()
	assert.Equal(t, "req-7", fields[logger.FieldRequestID])
	assert.Equal(t, "Paris", fields[logger.FieldSubject])
	assert.Equal(t, res.ID, fields[logger.FieldSubjectID])
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, am.PropertyConfig{Key: "Area", Type: "number", Fixed: true})
	berlin := page("Berlin")

	data := types.NewSemanticData(berlin)
	data.AddValue(prop("population"), types.Number{Value: 3645000})
	data.AddValue(prop("Area"), types.Number{Value: 891.8})
	data.AddValue(prop("name"), types.Blob{Text: "Berlin"})
	data.AddValue(prop("motto"), types.Blob{Text: "Berlin ist arm, aber sexy, and this motto is long enough to overflow the hash column"})
	data.AddValue(prop("capital"), types.Boolean{Value: true})
	data.AddValue(prop("website"), types.URI{Value: "https://berlin.de"})
	data.AddValue(prop("location"), types.GeoCoord{Lat: 52.52, Lon: 13.405})
	data.AddValue(prop("founded"), types.Time{Calendar: types.Gregorian, Year: 1237})
	data.AddValue(prop("country"), types.NewWikiPage("Germany", types.NSMain))
	data.AddValue(prop("related"), types.PropertyItem{Property: prop("population")})
	data.AddValue(prop("country"), types.NewWikiPage("Prussia", types.NSMain))

	_, err := s.Update(ctx, data)
	require.NoError(t, err)

	s.ClearCaches()
	stub, err := s.Read(ctx, berlin, ReadOptions{})
	require.NoError(t, err)
	assert.Empty(t, stub.Errors())

	got := stub.SemanticData()
	assert.True(t, data.Equal(got), "read returns what was written")
	assert.ElementsMatch(t,
		[]string{"Area", "capital", "country", "founded", "location", "motto", "name", "population", "related", "website"},
		keys(stub.Properties()))

	filtered, err := s.Read(ctx, berlin, ReadOptions{Kinds: []types.Kind{types.KindNumber}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Area", "population"}, keys(filtered.Properties()))
}

func keys(props []types.Property) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.Key
	}
	return out
}

func TestIdempotentAndDiff(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rome := page("Rome")

	first := types.NewSemanticData(rome)
	first.AddValue(prop("population"), types.Number{Value: 2873000})
	first.AddValue(prop("river"), types.NewWikiPage("Tiber", types.NSMain))
	_, err := s.Update(ctx, first)
	require.NoError(t, err)

	res, err := s.Update(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Mutations())

	second := types.NewSemanticData(rome)
	second.AddValue(prop("population"), types.Number{Value: 2873000})
	second.AddValue(prop("river"), types.NewWikiPage("Aniene", types.NSMain))
	res, err = s.Update(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.ChangedTables, "only the page table changed")
	assert.Equal(t, 1, res.SkippedTables, "number table skipped by hash")

	stub, err := s.Read(ctx, rome, ReadOptions{})
	require.NoError(t, err)
	rivers := stub.Expand(prop("river"))
	require.Len(t, rivers, 1)
	assert.Equal(t, "Aniene", rivers[0].(types.WikiPage).Ref.Title)
}

func TestUsageStatistics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, city := range []string{"Lyon", "Nice"} {
		data := types.NewSemanticData(page(city))
		data.AddValue(prop("country"), types.NewWikiPage("France", types.NSMain))
		_, err := s.Update(ctx, data)
		require.NoError(t, err)
	}
	n, err := s.Usage(ctx, "country")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.Delete(ctx, page("Nice"))
	require.NoError(t, err)
	n, err = s.Usage(ctx, "country")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Tables["sem_di_page"])
	require.NotEmpty(t, stats.Properties)
	assert.Equal(t, "country", stats.Properties[0].Property)
	assert.Equal(t, int64(1), stats.Properties[0].Usage)
}

func TestRedirectScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	bombay, mumbai := page("Bombay"), page("Mumbai")

	own := types.NewSemanticData(bombay)
	own.AddValue(prop("population"), types.Number{Value: 12478447})
	_, err := s.Update(ctx, own)
	require.NoError(t, err)

	film := types.NewSemanticData(page("Bombay_Talkies"))
	film.AddValue(prop("located_in"), types.NewWikiPage("Bombay", types.NSMain))
	_, err = s.Update(ctx, film)
	require.NoError(t, err)

	redirect := types.NewSemanticData(bombay)
	redirect.AddValue(prop(types.PropRedirect), types.NewWikiPage("Mumbai", types.NSMain))
	res, err := s.Update(ctx, redirect)
	require.NoError(t, err)
	assert.True(t, res.Redirect)

	stub, err := s.Read(ctx, bombay, ReadOptions{})
	require.NoError(t, err)
	assert.True(t, stub.IsEmpty(), "a redirect source reads as empty")

	mumbaiID, err := s.ids.GetID(ctx, mumbai, false)
	require.NoError(t, err)
	viaRedirect, err := s.ids.GetID(ctx, bombay, true)
	require.NoError(t, err)
	assert.Equal(t, mumbaiID, viaRedirect)

	s.ClearCaches()
	stub, err = s.Read(ctx, page("Bombay_Talkies"), ReadOptions{})
	require.NoError(t, err)
	located := stub.Expand(prop("located_in"))
	require.Len(t, located, 1)
	assert.Equal(t, "Mumbai", located[0].(types.WikiPage).Ref.Title, "references follow the redirect")

	again, err := s.Update(ctx, redirect)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Mutations(), "repeating a redirect is a no-op")

	revived := types.NewSemanticData(bombay)
	revived.AddValue(prop("note"), types.Blob{Text: "historic name"})
	_, err = s.Update(ctx, revived)
	require.NoError(t, err)
	target, err := s.ids.ResolveRedirect(ctx, bombay)
	require.NoError(t, err)
	assert.Equal(t, int64(0), target, "writing facts removes the redirect")
	stub, err = s.Read(ctx, bombay, ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, stub.Expand(prop("note")), 1)
}

func TestRedirectAfterMoveOntoRetiredTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	bombay, mumbai := page("Bombay"), page("Mumbai")
	redirect := types.NewSemanticData(bombay)
	redirect.AddValue(prop(types.PropRedirect), types.NewWikiPage("Mumbai", types.NSMain))

	own := types.NewSemanticData(bombay)
	own.AddValue(prop("population"), types.Number{Value: 12478447})
	_, err := s.Update(ctx, own)
	require.NoError(t, err)
	_, err = s.Update(ctx, redirect)
	require.NoError(t, err)

	old := types.NewSemanticData(page("Bombay_(old)"))
	old.AddValue(prop("note"), types.Blob{Text: "colonial name"})
	_, err = s.Update(ctx, old)
	require.NoError(t, err)
	moved, err := s.ChangeTitle(ctx, page("Bombay_(old)"), bombay, false)
	require.NoError(t, err)

	res, err := s.Update(ctx, redirect)
	require.NoError(t, err, "the title already has a retired row")
	assert.True(t, res.Redirect)

	mumbaiID, err := s.ids.GetID(ctx, mumbai, false)
	require.NoError(t, err)
	target, err := s.ids.ResolveRedirect(ctx, bombay)
	require.NoError(t, err)
	assert.Equal(t, mumbaiID, target)

	var retired int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM sem_ids WHERE title = 'Bombay' AND interwiki LIKE ':sem-redi%'").Scan(&retired))
	assert.Equal(t, 2, retired, "both former rows of the title are kept")

	revived := types.NewSemanticData(bombay)
	revived.AddValue(prop("note"), types.Blob{Text: "historic name"})
	again, err := s.Update(ctx, revived)
	require.NoError(t, err)
	assert.Equal(t, moved.ID, again.ID, "the most recently retired row is revived")
}

func TestChangeTitleOntoPageWithSameSubobject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	write := func(title string, depth float64) {
		info := types.NewSemanticData(page(title).WithSubobject("info"))
		info.AddValue(prop("depth"), types.Number{Value: depth})
		data := types.NewSemanticData(page(title))
		data.AddValue(prop("details"), types.Container{Data: info})
		_, err := s.Update(ctx, data)
		require.NoError(t, err)
	}
	write("Old", 1)
	write("New", 2)

	index := types.NewSemanticData(page("Index"))
	index.AddValue(prop("see"), types.WikiPage{Ref: page("New").WithSubobject("info")})
	_, err := s.Update(ctx, index)
	require.NoError(t, err)

	_, err = s.ChangeTitle(ctx, page("Old"), page("New"), false)
	require.NoError(t, err)

	s.ClearCaches()
	stub, err := s.Read(ctx, page("New"), ReadOptions{})
	require.NoError(t, err)
	info, ok := stub.Subobject("info")
	require.True(t, ok)
	assert.Equal(t, []types.DataItem{types.Number{Value: 1}}, info.Expand(prop("depth")), "the moved subobject wins")

	stub, err = s.Read(ctx, page("Index"), ReadOptions{})
	require.NoError(t, err)
	see := stub.Expand(prop("see"))
	require.Len(t, see, 1)
	ref := see[0].(types.WikiPage).Ref
	assert.Equal(t, "New", ref.Title)
	assert.Equal(t, "info", ref.Subobject)
}

func TestSubobjects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	paris := page("Paris")

	census := types.NewSemanticData(paris.WithSubobject("census2020"))
	census.AddValue(prop("population"), types.Number{Value: 2145906})
	census.AddValue(prop("year"), types.Number{Value: 2020})
	old := types.NewSemanticData(paris.WithSubobject("census1999"))
	old.AddValue(prop("population"), types.Number{Value: 2125246})

	data := types.NewSemanticData(paris)
	data.AddValue(prop("census"), types.Container{Data: census})
	data.AddValue(prop("census"), types.Container{Data: old})
	_, err := s.Update(ctx, data)
	require.NoError(t, err)

	stub, err := s.Read(ctx, paris, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, stub.Subobjects(), 2)
	sub, ok := stub.Subobject("census2020")
	require.True(t, ok)
	assert.Equal(t, []types.DataItem{types.Number{Value: 2145906}}, sub.Expand(prop("population")))

	containers := stub.Expand(prop("census"))
	require.Len(t, containers, 2)
	for _, c := range containers {
		assert.False(t, c.(types.Container).Data.IsEmpty(), "containers are filled from subobjects")
	}

	trimmed := types.NewSemanticData(paris)
	trimmed.AddValue(prop("census"), types.Container{Data: census})
	_, err = s.Update(ctx, trimmed)
	require.NoError(t, err)

	stub, err = s.Read(ctx, paris, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, stub.Subobjects(), 1, "dropped subobjects are emptied")
	_, ok = stub.Subobject("census1999")
	assert.False(t, ok)
}

func TestSubobjectSortkeySurvivesRewrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	paris := page("Paris")

	census := types.NewSemanticData(paris.WithSubobject("census"))
	census.AddValue(prop("year"), types.Number{Value: 2020})
	census.AddValue(prop(types.PropSortkey), types.Blob{Text: "Zeta"})
	data := types.NewSemanticData(paris)
	data.AddValue(prop("census"), types.Container{Data: census})

	_, err := s.Update(ctx, data)
	require.NoError(t, err)
	again, err := s.Update(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Mutations())

	var sortkey string
	require.NoError(t, s.db.QueryRow(
		"SELECT sortkey FROM sem_ids WHERE title = 'Paris' AND subobject = 'census'").Scan(&sortkey))
	assert.Equal(t, "Zeta", sortkey)
}

func TestMalformedValuesAreDropped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, am.PropertyConfig{Key: "height", Type: "number"})

	data := types.NewSemanticData(page("Eiffel_Tower"))
	data.AddValue(prop("height"), types.Number{Value: 330})
	data.AddValue(prop("height"), types.Blob{Text: "very tall"})
	data.AddValue(prop("architect"), types.Error{Messages: []string{"unparseable"}})

	res, err := s.Update(ctx, data)
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.True(t, errors.IsDataCorruption(w))
	}
	assert.Equal(t, 1, res.Inserted)
}

func TestReadDropsCorruptValues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tower := page("Eiffel_Tower")

	data := types.NewSemanticData(tower)
	data.AddValue(prop("floors"), types.Number{Value: 1})
	data.AddValue(prop("floors"), types.Number{Value: 2})
	_, err := s.Update(ctx, data)
	require.NoError(t, err)

	_, err = s.db.Exec("UPDATE sem_di_number SET o_serialized = 'garbage' WHERE o_sortkey = 2")
	require.NoError(t, err)
	s.ClearCaches()

	stub, err := s.Read(ctx, tower, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []types.DataItem{types.Number{Value: 1}}, stub.Expand(prop("floors")))
	require.Len(t, stub.Errors(), 1)
	assert.True(t, errors.IsDataCorruption(stub.Errors()[0]))
	assert.Contains(t, stub.Errors()[0].Error(), "garbage")
}

func TestConceptKeepsCacheColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	concept := types.NewPage("Big_cities", types.NSConcept)

	write := func(doc string) {
		data := types.NewSemanticData(concept)
		data.AddValue(prop(types.PropConcept), types.Concept{Text: "population: {gt: 1000000}", Doc: doc, Size: 1, Depth: 1})
		_, err := s.Update(ctx, data)
		require.NoError(t, err)
	}
	write("cities")

	id, err := s.ids.GetID(ctx, concept, false)
	require.NoError(t, err)
	_, err = s.db.Exec("UPDATE sem_fpt_conc SET cache_date = 1700000000, cache_count = 3 WHERE s_id = ?", id)
	require.NoError(t, err)

	write("large cities")

	var date, count int64
	require.NoError(t, s.db.QueryRow("SELECT cache_date, cache_count FROM sem_fpt_conc WHERE s_id = ?", id).Scan(&date, &count))
	assert.Equal(t, int64(1700000000), date)
	assert.Equal(t, int64(3), count)

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM sem_fpt_conc WHERE s_id = ?", id).Scan(&rows))
	assert.Equal(t, 1, rows, "a concept keeps a single row")
}

func TestChangeTitle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := types.NewSemanticData(page("Peking"))
	data.AddValue(prop("country"), types.NewWikiPage("China", types.NSMain))
	_, err := s.Update(ctx, data)
	require.NoError(t, err)

	res, err := s.ChangeTitle(ctx, page("Peking"), page("Beijing"), true)
	require.NoError(t, err)

	stub, err := s.Read(ctx, page("Beijing"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, res.ID, stub.ID(), "the id moves with the facts")
	assert.Len(t, stub.Expand(prop("country")), 1)

	old, err := s.Read(ctx, page("Peking"), ReadOptions{})
	require.NoError(t, err)
	assert.True(t, old.IsEmpty())
	target, err := s.ids.ResolveRedirect(ctx, page("Peking"))
	require.NoError(t, err)
	assert.Equal(t, res.ID, target)

	_, err = s.ChangeTitle(ctx, page("Atlantis"), page("Elsewhere"), false)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	troy := page("Troy")

	data := types.NewSemanticData(troy)
	data.AddValue(prop("founded"), types.Time{Calendar: types.Julian, Year: -3000})
	sub := types.NewSemanticData(troy.WithSubobject("layer7"))
	sub.AddValue(prop("depth"), types.Number{Value: 7})
	require.NoError(t, data.AddSubobject(sub))
	_, err := s.Update(ctx, data)
	require.NoError(t, err)

	res, err := s.Delete(ctx, troy)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)

	stub, err := s.Read(ctx, troy, ReadOptions{})
	require.NoError(t, err)
	assert.True(t, stub.IsEmpty())
	assert.Empty(t, stub.Subobjects())
}

func TestStubCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	oslo := page("Oslo")

	data := types.NewSemanticData(oslo)
	data.AddValue(prop("population"), types.Number{Value: 709000})
	_, err := s.Update(ctx, data)
	require.NoError(t, err)

	first, err := s.Read(ctx, oslo, ReadOptions{})
	require.NoError(t, err)
	second, err := s.Read(ctx, oslo, ReadOptions{})
	require.NoError(t, err)
	assert.Same(t, first, second, "unfiltered reads are cached")

	data.RemoveProperty(prop("population"))
	data.AddValue(prop("population"), types.Number{Value: 717000})
	_, err = s.Update(ctx, data)
	require.NoError(t, err)

	third, err := s.Read(ctx, oslo, ReadOptions{})
	require.NoError(t, err)
	assert.NotSame(t, first, third, "writes invalidate the cache")
	assert.Equal(t, []types.DataItem{types.Number{Value: 717000}}, third.Expand(prop("population")))

	c := newStubCache(1)
	c.add(first)
	c.add(newStub(page("Bergen"), 0, ""))
	_, ok := c.get(oslo)
	assert.False(t, ok, "oldest entry evicted")
	assert.Equal(t, 1, c.len())
}

func TestCachesAreOptional(t *testing.T) {
	ctx := context.Background()
	cfg := am.Default()
	cfg.Store.IDCacheSize = 0
	cfg.Store.PropertyIDCacheSize = 0
	cfg.Store.StubCacheSize = 0
	s, err := New(semtest.CreateTestDB(t), cfg, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Setup(ctx))

	data := types.NewSemanticData(page("Bern"))
	data.AddValue(prop("population"), types.Number{Value: 134000})
	_, err = s.Update(ctx, data)
	require.NoError(t, err)

	res, err := s.Update(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Mutations())

	stub, err := s.Read(ctx, page("Bern"), ReadOptions{})
	require.NoError(t, err)
	assert.True(t, data.Equal(stub.SemanticData()))
}

func TestSetupIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Setup(context.Background()))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM sem_ids WHERE interwiki = ':sem-border'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s, err := New(conn, am.Default(), Options{Dialect: db.SQLite})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sem_fpt_redi").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	data := types.NewSemanticData(page("Paris"))
	data.AddValue(prop("population"), types.Number{Value: 2148000})
	_, err = s.Update(context.Background(), data)
	require.Error(t, err)
	assert.True(t, errors.IsTransactionFailure(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRequiresSubject(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update(context.Background(), types.NewSemanticData(types.EntityRef{}))
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestSubjectsAndRefresh(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, title := range []string{"Paris", "Berlin"} {
		data := types.NewSemanticData(page(title))
		data.AddValue(prop("population"), types.Number{Value: 1000})
		data.AddValue(prop("country"), types.WikiPage{Ref: page("Somewhere")})
		_, err := s.Update(ctx, data)
		require.NoError(t, err)
	}

	var all []SubjectRef
	var after int64
	for {
		batch, err := s.Subjects(ctx, after, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		after = batch[len(batch)-1].ID
	}
	var titles []string
	for _, r := range all {
		titles = append(titles, r.Ref.String())
	}
	assert.Contains(t, titles, "Paris")
	assert.Contains(t, titles, "Berlin")
	assert.Contains(t, titles, "Property:population")
	assert.Contains(t, titles, "Somewhere", "referenced pages have ids too")

	pid, err := s.ids.GetID(ctx, page("Paris"), false)
	require.NoError(t, err)
	_, err = s.db.Exec("UPDATE sem_ids SET table_hashes = NULL WHERE id = ?", pid)
	require.NoError(t, err)
	s.ClearCaches()

	res, err := s.Refresh(ctx, page("Paris"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Mutations())

	s.ClearCaches()
	hashes, err := s.ids.GetTableHashes(ctx, pid)
	require.NoError(t, err)
	assert.NotEmpty(t, hashes, "refresh restores lost hashes")

	empty, err := s.Refresh(ctx, page("Nowhere"))
	require.NoError(t, err)
	assert.Zero(t, empty.ID)
}
