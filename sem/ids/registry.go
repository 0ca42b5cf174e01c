// Package ids assigns and caches surrogate ids for entity references.
//
// Every subject, property page and subobject has one row in sem_ids. Rows are
// never deleted: a redirect source is retired by moving it to a reserved
// interwiki, and MoveID relocates a row to another numeric slot together with
// every reference to it. The most common predefined properties use fixed ids
// below BorderID and bypass the lookup table entirely.
package ids

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// Reserved ids and interwiki markers
const (
	BorderID         int64 = 50
	BorderInterwiki        = ":sem-border"
	RetiredInterwiki       = ":sem-redi"

	// ReservedInterwikiPattern matches every internal marker above, including
	// the per-row markers of superseded retired rows
	ReservedInterwikiPattern = ":sem-%"

	// RedirectTable holds redirects keyed by source title and namespace
	RedirectTable = "sem_fpt_redi"
)

var predefinedIDs = map[string]int64{
	types.PropType:       1,
	types.PropURI:        2,
	types.PropInstance:   4,
	types.PropRedirect:   15,
	types.PropSubprop:    17,
	types.PropSubcat:     18,
	types.PropConcept:    19,
	types.PropErrorProp:  22,
	types.PropSortkey:    24,
	types.PropModified:   27,
	types.PropSubobjects: 31,
}

// PredefinedID returns the fixed id of a predefined property
func PredefinedID(key string) (int64, bool) {
	id, ok := predefinedIDs[key]
	return id, ok
}

// Reference names a column holding ids from sem_ids
type Reference struct {
	Table  string
	Column string
	// Value is set for object columns (o_id), the ones a redirect relinks
	Value bool
	// TitleKeyed is set for tables without an s_id column
	TitleKeyed bool
}

// Options configures a Registry
type Options struct {
	Dialect             *db.Dialect
	IDCacheSize         int
	PropertyIDCacheSize int
	ResolveRedirects    bool

	// References lists every property-table column that stores ids
	References []Reference

	Logger *zap.SugaredLogger
}

// Registry resolves entity references to ids
type Registry struct {
	q          db.Querier
	dialect    *db.Dialect
	redirects  bool
	references []Reference
	logger     *zap.SugaredLogger
	st         *state
}

// New creates a registry over q
func New(q db.Querier, opts Options) *Registry {
	if opts.Dialect == nil {
		opts.Dialect = db.SQLite
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Registry{
		q:          opts.Dialect.Bind(q),
		dialect:    opts.Dialect,
		redirects:  opts.ResolveRedirects,
		references: opts.References,
		logger:     opts.Logger,
		st: &state{
			general: newBoundedCache(opts.IDCacheSize),
			props:   newBoundedCache(opts.PropertyIDCacheSize),
		},
	}
}

// WithQuerier returns a registry running its statements on q (usually a
// transaction) while sharing this registry's caches.
func (r *Registry) WithQuerier(q db.Querier) *Registry {
	c := *r
	c.q = r.dialect.Bind(q)
	return &c
}

// ClearCaches drops every cached id and table hash. Callers do this after a
// rolled back transaction.
func (r *Registry) ClearCaches() {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.general.clear()
	r.st.props.clear()
	r.st.slot = hashSlot{}
}

// CacheSizes reports the number of cached general and property ids
func (r *Registry) CacheSizes() (general, properties int) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.st.general.len(), r.st.props.len()
}

func predefinedRef(ref types.EntityRef) (int64, bool) {
	if ref.Namespace != types.NSProperty || ref.Interwiki != "" || ref.Subobject != "" {
		return 0, false
	}
	return PredefinedID(ref.Title)
}

func (r *Registry) cacheFor(ref types.EntityRef) *boundedCache {
	if ref.Namespace == types.NSProperty && ref.Subobject == "" {
		return r.st.props
	}
	return r.st.general
}

func (r *Registry) cached(ref types.EntityRef) (cacheEntry, bool) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.cacheFor(ref).get(ref.Key())
}

func (r *Registry) remember(ref types.EntityRef, id int64, sortkey string) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.cacheFor(ref).put(ref.Key(), cacheEntry{id: id, sortkey: sortkey})
}

func (r *Registry) forget(id int64) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.general.deleteID(id)
	r.st.props.deleteID(id)
	if r.st.slot.id == id {
		r.st.slot = hashSlot{}
	}
}

// lookup finds the direct row of ref
func (r *Registry) lookup(ctx context.Context, ref types.EntityRef) (int64, string, error) {
	if id, ok := predefinedRef(ref); ok {
		return id, ref.Title, nil
	}
	if e, ok := r.cached(ref); ok {
		return e.id, e.sortkey, nil
	}
	var id int64
	var sortkey string
	err := r.q.QueryRowContext(ctx,
		"SELECT id, sortkey FROM sem_ids WHERE title = ? AND namespace = ? AND interwiki = ? AND subobject = ?",
		ref.Title, ref.Namespace, ref.Interwiki, ref.Subobject,
	).Scan(&id, &sortkey)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", errors.Wrapf(err, "look up id of %s", ref)
	}
	r.remember(ref, id, sortkey)
	return id, sortkey, nil
}

// GetID returns the id of ref, or 0 when ref is unknown. With followRedirect
// (and redirect resolution enabled) a page without a row of its own resolves
// to its redirect target, one hop at most.
func (r *Registry) GetID(ctx context.Context, ref types.EntityRef, followRedirect bool) (int64, error) {
	id, _, err := r.GetIDAndSortkey(ctx, ref, followRedirect)
	return id, err
}

// GetIDAndSortkey is GetID that also returns the stored sortkey
func (r *Registry) GetIDAndSortkey(ctx context.Context, ref types.EntityRef, followRedirect bool) (int64, string, error) {
	if ref.IsEmpty() {
		return 0, "", nil
	}
	id, sortkey, err := r.lookup(ctx, ref)
	if err != nil || id != 0 {
		return id, sortkey, err
	}
	if !followRedirect || !r.redirects || ref.Interwiki != "" || ref.IsSubobject() {
		return 0, "", nil
	}
	target, err := r.ResolveRedirect(ctx, ref)
	if err != nil || target == 0 {
		return 0, "", err
	}
	var targetSortkey string
	err = r.q.QueryRowContext(ctx, "SELECT sortkey FROM sem_ids WHERE id = ?", target).Scan(&targetSortkey)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", errors.Wrapf(err, "look up redirect target %d", target)
	}
	return target, targetSortkey, nil
}

// MakeID returns the id of ref, creating the row when absent and updating
// the sortkey when it differs. A retired row (former redirect source) is
// revived instead of duplicated.
func (r *Registry) MakeID(ctx context.Context, ref types.EntityRef, sortkey string) (int64, error) {
	if ref.IsEmpty() {
		return 0, errors.Mark(errors.New("cannot assign an id to an empty reference"), errors.ErrIdentityConflict)
	}
	if id, ok := predefinedRef(ref); ok {
		return id, nil
	}
	if sortkey == "" {
		sortkey = ref.DefaultSortkey()
	}

	id, stored, err := r.lookup(ctx, ref)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		if stored != sortkey {
			if _, err := r.q.ExecContext(ctx, "UPDATE sem_ids SET sortkey = ? WHERE id = ?", sortkey, id); err != nil {
				return 0, errors.Wrapf(err, "update sortkey of %s", ref)
			}
			r.remember(ref, id, sortkey)
		}
		return id, nil
	}

	if ref.Interwiki == "" {
		if id, err = r.revive(ctx, ref, sortkey); err != nil || id != 0 {
			return id, err
		}
	}

	err = r.q.QueryRowContext(ctx,
		"INSERT INTO sem_ids (title, namespace, interwiki, subobject, sortkey) VALUES (?, ?, ?, ?, ?) RETURNING id",
		ref.Title, ref.Namespace, ref.Interwiki, ref.Subobject, sortkey,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			// inserted concurrently; the row is there now
			id, _, err = r.lookup(ctx, ref)
			return id, err
		}
		return 0, errors.Wrapf(err, "create id for %s", ref)
	}
	r.remember(ref, id, sortkey)
	r.logger.Debugw("Assigned id", logger.FieldSymbol, sym.AS, logger.FieldSubject, ref.String(), logger.FieldSubjectID, id)
	return id, nil
}

func (r *Registry) revive(ctx context.Context, ref types.EntityRef, sortkey string) (int64, error) {
	var id int64
	err := r.q.QueryRowContext(ctx,
		"SELECT id FROM sem_ids WHERE title = ? AND namespace = ? AND interwiki = ? AND subobject = ?",
		ref.Title, ref.Namespace, RetiredInterwiki, ref.Subobject,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "look up retired id of %s", ref)
	}
	if _, err := r.q.ExecContext(ctx,
		"UPDATE sem_ids SET interwiki = '', sortkey = ? WHERE id = ?", sortkey, id); err != nil {
		return 0, errors.Wrapf(err, "revive id %d", id)
	}
	r.remember(ref, id, sortkey)
	r.logger.Debugw("Revived retired id", logger.FieldSymbol, sym.AS, logger.FieldSubject, ref.String(), logger.FieldSubjectID, id)
	return id, nil
}

// Lookup returns the reference and sortkey stored for id
func (r *Registry) Lookup(ctx context.Context, id int64) (types.EntityRef, string, error) {
	var ref types.EntityRef
	var sortkey string
	err := r.q.QueryRowContext(ctx,
		"SELECT title, namespace, interwiki, subobject, sortkey FROM sem_ids WHERE id = ?", id,
	).Scan(&ref.Title, &ref.Namespace, &ref.Interwiki, &ref.Subobject, &sortkey)
	if err == sql.ErrNoRows {
		return types.EntityRef{}, "", errors.NewNotFoundError("id %d", id)
	}
	if err != nil {
		return types.EntityRef{}, "", errors.Wrapf(err, "look up id %d", id)
	}
	return ref, sortkey, nil
}

// SubobjectID pairs a subobject reference with its id
type SubobjectID struct {
	ID  int64
	Ref types.EntityRef
}

// SubobjectIDs lists the live subobjects stored under base's page
func (r *Registry) SubobjectIDs(ctx context.Context, base types.EntityRef) ([]SubobjectID, error) {
	base = base.Base()
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, subobject FROM sem_ids WHERE title = ? AND namespace = ? AND interwiki = ? AND subobject <> '' ORDER BY subobject",
		base.Title, base.Namespace, base.Interwiki)
	if err != nil {
		return nil, errors.Wrapf(err, "list subobjects of %s", base)
	}
	defer rows.Close()

	var out []SubobjectID
	for rows.Next() {
		var s SubobjectID
		var name string
		if err := rows.Scan(&s.ID, &name); err != nil {
			return nil, errors.Wrap(err, "scan subobject")
		}
		s.Ref = base.WithSubobject(name)
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "iterate subobjects")
}
