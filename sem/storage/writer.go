package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/teranos/semstore/db"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/catalog"
	"github.com/teranos/semstore/sem/handlers"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// WriteResult summarizes one update
type WriteResult struct {
	Subject types.EntityRef `json:"subject"`
	ID      int64           `json:"id"`

	Inserted      int `json:"inserted"`
	Deleted       int `json:"deleted"`
	ChangedTables int `json:"changed_tables"`
	SkippedTables int `json:"skipped_tables"`

	// Redirect is set when the update recorded a redirect instead of facts
	Redirect bool `json:"redirect,omitempty"`

	// Warnings holds values that were dropped (ErrDataCorruption)
	Warnings []error `json:"-"`
}

// Mutations is the number of rows written or removed
func (r *WriteResult) Mutations() int {
	return r.Inserted + r.Deleted
}

// Writer applies fact sets as minimal row diffs
type Writer struct {
	db      *sql.DB
	dialect *db.Dialect
	catalog *catalog.Catalog
	ids     *ids.Registry
	stubs   *stubCache
	logger  *zap.SugaredLogger
}

// writeOp is the state of one transaction
type writeOp struct {
	w      *Writer
	q      db.Querier
	ids    *ids.Registry
	result *WriteResult
	deltas map[int64]int64
	pids   map[string]int64
	log    *zap.SugaredLogger
}

// Update replaces the stored facts of data's subject (and its subobjects)
// with data. Unchanged tables are skipped without reading them. A database
// failure rolls back the whole update and returns ErrTransactionFailure.
func (w *Writer) Update(ctx context.Context, data *types.SemanticData) (*WriteResult, error) {
	subject := data.Subject()
	if subject.IsEmpty() {
		return nil, errors.NewInvalidRequestError("fact set without a subject")
	}
	result := &WriteResult{Subject: subject}
	err := w.inTx(ctx, result, func(op *writeOp) error {
		return op.updateSubject(ctx, data)
	})
	if err != nil {
		return nil, errors.TransactionFailure(err, "update "+subject.String())
	}

	if result.Redirect {
		w.stubs.purge()
	} else {
		w.stubs.invalidate(subject)
	}
	logger.FromContext(ctx, w.logger).Debugw("Updated subject",
		logger.FieldSymbol, sym.AS,
		logger.FieldSubject, subject.String(),
		logger.FieldSubjectID, result.ID,
		logger.FieldInserted, result.Inserted,
		logger.FieldDeleted, result.Deleted,
		logger.FieldSkipped, result.SkippedTables,
	)
	return result, nil
}

// Delete removes every fact of subject and its subobjects. Ids stay.
// A redirect from subject is removed as well.
func (w *Writer) Delete(ctx context.Context, subject types.EntityRef) (*WriteResult, error) {
	result := &WriteResult{Subject: subject}
	err := w.inTx(ctx, result, func(op *writeOp) error {
		if !subject.IsSubobject() {
			if _, err := op.ids.DeleteRedirect(ctx, subject); err != nil {
				return err
			}
		}
		id, err := op.ids.GetID(ctx, subject, false)
		if err != nil || id == 0 {
			return err
		}
		result.ID = id
		if err := op.writeTables(ctx, id, nil); err != nil {
			return err
		}
		return op.emptySubobjects(ctx, subject, nil)
	})
	if err != nil {
		return nil, errors.TransactionFailure(err, "delete "+subject.String())
	}
	w.stubs.invalidate(subject)
	return result, nil
}

// ChangeTitle moves the facts of from to the title to. An existing page at
// to is emptied and retired first. With keepRedirect, from becomes a
// redirect to the moved page.
func (w *Writer) ChangeTitle(ctx context.Context, from, to types.EntityRef, keepRedirect bool) (*WriteResult, error) {
	from, to = from.Base(), to.Base()
	result := &WriteResult{Subject: to}
	err := w.inTx(ctx, result, func(op *writeOp) error {
		fromID, err := op.ids.GetID(ctx, from, false)
		if err != nil {
			return err
		}
		if fromID == 0 {
			return errors.NewNotFoundError("%s has no stored facts", from)
		}
		toID, err := op.ids.GetID(ctx, to, false)
		if err != nil {
			return err
		}
		if toID != 0 {
			if err := op.writeTables(ctx, toID, nil); err != nil {
				return err
			}
			if err := op.emptySubobjects(ctx, to, nil); err != nil {
				return err
			}
			if err := op.retireSubobjects(ctx, from, to); err != nil {
				return err
			}
			if _, err := op.ids.RelinkReferences(ctx, toID, fromID); err != nil {
				return err
			}
			if err := op.ids.RetireID(ctx, toID); err != nil {
				return err
			}
		}
		if _, err := op.ids.DeleteRedirect(ctx, to); err != nil {
			return err
		}
		if err := op.ids.Rename(ctx, from, to); err != nil {
			return err
		}
		if keepRedirect {
			if err := op.ids.SetRedirect(ctx, from, fromID); err != nil {
				return err
			}
		}
		result.ID = fromID
		return nil
	})
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, err
		}
		return nil, errors.TransactionFailure(err, "move "+from.String())
	}
	w.stubs.purge()
	logger.FromContext(ctx, w.logger).Infow("Moved subject", logger.FieldSymbol, sym.SUB, logger.FieldSubject, from.String(), logger.FieldTarget, to.String(), logger.FieldSubjectID, result.ID)
	return result, nil
}

func (w *Writer) inTx(ctx context.Context, result *WriteResult, fn func(op *writeOp) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	op := &writeOp{
		w:      w,
		q:      w.dialect.Bind(tx),
		ids:    w.ids.WithQuerier(tx),
		result: result,
		deltas: make(map[int64]int64),
		pids:   make(map[string]int64),
		log:    logger.FromContext(ctx, w.logger),
	}
	if err := fn(op); err != nil {
		tx.Rollback()
		w.ids.ClearCaches()
		return err
	}
	if err := op.flushUsage(ctx); err != nil {
		tx.Rollback()
		w.ids.ClearCaches()
		return err
	}
	if err := tx.Commit(); err != nil {
		w.ids.ClearCaches()
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (op *writeOp) warn(err error) {
	op.result.Warnings = append(op.result.Warnings, err)
	op.log.Warnw("Dropping value", logger.FieldSymbol, sym.AS, logger.FieldSubject, op.result.Subject.String(), logger.FieldError, err)
}

func (op *writeOp) updateSubject(ctx context.Context, data *types.SemanticData) error {
	subject := data.Subject()
	redirect := types.Property{Key: types.PropRedirect}

	if targets := data.Values(redirect); len(targets) > 0 {
		if !subject.IsSubobject() {
			return op.writeRedirect(ctx, subject, targets[0])
		}
		op.warn(errors.DataCorruption("subobject %s cannot be a redirect", subject))
	}
	if !subject.IsSubobject() {
		// a page written with facts is no longer a redirect
		if _, err := op.ids.DeleteRedirect(ctx, subject); err != nil {
			return err
		}
	}

	sortkey := subject.DefaultSortkey()
	for _, v := range data.Values(types.Property{Key: types.PropSortkey}) {
		if b, ok := v.(types.Blob); ok && b.Text != "" {
			sortkey = b.Text
			break
		}
	}
	id, err := op.ids.MakeID(ctx, subject, sortkey)
	if err != nil {
		return err
	}
	if subject == op.result.Subject {
		op.result.ID = id
	}

	groups, err := op.buildRows(ctx, id, data)
	if err != nil {
		return err
	}
	if err := op.writeTables(ctx, id, groups); err != nil {
		return err
	}

	present := make(map[string]bool)
	for _, sub := range data.Subobjects() {
		present[sub.Subject().Subobject] = true
		if err := op.updateSubject(ctx, sub); err != nil {
			return err
		}
	}
	if subject.IsSubobject() {
		return nil
	}
	return op.emptySubobjects(ctx, subject, present)
}

// retireSubobjects retires the subobject rows of to before from takes its
// title. References to a subobject that from also has are moved to from's.
func (op *writeOp) retireSubobjects(ctx context.Context, from, to types.EntityRef) error {
	own, err := op.ids.SubobjectIDs(ctx, from)
	if err != nil {
		return err
	}
	byName := make(map[string]int64, len(own))
	for _, sub := range own {
		byName[sub.Ref.Subobject] = sub.ID
	}

	stale, err := op.ids.SubobjectIDs(ctx, to)
	if err != nil {
		return err
	}
	for _, sub := range stale {
		if id, ok := byName[sub.Ref.Subobject]; ok {
			if _, err := op.ids.RelinkReferences(ctx, sub.ID, id); err != nil {
				return err
			}
		}
		if err := op.ids.RetireID(ctx, sub.ID); err != nil {
			return err
		}
	}
	return nil
}

// emptySubobjects writes empty fact sets for the stored subobjects of base
// that are not in keep
func (op *writeOp) emptySubobjects(ctx context.Context, base types.EntityRef, keep map[string]bool) error {
	subs, err := op.ids.SubobjectIDs(ctx, base)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if keep[sub.Ref.Subobject] {
			continue
		}
		if err := op.writeTables(ctx, sub.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (op *writeOp) writeRedirect(ctx context.Context, source types.EntityRef, target types.DataItem) error {
	page, ok := target.(types.WikiPage)
	if !ok || page.Ref.IsEmpty() {
		op.warn(errors.DataCorruption("redirect of %s needs a page target", source))
		return nil
	}
	if page.Ref.Base() == source {
		op.warn(errors.DataCorruption("%s cannot redirect to itself", source))
		return nil
	}

	targetID, err := op.ids.GetID(ctx, page.Ref, true)
	if err != nil {
		return err
	}
	if targetID == 0 {
		if targetID, err = op.ids.MakeID(ctx, page.Ref, page.Sortkey); err != nil {
			return err
		}
	}

	sourceID, err := op.ids.GetID(ctx, source, false)
	if err != nil {
		return err
	}
	op.result.Redirect = true
	op.result.ID = targetID
	if sourceID == 0 {
		current, err := op.ids.ResolveRedirect(ctx, source)
		if err != nil || current == targetID {
			return err
		}
	}
	if sourceID != 0 && sourceID != targetID {
		if err := op.writeTables(ctx, sourceID, nil); err != nil {
			return err
		}
		if err := op.emptySubobjects(ctx, source, nil); err != nil {
			return err
		}
		if _, err := op.ids.RelinkReferences(ctx, sourceID, targetID); err != nil {
			return err
		}
		if err := op.ids.RetireID(ctx, sourceID); err != nil {
			return err
		}
	}
	if err := op.ids.SetRedirect(ctx, source, targetID); err != nil {
		return err
	}
	op.result.Inserted++
	return nil
}

// propertyID returns the id of p's page, creating it when needed
func (op *writeOp) propertyID(ctx context.Context, key string) (int64, error) {
	if id, ok := op.pids[key]; ok {
		return id, nil
	}
	p := types.Property{Key: key}
	id, err := op.ids.MakeID(ctx, p.Page(), p.Page().DefaultSortkey())
	if err != nil {
		return 0, err
	}
	op.pids[key] = id
	return id, nil
}

// buildRows groups the candidate rows of data by table
func (op *writeOp) buildRows(ctx context.Context, id int64, data *types.SemanticData) (map[string][]handlers.Row, error) {
	groups := make(map[string][]handlers.Row)
	for _, p := range data.Properties() {
		if p.Key == types.PropSortkey || p.Key == types.PropRedirect {
			continue
		}
		if p.Inverse {
			op.warn(errors.DataCorruption("inverse property %s cannot be stored", p.Key))
			continue
		}
		for _, v := range data.Values(p) {
			if v.Kind() == types.KindError {
				op.warn(errors.DataCorruption("value of %s could not be parsed: %s", p.Key, v.Hash()))
				continue
			}
			t, err := op.w.catalog.FindTable(p, v.Kind())
			if err != nil {
				op.warn(err)
				continue
			}
			if t.Kind != v.Kind() {
				op.warn(errors.DataCorruption("%s stores %s values, got %s", p.Key, t.Kind, v.Kind()))
				continue
			}
			if t.SubjectMode != catalog.SubjectByID {
				continue
			}
			if c, ok := v.(types.Concept); ok {
				if len(groups[t.Name]) > 0 {
					op.warn(errors.DataCorruption("%s keeps a single concept description", data.Subject()))
					continue
				}
				if v, err = op.keepConceptCache(ctx, t, id, c); err != nil {
					return nil, err
				}
			}

			row, err := op.w.catalog.Handler(t).InsertValues(ctx, op.ids, v)
			if err != nil {
				if errors.IsDataCorruption(err) {
					op.warn(err)
					continue
				}
				return nil, err
			}
			row["s_id"] = id
			if !t.IsFixed() {
				pid, err := op.propertyID(ctx, p.Key)
				if err != nil {
					return nil, err
				}
				row["p_id"] = pid
			}
			groups[t.Name] = append(groups[t.Name], row)
		}
	}
	return groups, nil
}

// keepConceptCache copies the cache columns of the stored concept row
func (op *writeOp) keepConceptCache(ctx context.Context, t *catalog.TableDefinition, id int64, c types.Concept) (types.Concept, error) {
	var date, count sql.NullInt64
	err := op.q.QueryRowContext(ctx,
		"SELECT cache_date, cache_count FROM "+t.Name+" WHERE s_id = ?", id).Scan(&date, &count)
	if err == sql.ErrNoRows {
		return c, nil
	}
	if err != nil {
		return c, errors.Wrap(err, "read concept cache state")
	}
	c.CacheDate = date.Int64
	c.CacheCount = int(count.Int64)
	return c, nil
}

// RowSetHash digests a table's rows for one subject. The digest does not
// depend on row order; an empty set hashes to "".
func RowSetHash(rows []handlers.Row) string {
	if len(rows) == 0 {
		return ""
	}
	lines := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		c := r.Canonical()
		if !seen[c] {
			seen[c] = true
			lines = append(lines, c)
		}
	}
	sort.Strings(lines)
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(lines, "\n")), 16)
}

// writeTables brings every id-keyed table of id in line with groups.
// A nil groups empties the subject.
func (op *writeOp) writeTables(ctx context.Context, id int64, groups map[string][]handlers.Row) error {
	stored, err := op.ids.GetTableHashes(ctx, id)
	if err != nil {
		return err
	}
	hashes := make(map[string]string)
	for _, t := range op.w.catalog.HashedTables() {
		rows := groups[t.Name]
		h := RowSetHash(rows)
		if stored != nil && stored[t.Name] == h {
			if h != "" {
				hashes[t.Name] = h
				op.result.SkippedTables++
			}
			continue
		}
		changed, err := op.syncTable(ctx, t, id, rows)
		if err != nil {
			return err
		}
		if changed {
			op.result.ChangedTables++
		}
		if h != "" {
			hashes[t.Name] = h
		}
	}
	if stored != nil && hashesEqual(stored, hashes) {
		return nil
	}
	return op.ids.SetTableHashes(ctx, id, hashes)
}

func hashesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// syncTable diffs the stored rows of id in t against rows and applies the
// difference: removed rows are deleted before added rows are inserted.
func (op *writeOp) syncTable(ctx context.Context, t *catalog.TableDefinition, id int64, rows []handlers.Row) (bool, error) {
	current, err := op.storedRows(ctx, t, id)
	if err != nil {
		return false, err
	}

	wanted := make(map[string]handlers.Row, len(rows))
	for _, r := range rows {
		wanted[r.Canonical()] = r
	}
	count := make(map[string]int, len(current))
	have := make(map[string]handlers.Row, len(current))
	for _, r := range current {
		c := r.Canonical()
		count[c]++
		have[c] = r
	}

	var toDelete, toInsert []string
	for c, n := range count {
		if _, keep := wanted[c]; !keep {
			toDelete = append(toDelete, c)
			continue
		}
		if n > 1 {
			// duplicates left behind by a relink; collapse to one row
			toDelete = append(toDelete, c)
			toInsert = append(toInsert, c)
		}
	}
	for c := range wanted {
		if count[c] == 0 {
			toInsert = append(toInsert, c)
		}
	}
	if len(toDelete) == 0 && len(toInsert) == 0 {
		return false, nil
	}
	sort.Strings(toDelete)
	sort.Strings(toInsert)

	for _, c := range toDelete {
		row := have[c]
		if err := op.deleteRow(ctx, t, row); err != nil {
			return false, err
		}
		op.result.Deleted += count[c]
		delta := -int64(count[c])
		if _, keep := wanted[c]; keep {
			delta++
		}
		if err := op.countUsage(ctx, t, row, delta); err != nil {
			return false, err
		}
	}
	for _, c := range toInsert {
		row := wanted[c]
		if err := op.insertRow(ctx, t, row); err != nil {
			return false, err
		}
		op.result.Inserted++
		if count[c] == 0 {
			if err := op.countUsage(ctx, t, row, 1); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (op *writeOp) countUsage(ctx context.Context, t *catalog.TableDefinition, row handlers.Row, delta int64) error {
	if delta == 0 {
		return nil
	}
	var pid int64
	if t.IsFixed() {
		var err error
		if pid, err = op.propertyID(ctx, t.FixedProperty); err != nil {
			return err
		}
	} else {
		switch v := row["p_id"].(type) {
		case int64:
			pid = v
		case int:
			pid = int64(v)
		}
	}
	if pid != 0 {
		op.deltas[pid] += delta
	}
	return nil
}

// storedRows reads the raw rows of id in t, with the same columns the
// handlers produce
func (op *writeOp) storedRows(ctx context.Context, t *catalog.TableDefinition, id int64) ([]handlers.Row, error) {
	cols := op.w.catalog.Columns(t)
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = f.Name
	}
	rows, err := op.q.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE s_id = ?", strings.Join(names, ", "), t.Name), id)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", t.Name)
	}
	defer rows.Close()

	var out []handlers.Row
	for rows.Next() {
		values := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrapf(err, "scan %s", t.Name)
		}
		row := make(handlers.Row, len(names))
		for i, name := range names {
			row[name] = normalizeScanned(values[i], cols[i].Type)
		}
		out = append(out, row)
	}
	return out, errors.Wrapf(rows.Err(), "iterate %s", t.Name)
}

// normalizeScanned maps driver values onto the types handlers produce
func normalizeScanned(v interface{}, ft handlers.FieldType) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		if ft == handlers.FieldBlob {
			return x
		}
		return string(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case int64:
		if ft == handlers.FieldFloat {
			return float64(x)
		}
		return x
	case string:
		if ft == handlers.FieldBlob {
			return []byte(x)
		}
		return x
	}
	return v
}

func whereClause(row handlers.Row) (string, []interface{}) {
	cols := row.Columns()
	parts := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols))
	for _, c := range cols {
		if row[c] == nil {
			parts = append(parts, c+" IS NULL")
			continue
		}
		parts = append(parts, c+" = ?")
		args = append(args, row[c])
	}
	return strings.Join(parts, " AND "), args
}

func (op *writeOp) deleteRow(ctx context.Context, t *catalog.TableDefinition, row handlers.Row) error {
	where, args := whereClause(row)
	if _, err := op.q.ExecContext(ctx, "DELETE FROM "+t.Name+" WHERE "+where, args...); err != nil {
		return errors.Wrapf(err, "delete from %s", t.Name)
	}
	return nil
}

func (op *writeOp) insertRow(ctx context.Context, t *catalog.TableDefinition, row handlers.Row) error {
	cols := row.Columns()
	marks := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		marks[i] = "?"
		args[i] = row[c]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if _, err := op.q.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrapf(err, "insert into %s", t.Name)
	}
	return nil
}

// flushUsage applies the accumulated usage deltas, one statement per property
func (op *writeOp) flushUsage(ctx context.Context) error {
	pids := make([]int64, 0, len(op.deltas))
	for pid, delta := range op.deltas {
		if delta != 0 {
			pids = append(pids, pid)
		}
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		_, err := op.q.ExecContext(ctx,
			`INSERT INTO sem_prop_stats (p_id, usage_count) VALUES (?, ?)
			ON CONFLICT(p_id) DO UPDATE SET usage_count = sem_prop_stats.usage_count + excluded.usage_count`,
			pid, op.deltas[pid])
		if err != nil {
			return errors.Wrapf(err, "update usage of property %d", pid)
		}
	}
	return nil
}
