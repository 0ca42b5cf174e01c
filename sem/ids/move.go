package ids

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// MoveID relocates the row of oldID to newID, rewriting every reference in
// the property tables, the statistics and the concept cache. newID must be
// free.
func (r *Registry) MoveID(ctx context.Context, oldID, newID int64) error {
	if oldID == newID {
		return nil
	}
	if oldID == 0 || newID == 0 {
		return errors.Mark(errors.Newf("cannot move id %d to %d", oldID, newID), errors.ErrIdentityConflict)
	}

	var occupied int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM sem_ids WHERE id = ?", newID).Scan(&occupied); err != nil {
		return errors.Wrapf(err, "check id %d", newID)
	}
	if occupied > 0 {
		return errors.Mark(errors.Newf("id %d is already taken", newID), errors.ErrConflict)
	}

	res, err := r.q.ExecContext(ctx, "UPDATE sem_ids SET id = ? WHERE id = ?", newID, oldID)
	if err != nil {
		return errors.Wrapf(err, "move id %d to %d", oldID, newID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("id %d", oldID)
	}

	for _, ref := range r.references {
		if _, err := r.q.ExecContext(ctx, fmt.Sprintf(
			"UPDATE %s SET %s = ? WHERE %s = ?", ref.Table, ref.Column, ref.Column), newID, oldID); err != nil {
			return errors.Wrapf(err, "move references in %s.%s", ref.Table, ref.Column)
		}
	}
	for _, stmt := range []string{
		"UPDATE sem_prop_stats SET p_id = ? WHERE p_id = ?",
		"UPDATE sem_concept_cache SET s_id = ? WHERE s_id = ?",
		"UPDATE sem_concept_cache SET o_id = ? WHERE o_id = ?",
	} {
		if _, err := r.q.ExecContext(ctx, stmt, newID, oldID); err != nil {
			return errors.Wrapf(err, "move id %d", oldID)
		}
	}

	if stmt := r.dialect.ResetSequence("sem_ids", "id"); stmt != "" {
		if _, err := r.q.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "reset id sequence")
		}
	}

	r.forget(oldID)
	r.forget(newID)
	r.logger.Infow("Moved id", logger.FieldSymbol, sym.SUB, "from_id", oldID, "to_id", newID)
	return nil
}

// nextFreeID returns an id above every assigned one and above the border
func (r *Registry) nextFreeID(ctx context.Context) (int64, error) {
	var highest sql.NullInt64
	if err := r.q.QueryRowContext(ctx, "SELECT MAX(id) FROM sem_ids").Scan(&highest); err != nil {
		return 0, errors.Wrap(err, "find largest id")
	}
	next := highest.Int64 + 1
	if next <= BorderID {
		next = BorderID + 1
	}
	return next, nil
}

// ReserveBuiltins makes sure every predefined property owns its fixed id and
// the border row exists. Rows squatting on a reserved slot are moved out.
// It is safe to run repeatedly.
func (r *Registry) ReserveBuiltins(ctx context.Context) error {
	border := types.EntityRef{Interwiki: BorderInterwiki}
	if err := r.reserve(ctx, BorderID, border, ""); err != nil {
		return err
	}
	for key, id := range predefinedIDs {
		ref := types.EntityRef{Title: key, Namespace: types.NSProperty}
		if err := r.reserve(ctx, id, ref, key); err != nil {
			return err
		}
	}
	if stmt := r.dialect.ResetSequence("sem_ids", "id"); stmt != "" {
		if _, err := r.q.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "reset id sequence")
		}
	}
	return nil
}

func (r *Registry) reserve(ctx context.Context, slot int64, ref types.EntityRef, sortkey string) error {
	occupant, err := r.rowAt(ctx, slot)
	if err != nil {
		return err
	}
	if occupant != nil && *occupant == ref {
		return nil
	}
	if occupant != nil {
		free, err := r.nextFreeID(ctx)
		if err != nil {
			return err
		}
		r.logger.Warnw("Moving row out of a reserved id", logger.FieldSubject, occupant.String(), "from_id", slot, "to_id", free)
		if err := r.MoveID(ctx, slot, free); err != nil {
			return err
		}
	}

	// the builtin may already have a row somewhere else
	var existing int64
	err = r.q.QueryRowContext(ctx,
		"SELECT id FROM sem_ids WHERE title = ? AND namespace = ? AND interwiki = ? AND subobject = ?",
		ref.Title, ref.Namespace, ref.Interwiki, ref.Subobject,
	).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := r.q.ExecContext(ctx,
			"INSERT INTO sem_ids (id, title, namespace, interwiki, subobject, sortkey) VALUES (?, ?, ?, ?, ?, ?)",
			slot, ref.Title, ref.Namespace, ref.Interwiki, ref.Subobject, sortkey); err != nil {
			return errors.Wrapf(err, "reserve id %d", slot)
		}
		return nil
	case err != nil:
		return errors.Wrapf(err, "look up %s", ref)
	}
	return r.MoveID(ctx, existing, slot)
}

func (r *Registry) rowAt(ctx context.Context, id int64) (*types.EntityRef, error) {
	var ref types.EntityRef
	err := r.q.QueryRowContext(ctx,
		"SELECT title, namespace, interwiki, subobject FROM sem_ids WHERE id = ?", id,
	).Scan(&ref.Title, &ref.Namespace, &ref.Interwiki, &ref.Subobject)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read id %d", id)
	}
	return &ref, nil
}

// Rename gives the row of from (and the rows of its subobjects) the title
// and namespace of to. Ids and therefore all references stay attached.
// The target title must not have a live row.
func (r *Registry) Rename(ctx context.Context, from, to types.EntityRef) error {
	from, to = from.Base(), to.Base()
	if id, _, err := r.lookup(ctx, to); err != nil {
		return err
	} else if id != 0 {
		return errors.Mark(errors.Newf("%s already has id %d", to, id), errors.ErrConflict)
	}
	if _, err := r.q.ExecContext(ctx,
		"UPDATE sem_ids SET title = ?, namespace = ? WHERE title = ? AND namespace = ? AND interwiki = ?",
		to.Title, to.Namespace, from.Title, from.Namespace, from.Interwiki); err != nil {
		return errors.Wrapf(err, "rename %s to %s", from, to)
	}
	if _, err := r.q.ExecContext(ctx,
		"UPDATE sem_ids SET sortkey = ? WHERE title = ? AND namespace = ? AND interwiki = ? AND subobject = '' AND sortkey = ?",
		to.DefaultSortkey(), to.Title, to.Namespace, from.Interwiki, from.DefaultSortkey()); err != nil {
		return errors.Wrapf(err, "update sortkey of %s", to)
	}
	r.ClearCaches()
	r.logger.Infow("Renamed subject", logger.FieldSymbol, sym.SUB, logger.FieldSubject, from.String(), logger.FieldTarget, to.String())
	return nil
}
