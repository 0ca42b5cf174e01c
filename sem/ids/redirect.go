package ids

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// ResolveRedirect returns the target id of a redirect from ref, or 0.
// Chains are not followed.
func (r *Registry) ResolveRedirect(ctx context.Context, ref types.EntityRef) (int64, error) {
	var target int64
	err := r.q.QueryRowContext(ctx,
		"SELECT o_id FROM "+RedirectTable+" WHERE s_title = ? AND s_namespace = ?",
		ref.Title, ref.Namespace,
	).Scan(&target)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "resolve redirect of %s", ref)
	}
	return target, nil
}

// SetRedirect records that ref redirects to targetID, replacing any previous target
func (r *Registry) SetRedirect(ctx context.Context, ref types.EntityRef, targetID int64) error {
	if targetID == 0 {
		return errors.Mark(errors.Newf("redirect of %s has no target id", ref), errors.ErrIdentityConflict)
	}
	if _, err := r.DeleteRedirect(ctx, ref); err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx,
		"INSERT INTO "+RedirectTable+" (s_title, s_namespace, o_id) VALUES (?, ?, ?)",
		ref.Title, ref.Namespace, targetID); err != nil {
		return errors.Wrapf(err, "write redirect of %s", ref)
	}
	r.logger.Debugw("Recorded redirect", logger.FieldSymbol, sym.SUB, logger.FieldSubject, ref.String(), logger.FieldTargetID, targetID)
	return nil
}

// DeleteRedirect removes the redirect from ref and reports whether one existed
func (r *Registry) DeleteRedirect(ctx context.Context, ref types.EntityRef) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		"DELETE FROM "+RedirectTable+" WHERE s_title = ? AND s_namespace = ?",
		ref.Title, ref.Namespace)
	if err != nil {
		return false, errors.Wrapf(err, "delete redirect of %s", ref)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// RetireID takes id out of the lookup space by moving its row to the
// retired interwiki. The row and its number stay. A row retired earlier
// under the same title is merged into id and keeps a marker of its own, so
// that reviving the title always finds the latest row.
func (r *Registry) RetireID(ctx context.Context, id int64) error {
	if id == 0 {
		return nil
	}
	ref, _, err := r.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if ref.Interwiki != "" {
		return nil
	}

	var stale int64
	err = r.q.QueryRowContext(ctx,
		"SELECT id FROM sem_ids WHERE title = ? AND namespace = ? AND interwiki = ? AND subobject = ?",
		ref.Title, ref.Namespace, RetiredInterwiki, ref.Subobject,
	).Scan(&stale)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return errors.Wrapf(err, "look up retired id of %s", ref)
	default:
		if _, err := r.RelinkReferences(ctx, stale, id); err != nil {
			return err
		}
		if _, err := r.q.ExecContext(ctx,
			"UPDATE sem_ids SET interwiki = ? WHERE id = ?",
			supersededInterwiki(stale), stale); err != nil {
			return errors.Wrapf(err, "supersede retired id %d", stale)
		}
		r.forget(stale)
		r.logger.Debugw("Superseded retired id", logger.FieldSymbol, sym.SUB, logger.FieldSubject, ref.String(), logger.FieldSubjectID, stale, logger.FieldTargetID, id)
	}

	if _, err := r.q.ExecContext(ctx,
		"UPDATE sem_ids SET interwiki = ?, table_hashes = NULL WHERE id = ? AND interwiki = ''",
		RetiredInterwiki, id); err != nil {
		return errors.Wrapf(err, "retire id %d", id)
	}
	r.forget(id)
	return nil
}

func supersededInterwiki(id int64) string {
	return RetiredInterwiki + ":" + strconv.FormatInt(id, 10)
}

// RelinkReferences points every value column holding from at to instead.
// Subjects whose rows changed lose their table hashes so the next write
// re-reads their tables.
func (r *Registry) RelinkReferences(ctx context.Context, from, to int64) (int64, error) {
	if from == 0 || to == 0 || from == to {
		return 0, nil
	}
	var total int64
	for _, ref := range r.references {
		if !ref.Value {
			continue
		}
		if !ref.TitleKeyed {
			if _, err := r.q.ExecContext(ctx, fmt.Sprintf(
				"UPDATE sem_ids SET table_hashes = NULL WHERE id IN (SELECT s_id FROM %s WHERE %s = ?)",
				ref.Table, ref.Column), from); err != nil {
				return total, errors.Wrapf(err, "invalidate hashes for %s", ref.Table)
			}
		}
		res, err := r.q.ExecContext(ctx, fmt.Sprintf(
			"UPDATE %s SET %s = ? WHERE %s = ?", ref.Table, ref.Column, ref.Column), to, from)
		if err != nil {
			return total, errors.Wrapf(err, "relink %s.%s", ref.Table, ref.Column)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	r.invalidateSlot()
	r.logger.Debugw("Relinked references",
		logger.FieldSymbol, sym.SUB,
		"from_id", from,
		"to_id", to,
		logger.FieldCount, total,
	)
	return total, nil
}

func (r *Registry) invalidateSlot() {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.slot = hashSlot{}
}
