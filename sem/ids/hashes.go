package ids

import (
	"context"
	"database/sql"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
)

// GetTableHashes returns the table-hash map of id. A nil map means the
// hashes are unknown and every table has to be consulted.
func (r *Registry) GetTableHashes(ctx context.Context, id int64) (map[string]string, error) {
	r.st.mu.Lock()
	if r.st.slot.known && r.st.slot.id == id {
		hashes := copyHashes(r.st.slot.hashes)
		r.st.mu.Unlock()
		return hashes, nil
	}
	r.st.mu.Unlock()

	var raw []byte
	err := r.q.QueryRowContext(ctx, "SELECT table_hashes FROM sem_ids WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read table hashes of %d", id)
	}

	var hashes map[string]string
	if raw != nil {
		hashes = make(map[string]string)
		if err := msgpack.Unmarshal(raw, &hashes); err != nil {
			// unreadable bookkeeping is treated as unknown
			r.logger.Warnw("Discarding corrupt table hashes", logger.FieldSubjectID, id, logger.FieldError, err)
			hashes = nil
		}
	}
	r.fillSlot(id, hashes)
	return copyHashes(hashes), nil
}

// SetTableHashes stores the table-hash map of id. Empty hashes are dropped
// from the map.
func (r *Registry) SetTableHashes(ctx context.Context, id int64, hashes map[string]string) error {
	clean := make(map[string]string, len(hashes))
	for table, h := range hashes {
		if h != "" {
			clean[table] = h
		}
	}
	raw, err := msgpack.Marshal(clean)
	if err != nil {
		return errors.Wrap(err, "encode table hashes")
	}
	if _, err := r.q.ExecContext(ctx, "UPDATE sem_ids SET table_hashes = ? WHERE id = ?", raw, id); err != nil {
		return errors.Wrapf(err, "write table hashes of %d", id)
	}
	r.fillSlot(id, clean)
	return nil
}

func (r *Registry) fillSlot(id int64, hashes map[string]string) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.slot = hashSlot{id: id, hashes: copyHashes(hashes), known: true}
}

func copyHashes(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
