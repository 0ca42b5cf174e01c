package storage

import (
	"context"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

// SubjectRef is a stored page and its id
type SubjectRef struct {
	ID  int64           `json:"id"`
	Ref types.EntityRef `json:"ref"`
}

// Subjects lists stored pages with ids above after, in id order. Built-in
// rows, subobjects and retired redirect sources are skipped. Callers page
// through the store by passing the last id seen.
func (s *Store) Subjects(ctx context.Context, after int64, limit int) ([]SubjectRef, error) {
	if after < ids.BorderID {
		after = ids.BorderID
	}
	q := s.dialect.Bind(s.db)
	rows, err := q.QueryContext(ctx, `SELECT id, title, namespace, interwiki FROM sem_ids
		WHERE id > ? AND subobject = '' AND interwiki NOT LIKE ?
		ORDER BY id`+s.dialect.LimitClause(limit, 0),
		after, ids.ReservedInterwikiPattern)
	if err != nil {
		return nil, errors.Wrap(err, "list subjects")
	}
	defer rows.Close()

	var out []SubjectRef
	for rows.Next() {
		var r SubjectRef
		if err := rows.Scan(&r.ID, &r.Ref.Title, &r.Ref.Namespace, &r.Ref.Interwiki); err != nil {
			return nil, errors.Wrap(err, "scan subject")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate subjects")
}

// Refresh reads subject from the tables and writes it back. The write is a
// no-op for consistent data; it recomputes missing table hashes and usage
// counts, and drops rows whose values no longer read back.
func (s *Store) Refresh(ctx context.Context, subject types.EntityRef) (*WriteResult, error) {
	s.stubs.invalidate(subject)
	stub, err := s.reader.Read(ctx, subject, ReadOptions{})
	if err != nil {
		return nil, err
	}
	for _, e := range stub.Errors() {
		s.logger.Warnw("Unreadable value dropped by refresh", logger.FieldSymbol, sym.Rebuild, logger.FieldSubject, subject.String(), logger.FieldError, e)
	}
	if stub.ID() == 0 {
		return &WriteResult{Subject: subject}, nil
	}
	return s.writer.Update(ctx, stub.SemanticData())
}
