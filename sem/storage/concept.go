package storage

import (
	"context"
	"database/sql"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/logger"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/catalog"
	"github.com/teranos/semstore/sem/types"
	"github.com/teranos/semstore/sym"
)

func (s *Store) conceptTable() (*catalog.TableDefinition, error) {
	return s.catalog.FindTable(types.Property{Key: types.PropConcept}, types.KindConcept)
}

func conceptPage(ref types.EntityRef) types.EntityRef {
	ref = ref.Base()
	if ref.Namespace == types.NSMain {
		ref.Namespace = types.NSConcept
	}
	return ref
}

// RefreshConceptCache recomputes the members of a concept and stores them
// in sem_concept_cache. It returns the number of members.
func (s *Store) RefreshConceptCache(ctx context.Context, concept types.EntityRef) (int, error) {
	concept = conceptPage(concept)
	if s.parser == nil {
		return 0, errors.NewInvalidRequestError("refreshing %s needs a description parser", concept)
	}
	t, err := s.conceptTable()
	if err != nil {
		return 0, err
	}
	id, err := s.ids.GetID(ctx, concept, false)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.NewNotFoundError("concept %s does not exist", concept)
	}

	var text []byte
	err = s.dialect.Bind(s.db).QueryRowContext(ctx,
		"SELECT concept_txt FROM "+t.Name+" WHERE s_id = ?", id).Scan(&text)
	if err == sql.ErrNoRows {
		return 0, errors.NewNotFoundError("concept %s has no description", concept)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read concept %s", concept)
	}
	desc, err := s.parser.ParseDescription(string(text))
	if err != nil {
		return 0, errors.Wrapf(errors.Mark(err, errors.ErrInvalidRequest), "parse concept %s", concept)
	}

	// the concept is evaluated without its own cache
	if err := s.DeleteConceptCache(ctx, concept); err != nil {
		return 0, err
	}
	members, err := s.engine.Members(ctx, desc)
	if err != nil {
		return 0, err
	}

	err = s.writer.inTx(ctx, &WriteResult{Subject: concept, ID: id}, func(op *writeOp) error {
		for _, m := range members {
			if _, err := op.q.ExecContext(ctx,
				"INSERT INTO sem_concept_cache (s_id, o_id) VALUES (?, ?)", m, id); err != nil {
				return errors.Wrap(err, "insert concept member")
			}
		}
		return op.setConceptCache(ctx, t, id, s.now().Unix(), len(members))
	})
	if err != nil {
		return 0, errors.TransactionFailure(err, "refresh concept "+concept.String())
	}
	s.stubs.invalidate(concept)
	s.logger.Infow("Refreshed concept cache", logger.FieldSymbol, sym.OF, logger.FieldSubject, concept.String(), logger.FieldCount, len(members))
	return len(members), nil
}

// DeleteConceptCache drops the cached members of a concept
func (s *Store) DeleteConceptCache(ctx context.Context, concept types.EntityRef) error {
	concept = conceptPage(concept)
	t, err := s.conceptTable()
	if err != nil {
		return err
	}
	id, err := s.ids.GetID(ctx, concept, false)
	if err != nil || id == 0 {
		return err
	}
	err = s.writer.inTx(ctx, &WriteResult{Subject: concept, ID: id}, func(op *writeOp) error {
		if _, err := op.q.ExecContext(ctx, "DELETE FROM sem_concept_cache WHERE o_id = ?", id); err != nil {
			return errors.Wrap(err, "delete concept members")
		}
		return op.setConceptCache(ctx, t, id, 0, 0)
	})
	if err != nil {
		return errors.TransactionFailure(err, "delete concept cache "+concept.String())
	}
	s.stubs.invalidate(concept)
	return nil
}

// setConceptCache updates the cache columns of the concept row and keeps
// the table hash in step with the stored row
func (op *writeOp) setConceptCache(ctx context.Context, t *catalog.TableDefinition, id, date int64, count int) error {
	res, err := op.q.ExecContext(ctx,
		"UPDATE "+t.Name+" SET cache_date = ?, cache_count = ? WHERE s_id = ?", date, count, id)
	if err != nil {
		return errors.Wrap(err, "update concept cache state")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	rows, err := op.storedRows(ctx, t, id)
	if err != nil {
		return err
	}
	hashes, err := op.ids.GetTableHashes(ctx, id)
	if err != nil {
		return err
	}
	if hashes == nil {
		// unknown hashes stay unknown
		return nil
	}
	hashes[t.Name] = RowSetHash(rows)
	return op.ids.SetTableHashes(ctx, id, hashes)
}

// ConceptMembers lists the members of a concept, from the cache while it
// is fresh
func (s *Store) ConceptMembers(ctx context.Context, concept types.EntityRef) ([]types.WikiPage, error) {
	res, err := s.engine.Ask(ctx, ask.Query{Description: ask.ConceptRef{Concept: conceptPage(concept)}, Limit: -1})
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}
