package storage

import (
	"context"
	"database/sql"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/ids"
	"github.com/teranos/semstore/sem/types"
)

// PropertyUsage is the number of stored values of one property
type PropertyUsage struct {
	Property string `json:"property"`
	ID       int64  `json:"id"`
	Usage    int64  `json:"usage"`
}

// Statistics summarizes the store contents
type Statistics struct {
	Subjects   int64            `json:"subjects"`
	Subobjects int64            `json:"subobjects"`
	Redirects  int64            `json:"redirects"`
	Properties []PropertyUsage  `json:"properties"`
	Tables     map[string]int64 `json:"tables"`
}

// Statistics counts subjects, redirects, property usage and rows per table
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	q := s.dialect.Bind(s.db)
	stats := &Statistics{Tables: make(map[string]int64)}

	err := q.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN subobject = '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN subobject <> '' THEN 1 ELSE 0 END), 0)
		FROM sem_ids WHERE interwiki NOT LIKE ? AND id > ?`,
		ids.ReservedInterwikiPattern, ids.BorderID).Scan(&stats.Subjects, &stats.Subobjects)
	if err != nil {
		return nil, errors.Wrap(err, "count subjects")
	}
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ids.RedirectTable).Scan(&stats.Redirects); err != nil {
		return nil, errors.Wrap(err, "count redirects")
	}

	rows, err := q.QueryContext(ctx, `SELECT st.p_id, p.title, st.usage_count
		FROM sem_prop_stats st JOIN sem_ids p ON p.id = st.p_id
		WHERE st.usage_count > 0 AND p.namespace = ?
		ORDER BY st.usage_count DESC, p.title`, types.NSProperty)
	if err != nil {
		return nil, errors.Wrap(err, "read property usage")
	}
	defer rows.Close()
	for rows.Next() {
		var u PropertyUsage
		if err := rows.Scan(&u.ID, &u.Property, &u.Usage); err != nil {
			return nil, errors.Wrap(err, "scan property usage")
		}
		stats.Properties = append(stats.Properties, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate property usage")
	}

	for _, t := range s.catalog.Tables() {
		var n int64
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.Name).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "count %s", t.Name)
		}
		stats.Tables[t.Name] = n
	}
	return stats, nil
}

// Usage returns the stored usage count of a property
func (s *Store) Usage(ctx context.Context, key string) (int64, error) {
	pid, err := s.ids.GetID(ctx, types.NewProperty(key).Page(), false)
	if err != nil || pid == 0 {
		return 0, err
	}
	var n int64
	err = s.dialect.Bind(s.db).QueryRowContext(ctx,
		"SELECT usage_count FROM sem_prop_stats WHERE p_id = ?", pid).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "read usage")
	}
	return n, nil
}
