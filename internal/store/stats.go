package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string       `json:"db_path"`
	DBSizeBytes int64        `json:"db_size_bytes"`
	NS          string       `json:"ns"`
	TotalEvents int          `json:"total_events"`
	Kinds       []CountStats `json:"kinds"`
	Actors      []CountStats `json:"actors"`
}

// CountStats is a labelled event count.
type CountStats struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// NamespaceStats holds per-namespace counts.
type NamespaceStats struct {
	NS     string `json:"ns"`
	Count  int    `json:"count"`
	Actors int    `json:"actors"`
}

// Stats returns event statistics for ns.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath, ns string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, NS: ns, Kinds: []CountStats{}, Actors: []CountStats{}}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mesh_events WHERE ns = ?`, ns).Scan(&st.TotalEvents); err != nil {
		return st, err
	}

	var err error
	st.Kinds, err = s.countBy(ctx, "kind", ns)
	if err != nil {
		return st, err
	}
	st.Actors, err = s.countBy(ctx, "actor", ns)
	return st, err
}

// countBy groups events in ns by col, which must be a trusted column name.
func (s *SQLiteStore) countBy(ctx context.Context, col, ns string) ([]CountStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+col+`, COUNT(*) AS cnt FROM mesh_events WHERE ns = ?
		 GROUP BY `+col+` ORDER BY cnt DESC, `+col, ns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CountStats{}
	for rows.Next() {
		var c CountStats
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListNamespaces returns every namespace with events.
func (s *SQLiteStore) ListNamespaces(ctx context.Context) ([]NamespaceStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ns, COUNT(*) AS cnt, COUNT(DISTINCT actor) AS actors
		FROM mesh_events GROUP BY ns ORDER BY cnt DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []NamespaceStats{}
	for rows.Next() {
		var n NamespaceStats
		if err := rows.Scan(&n.NS, &n.Count, &n.Actors); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
