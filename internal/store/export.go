package store

import (
	"context"
	"strings"

	"github.com/rcliao/spawn-mesh/internal/model"
)

// ExportAll returns every event, oldest first, optionally filtered by
// namespace.
func (s *SQLiteStore) ExportAll(ctx context.Context, ns string) ([]model.MeshEvent, error) {
	where := []string{"1 = 1"}
	args := []interface{}{}

	if ns != "" {
		where = append(where, "ns = ?")
		args = append(args, ns)
	}

	query := `SELECT id, ns, kind, text, tags, actor, ts, ver
	          FROM mesh_events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ns, ts, id`

	return s.queryEvents(ctx, query, args...)
}

// Import re-appends exported events. The store assigns fresh ids and
// timestamps, so imported events land at the head of the log in their
// original relative order. Events without a namespace go to ns.
func (s *SQLiteStore) Import(ctx context.Context, ns string, events []model.MeshEvent) (int, error) {
	imported := 0
	for _, e := range events {
		target := e.NS
		if target == "" {
			target = ns
		}
		_, err := s.Append(ctx, AppendParams{
			NS:      target,
			Kind:    e.Kind,
			Text:    e.Text,
			Tags:    e.Tags,
			Actor:   e.Actor,
			Version: e.Version,
		})
		if err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
