package store

import (
	"context"
	"strings"

	"github.com/rcliao/spawn-mesh/internal/model"
)

// likeEscaper makes a query match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search finds events whose text, kind or tags contain the query substring.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.MeshEvent, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	q := strings.TrimSpace(p.Query)
	if q == "" {
		return s.List(ctx, ListParams{NS: p.NS, Limit: limit})
	}
	like := "%" + likeEscaper.Replace(q) + "%"

	return s.queryEvents(ctx, `
		SELECT id, ns, kind, text, tags, actor, ts, ver
		FROM mesh_events
		WHERE ns = ? AND (text LIKE ? ESCAPE '\' OR kind LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')
		ORDER BY ts DESC, id DESC
		LIMIT ?`, p.NS, like, like, like, limit)
}
