package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/spawn-mesh/internal/identity"
)

// LoadUID returns the saved anonymous uid, or identity.ErrNoUID.
func (s *SQLiteStore) LoadUID(ctx context.Context) (string, error) {
	var uid string
	err := s.db.QueryRowContext(ctx, `SELECT uid FROM identity WHERE slot = 1`).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", identity.ErrNoUID
	}
	if err != nil {
		return "", fmt.Errorf("load uid: %w", err)
	}
	return uid, nil
}

// SaveUID stores uid unless one is already saved, then returns the saved
// uid. Concurrent first sign-ins all end up with the same winner.
func (s *SQLiteStore) SaveUID(ctx context.Context, uid string) (string, error) {
	now := s.clock.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO identity (slot, uid, created_at) VALUES (1, ?, ?)`, uid, now)
	if err != nil {
		return "", fmt.Errorf("save uid: %w", err)
	}
	return s.LoadUID(ctx)
}
