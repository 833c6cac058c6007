package realtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteBlockStore reads the blocks table of a migrated SQLite database.
type SQLiteBlockStore struct {
	db *sql.DB
}

// NewSQLiteBlockStore wraps db. The caller owns db.
func NewSQLiteBlockStore(db *sql.DB) (*SQLiteBlockStore, error) {
	if db == nil {
		return nil, errors.New("realtime: nil db")
	}
	return &SQLiteBlockStore{db: db}, nil
}

// BlockedWith implements BlockStore.
func (s *SQLiteBlockStore) BlockedWith(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT blocked_id FROM blocks WHERE blocker_id = ?1
		UNION
		SELECT blocker_id FROM blocks WHERE blocked_id = ?1`, userID)
	if err != nil {
		return nil, fmt.Errorf("realtime: query blocks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("realtime: scan blocks: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
