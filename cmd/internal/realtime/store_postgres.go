package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBlockStore reads lobby.blocks. It does not own the pool.
type PostgresBlockStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresBlockStore.
type PostgresOption func(*PostgresBlockStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the blocks table (default "lobby").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresBlockStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("realtime: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresBlockStore constructs a Postgres-backed BlockStore.
func NewPostgresBlockStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresBlockStore, error) {
	st := &PostgresBlockStore{pool: pool, schema: "lobby"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("realtime: nil pool")
	}
	return st, nil
}

// BlockedWith implements BlockStore.
func (s *PostgresBlockStore) BlockedWith(ctx context.Context, userID string) (map[string]struct{}, error) {
	table := pgx.Identifier{s.schema, "blocks"}.Sanitize()
	rows, err := s.pool.Query(ctx, `
		SELECT blocked_id FROM `+table+` WHERE blocker_id = $1
		UNION
		SELECT blocker_id FROM `+table+` WHERE blocked_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("realtime: query blocks: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("realtime: scan blocks: %w", err)
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
