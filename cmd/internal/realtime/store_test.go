package realtime

import (
	"context"
	"testing"
	"time"

	"lobby/cmd/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlockStore_Bidirectional(t *testing.T) {
	s := NewMemoryBlockStore()
	s.Block("a", "b")
	s.Block("c", "a")
	s.Block("b", "c")

	got, err := s.BlockedWith(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"b": {}, "c": {}}, got)

	s.Unblock("a", "b")
	got, err = s.BlockedWith(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"c": {}}, got)
}

func TestSQLiteBlockStore_BlockedWith(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := storage.UnixMilli(time.Now())
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, username, username_norm, email, email_norm, password_hash, created_at)
			 VALUES (?, ?, ?, ?, ?, 'x', ?)`, id, id, id, id+"@x.io", id+"@x.io", now)
		require.NoError(t, err)
	}
	for _, p := range [][2]string{{"a", "b"}, {"c", "a"}, {"b", "d"}} {
		_, err := db.ExecContext(ctx,
			`INSERT INTO blocks (blocker_id, blocked_id, created_at) VALUES (?, ?, ?)`, p[0], p[1], now)
		require.NoError(t, err)
	}

	st, err := NewSQLiteBlockStore(db)
	require.NoError(t, err)

	got, err := st.BlockedWith(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"b": {}, "c": {}}, got)

	got, err = st.BlockedWith(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"http://localhost:3000", "https://Play.Example.com", "localhost", "*", ""})
	assert.Equal(t, []string{"localhost", "play.example.com"}, got)
}
