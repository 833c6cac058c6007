package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"lobby/cmd/identity"
	"lobby/cmd/internal/storage"
	"lobby/cmd/security/password"
	"lobby/cmd/security/token"

	"github.com/stretchr/testify/require"
)

const (
	deviceA = "5f0c8c4e-1b2a-4c3d-9e8f-0a1b2c3d4e5f"
	deviceB = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

type harness struct {
	db    *sql.DB
	users *identity.SQLiteStore
	store *SQLiteStore
	svc   *Service
	cfg   Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users, err := identity.NewSQLiteStore(db)
	require.NoError(t, err)

	cfg := testConfig()
	store, err := NewSQLiteStore(db, token.NewHasher([]byte("hmac-key-0123456789abcdef0123456789")), cfg.SecretBytes)
	require.NoError(t, err)

	tokens, err := NewTokenManager(cfg)
	require.NoError(t, err)

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1

	return &harness{
		db:    db,
		users: users,
		store: store,
		svc:   NewService(cfg, users, identity.NewArgon2idHasher(pw), store, tokens),
		cfg:   cfg,
	}
}

func (h *harness) register(t *testing.T, username string) identity.User {
	t.Helper()
	u, err := h.svc.Register(context.Background(), time.Now().UTC(), RegisterInput{
		Username: username,
		Email:    username + "@lobby.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return u
}

func (h *harness) login(t *testing.T, username, deviceID string, now time.Time) Issued {
	t.Helper()
	iss, err := h.svc.Login(context.Background(), now, LoginInput{
		Username:  username,
		Password:  "correct horse battery",
		DeviceID:  deviceID,
		IP:        "203.0.113.7",
		UserAgent: "lobby-test/1.0",
	})
	require.NoError(t, err)
	return iss
}

func (h *harness) validCount(t *testing.T, userID, deviceID string) int {
	t.Helper()
	var n int
	err := h.db.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND device_id = ? AND valid = 1`,
		userID, deviceID,
	).Scan(&n)
	require.NoError(t, err)
	return n
}

func (h *harness) rowCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n))
	return n
}
