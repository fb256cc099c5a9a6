package favorites

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtd-arrivals/internal/db"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "favorites.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	s := NewSQLiteStore(conn)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func exerciseStore(t *testing.T, s Store, owner string) {
	ctx := context.Background()

	ids, err := s.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)

	require.NoError(t, s.Add(ctx, owner, "IU"))
	require.NoError(t, s.Add(ctx, owner, "GRNWRT"))
	require.NoError(t, s.Add(ctx, owner, "IU")) // duplicate is a no-op

	ids, err = s.List(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"IU", "GRNWRT"}, ids)

	ok, err := s.Contains(ctx, owner, "IU")
	require.NoError(t, err)
	assert.True(t, ok)

	on, err := s.Toggle(ctx, owner, "IU")
	require.NoError(t, err)
	assert.False(t, on)
	on, err = s.Toggle(ctx, owner, "ISR")
	require.NoError(t, err)
	assert.True(t, on)

	ids, err = s.List(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"GRNWRT", "ISR"}, ids)

	require.NoError(t, s.Remove(ctx, owner, "GRNWRT"))
	require.NoError(t, s.Remove(ctx, owner, "missing"))
	ids, err = s.List(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"ISR"}, ids)

	require.NoError(t, s.Ping(ctx))
}

func TestSQLiteStore(t *testing.T) {
	s := newSQLiteStore(t)
	assert.Equal(t, "sqlite", s.Dialect())
	exerciseStore(t, s, DefaultOwner)
}

func TestSQLiteStoreOwnersAreSeparate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "alice", "IU"))
	require.NoError(t, s.Add(ctx, "bob", "ISR"))

	ids, err := s.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"IU"}, ids)

	ok, err := s.Contains(ctx, "bob", "IU")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStoreSchemaIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set - skipping postgres favorites test")
	}
	conn, err := db.Open(dsn)
	require.NoError(t, err)
	defer conn.Close()

	s := NewPostgresStore(conn)
	require.NoError(t, s.EnsureSchema(context.Background()))
	owner := "test-" + t.Name()
	t.Cleanup(func() {
		_, _ = conn.Exec(`DELETE FROM favorites WHERE owner = $1`, owner)
	})
	exerciseStore(t, s, owner)
}
