package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "PROVISIONING_CODE")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "PROVISIONING_CODE", "ABC123"))
	v, err := s.Get(ctx, "PROVISIONING_CODE")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", v)

	require.NoError(t, s.Set(ctx, "PROVISIONING_CODE", "XYZ789"))
	v, err = s.Get(ctx, "PROVISIONING_CODE")
	require.NoError(t, err)
	assert.Equal(t, "XYZ789", v)

	require.NoError(t, s.Remove(ctx, "PROVISIONING_CODE"))
	_, err = s.Get(ctx, "PROVISIONING_CODE")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Remove(ctx, "NEVER_SET"))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)

	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pillow.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Set(context.Background(), "ACCESS", "token"))
	require.NoError(t, s.Close())

	// survives a reopen, like a page reload
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(context.Background(), "ACCESS")
	require.NoError(t, err)
	assert.Equal(t, "token", v)
}

func TestOpen(t *testing.T) {
	s, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open("redis", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	lite := &SQLStore{driver: "sqlite"}

	q := "INSERT INTO t (a, b) VALUES (?, ?)"
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}
