package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteBackend_ReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	_, ok, err := b.Read(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Write(ctx, "k", []byte("old")))
	require.NoError(t, b.Write(ctx, "k", []byte("new")))

	v, ok, err := b.Read(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)

	require.NoError(t, b.Delete(ctx, "k"))
	_, ok, err = b.Read(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteBackend_Clear(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Write(ctx, "a", []byte("1")))
	require.NoError(t, b.Write(ctx, "b", []byte("2")))
	require.NoError(t, b.Clear(ctx))

	for _, key := range []string{"a", "b"} {
		_, ok, err := b.Read(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "key %s should be cleared", key)
	}
}

func TestSQLiteBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	clock := newFakeClock()
	b, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	store := New(b, WithClock(clock.Now))
	require.NoError(t, store.Set(ctx, CollectionKey, []string{"v1", "v2"}))
	require.NoError(t, b.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	clock.Advance(time.Minute)
	store = New(reopened, WithClock(clock.Now))

	var ids []string
	require.True(t, store.Get(ctx, CollectionKey, &ids))
	assert.Equal(t, []string{"v1", "v2"}, ids)
}

func TestSQLiteBackend_ExpiryPurgesRow(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	clock := newFakeClock()
	store := New(b, WithClock(clock.Now))
	require.NoError(t, store.Set(ctx, CollectionKey, []string{"v1"}))

	clock.Advance(11 * time.Minute)
	var ids []string
	assert.False(t, store.Get(ctx, CollectionKey, &ids))

	_, ok, err := b.Read(ctx, CollectionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "cache.db", filepath.Base(path))
	assert.Equal(t, "rent-compass", filepath.Base(filepath.Dir(path)))
}
