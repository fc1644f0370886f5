package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

func exerciseStore(t *testing.T, s VersionedDocumentStore) {
	t.Helper()
	ctx := context.Background()
	key := RoundKey(uuid.NewString(), ClusterDoc)

	_, err := s.Get(ctx, key)
	assert.ErrorIs(t, err, model.ErrNotFound)

	v1, err := s.Put(ctx, key, []byte(`{}`), "")
	require.NoError(t, err)

	// second create loses
	_, err = s.Put(ctx, key, []byte(`{"x":1}`), "")
	assert.ErrorIs(t, err, model.ErrStoreConflict)

	doc, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(doc.Content))
	assert.Equal(t, v1, doc.Version)

	v2, err := s.Put(ctx, key, []byte(`{"a":1}`), v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	// stale writer
	_, err = s.Put(ctx, key, []byte(`{"b":2}`), v1)
	assert.ErrorIs(t, err, model.ErrStoreConflict)

	doc, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(doc.Content))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRocksStore(t *testing.T) {
	s, err := OpenRocks(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestUpdateSurfacesConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := RoundKey("1", RecycleDoc)

	require.NoError(t, Update(ctx, s, key, func(cur []byte, exists bool) ([]byte, error) {
		assert.False(t, exists)
		return []byte(`{}`), nil
	}))

	err := Update(ctx, s, key, func(cur []byte, exists bool) ([]byte, error) {
		assert.True(t, exists)
		// a concurrent writer sneaks in between read and write
		doc, err := s.Get(ctx, key)
		require.NoError(t, err)
		_, err = s.Put(ctx, key, []byte(`{"other":1}`), doc.Version)
		require.NoError(t, err)
		return []byte(`{"mine":1}`), nil
	})
	assert.ErrorIs(t, err, model.ErrStoreConflict)

	doc, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"other":1}`, string(doc.Content))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "etcd"})
	assert.Error(t, err)
}
