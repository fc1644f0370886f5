package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	N int `json:"n"`
}

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()
	p := "round:" + uuid.NewString() + ":"

	var got payload
	ok, err := c.Get(ctx, p+"a", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, p+"a", payload{N: 1}, 0))
	require.NoError(t, c.Set(ctx, p+"b", payload{N: 2}, time.Minute))
	require.NoError(t, c.Set(ctx, "other:c", payload{N: 3}, time.Minute))

	ok, err = c.Get(ctx, p+"a", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, got.N)

	require.NoError(t, c.DeletePrefix(ctx, p))
	ok, _ = c.Get(ctx, p+"b", &got)
	assert.False(t, ok)
	ok, _ = c.Get(ctx, "other:c", &got)
	assert.True(t, ok)
}

func TestMemory(t *testing.T) {
	exerciseCache(t, NewMemory())
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	now := time.Unix(100, 0)
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(context.Background(), "k", payload{N: 1}, time.Second))
	now = now.Add(2 * time.Second)
	var got payload
	ok, err := c.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	c, err := NewRedis(context.Background(), url, "grantguard-test:")
	require.NoError(t, err)
	defer c.Close()
	exerciseCache(t, c)
}
