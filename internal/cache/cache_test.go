package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Total int      `json:"total"`
	Keys  []string `json:"keys"`
}

func TestKey(t *testing.T) {
	assert.Equal(t, "attribution:linear:-:2026-01-01", Key("attribution", "linear", "", "2026-01-01"))
}

func TestMemoryCache_RoundTripAndExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", report{Total: 3, Keys: []string{"google"}}, time.Minute))

	var got report
	hit, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, report{Total: 3, Keys: []string{"google"}}, got)

	now = now.Add(2 * time.Minute)

	hit, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Bounded(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("expired entries are swept once full", func(t *testing.T) {
		c := NewMemoryCache()
		c.now = func() time.Time { return now }

		for i := 0; i < 10000; i++ {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("report:%d", i), report{Total: i}, time.Minute))
		}
		assert.Equal(t, DefaultMemoryEntries, c.Len())

		later := now.Add(24 * time.Hour)
		c.now = func() time.Time { return later }

		require.NoError(t, c.Set(ctx, "fresh", report{Total: 1}, time.Minute))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("soonest expiry is evicted when nothing has expired", func(t *testing.T) {
		c := NewMemoryCache()
		c.maxEntries = 2
		c.now = func() time.Time { return now }

		require.NoError(t, c.Set(ctx, "short", report{Total: 1}, time.Minute))
		require.NoError(t, c.Set(ctx, "long", report{Total: 2}, time.Hour))
		require.NoError(t, c.Set(ctx, "new", report{Total: 3}, time.Hour))

		assert.Equal(t, 2, c.Len())

		var got report
		hit, err := c.Get(ctx, "short", &got)
		require.NoError(t, err)
		assert.False(t, hit)

		hit, err = c.Get(ctx, "long", &got)
		require.NoError(t, err)
		assert.True(t, hit)
	})

	t.Run("overwriting a key never evicts", func(t *testing.T) {
		c := NewMemoryCache()
		c.maxEntries = 1
		c.now = func() time.Time { return now }

		require.NoError(t, c.Set(ctx, "k", report{Total: 1}, time.Minute))
		require.NoError(t, c.Set(ctx, "k", report{Total: 2}, time.Minute))

		var got report
		hit, err := c.Get(ctx, "k", &got)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, 2, got.Total)
	})
}

func TestLoad_BuildsOnceThenHits(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	builds := 0

	build := func(context.Context) (report, error) {
		builds++
		return report{Total: builds}, nil
	}

	first, err := Load(ctx, c, "r", time.Minute, build)
	require.NoError(t, err)

	second, err := Load(ctx, c, "r", time.Minute, build)
	require.NoError(t, err)

	assert.Equal(t, 1, builds)
	assert.Equal(t, first, second)
}

func TestLoad_NilCacheAndBuildError(t *testing.T) {
	ctx := context.Background()

	got, err := Load(ctx, nil, "r", time.Minute, func(context.Context) (report, error) {
		return report{Total: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got.Total)

	c := NewMemoryCache()
	_, err = Load(ctx, c, "r", time.Minute, func(context.Context) (report, error) {
		return report{}, errors.New("store down")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestRedisCache(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	client, err := NewRedisClient(redisURL)
	require.NoError(t, err)

	c := NewRedisCache(client)
	defer c.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "test:redis", report{Total: 2}, time.Minute))

	var got report
	hit, err := c.Get(ctx, "test:redis", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, got.Total)

	hit, err = c.Get(ctx, "test:missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
