package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetExpire(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	c.Set("a", 1)
	c.SetWithTTL("b", 2, 10*time.Millisecond)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("b")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCache_SetIf(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()
	notOlder := func(cached, incoming int) bool { return cached <= incoming }

	assert.Equal(t, 2, c.SetIf("k", 2, notOlder))
	assert.Equal(t, 2, c.SetIf("k", 1, notOlder))
	v, _ := c.Get("k")
	assert.Equal(t, 2, v)

	assert.Equal(t, 3, c.SetIf("k", 3, notOlder))
	assert.Equal(t, 0, c.SetIf("k", 0, nil))

	// expired entries never block a write
	c.SetWithTTL("e", 9, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, c.SetIf("e", 1, notOlder))
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Stop()
	ctx := context.Background()

	loads := 0
	load := func(context.Context) (string, error) {
		loads++
		return "loaded", nil
	}

	v, err := c.GetOrLoad(ctx, "k", load, nil)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	_, _ = c.GetOrLoad(ctx, "k", load, nil)
	assert.Equal(t, 1, loads)

	boom := errors.New("boom")
	_, err = c.GetOrLoad(ctx, "bad", func(context.Context) (string, error) { return "", boom }, nil)
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("bad")
	assert.False(t, ok)
}

func TestCache_GetOrLoadKeepsConcurrentWrite(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Stop()

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
		// a writer lands while the load is in flight
		c.Set("k", 2)
		return 1, nil
	}, func(cached, incoming int) bool { return cached <= incoming })
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	cached, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, cached)
}
