package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"glance/internal/cache"
)

func TestTTLCache(t *testing.T) {
	t.Run("returns stored values before expiry", func(t *testing.T) {
		c := cache.NewTTLCache(time.Minute)
		c.Set("k", 42)

		got, ok := c.Get("k")
		assert.True(t, ok)
		assert.Equal(t, 42, got)
	})

	t.Run("expired entries are misses", func(t *testing.T) {
		c := cache.NewTTLCache(time.Minute)
		c.SetWithTTL("k", 1, -time.Second)

		_, ok := c.Get("k")
		assert.False(t, ok)
	})

	t.Run("set refreshes expiry", func(t *testing.T) {
		c := cache.NewTTLCache(time.Minute)
		c.SetWithTTL("k", 1, -time.Second)
		c.Set("k", 2)

		got, ok := c.Get("k")
		assert.True(t, ok)
		assert.Equal(t, 2, got)
	})

	t.Run("delete removes a single key", func(t *testing.T) {
		c := cache.NewTTLCache(time.Minute)
		c.Set("a", 1)
		c.Set("b", 2)
		c.Delete("a")

		_, ok := c.Get("a")
		assert.False(t, ok)
		_, ok = c.Get("b")
		assert.True(t, ok)
	})
}

func TestDeletePrefix(t *testing.T) {
	c := cache.NewTTLCache(time.Minute)
	c.Set("7:sessions:0:0", 1)
	c.Set("7:metrics:0:0", 2)
	c.Set("7:active", 3)
	c.Set("70:sessions:0:0", 4)

	removed := c.DeletePrefix("7:")
	assert.Equal(t, 3, removed)

	_, ok := c.Get("70:sessions:0:0")
	assert.True(t, ok, "other websites' entries must survive")
	assert.Equal(t, 1, c.Len())
}

func TestSweep(t *testing.T) {
	c := cache.NewTTLCache(time.Minute)
	c.SetWithTTL("old", 1, time.Second)
	c.Set("fresh", 2)

	evicted := c.Sweep(time.Now().Add(30 * time.Second))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("fresh")
	assert.True(t, ok)
}
