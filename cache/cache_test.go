package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := New[string](50*time.Millisecond, 0)
	defer c.Close()

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(80 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should have expired")
}

func TestTTLCacheStats(t *testing.T) {
	c := New[int](time.Minute, 0)
	defer c.Close()

	c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

func TestTTLCacheMaxSizeEvicts(t *testing.T) {
	c := New[int](time.Minute, 2)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	count := 0
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := c.Get(k); ok {
			count++
		}
	}
	assert.LessOrEqual(t, count, 2)
}
