package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUStats(t *testing.T) {
	c, err := NewLRU[string, int](2)
	require.NoError(t, err)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Add("a", 1)
	c.Add("b", 2)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// "b" is now least recently used
	c.Add("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(2), s.Misses)
	assert.Equal(t, uint64(1), s.Evictions)
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, 2, s.Capacity)
	assert.InDelta(t, 1.0/3.0, s.HitRate(), 1e-9)
}

func TestLRUInvalidCapacity(t *testing.T) {
	_, err := NewLRU[string, int](0)
	assert.Error(t, err)
}

func TestGetOrCreate(t *testing.T) {
	c, err := NewLRU[string, string](4)
	require.NoError(t, err)

	calls := 0
	create := func() (string, error) {
		calls++
		return "compiled", nil
	}

	v, hit, err := c.GetOrCreate("k", create)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "compiled", v)

	v, hit, err = c.GetOrCreate("k", create)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "compiled", v)
	assert.Equal(t, 1, calls)

	_, _, err = c.GetOrCreate("bad", func() (string, error) { return "", errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestPurgeKeepsCounters(t *testing.T) {
	c, err := NewLRU[int, int](8)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		c.Add(i, i)
		c.Get(i)
	}
	c.Purge()
	s := c.Stats()
	assert.Equal(t, 0, s.Size)
	assert.Equal(t, uint64(4), s.Hits)
	assert.Equal(t, uint64(0), s.Evictions)
}

func TestConcurrentAccess(t *testing.T) {
	c, err := NewLRU[string, int](16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (i+w)%32)
				c.GetOrCreate(key, func() (int, error) { return i, nil })
			}
		}(w)
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, uint64(8*200), s.Hits+s.Misses)
	assert.LessOrEqual(t, s.Size, 16)
}

func TestContentHash(t *testing.T) {
	h := ContentHash("(identifier) @name")
	assert.Len(t, h, 16)
	assert.Equal(t, h, ContentHash("(identifier) @name"))
	assert.NotEqual(t, h, ContentHash("(identifier) @other"))
}
