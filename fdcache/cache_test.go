package fdcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedFDs(t *testing.T) (Closer, func() []int) {
	t.Helper()
	var closed []int
	return func(fd int) { closed = append(closed, fd) }, func() []int { return closed }
}

func TestCacheAcquireReleaseRoundTrip(t *testing.T) {
	closeFn, closed := closedFDs(t)
	c := New[string](8, closeFn)

	c.Put("a", 10)
	fd, ok := c.Acquire("a")
	require.True(t, ok)
	assert.Equal(t, 10, fd)

	// A pinned slot can't be the eviction victim.
	assert.False(t, c.EvictOne() && len(closed()) > 0)

	c.Release("a")
	assert.Empty(t, closed())
}

func TestCacheEvictOneOnlyTargetsUnpinned(t *testing.T) {
	closeFn, closed := closedFDs(t)
	c := New[string](8, closeFn)

	c.Put("a", 1)
	c.Put("b", 2)
	_, ok := c.Acquire("a")
	require.True(t, ok)

	require.True(t, c.EvictOne())
	assert.Equal(t, []int{2}, closed())

	require.False(t, c.EvictOne()) // only "a" remains, and it's pinned
}

func TestCacheEnforcesSoftCapacity(t *testing.T) {
	closeFn, closed := closedFDs(t)
	c := New[string](2, closeFn)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []int{1}, closed()) // oldest unpinned slot evicted
}

func TestCacheAcquireMissAfterEviction(t *testing.T) {
	closeFn, _ := closedFDs(t)
	c := New[string](1, closeFn)

	c.Put("a", 1)
	c.Put("b", 2) // evicts "a"

	_, ok := c.Acquire("a")
	assert.False(t, ok)
}

func TestCacheCloseAllClosesEveryRemainingSlotRegardlessOfPin(t *testing.T) {
	closeFn, closed := closedFDs(t)
	c := New[string](8, closeFn)

	c.Put("a", 1)
	c.Put("b", 2)
	_, ok := c.Acquire("a") // pin "a"
	require.True(t, ok)

	c.CloseAll()
	assert.ElementsMatch(t, []int{1, 2}, closed())
	assert.Equal(t, 0, c.Len())
}
