package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGet(t *testing.T) {
	c := New(10)

	c.Set("dashboard:client-1", "aggregate", []string{"client-1"})

	got, ok := c.Get("dashboard:client-1", time.Minute)
	require.True(t, ok)
	assert.Equal(t, "aggregate", got)
}

func TestGetMissingKey(t *testing.T) {
	c := New(10)

	_, ok := c.Get("nope", time.Minute)
	assert.False(t, ok)
}

func TestGetExpiredEntryIsDeleted(t *testing.T) {
	now := time.Now()
	c := New(10, WithClock(func() time.Time { return now }))

	c.Set("key", "value", nil)

	now = now.Add(2 * time.Minute)

	_, ok := c.Get("key", time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	// A later, more permissive lookup still misses: the entry is gone.
	_, ok = c.Get("key", time.Hour)
	assert.False(t, ok)
}

func TestInvalidateByDependency(t *testing.T) {
	c := New(10)

	c.Set("dash:c1:jan", "v1", []string{"client-1", "facebook-c1"})
	c.Set("dash:c1:feb", "v2", []string{"client-1"})
	c.Set("dash:c2:jan", "v3", []string{"client-2"})

	n := c.Invalidate("client-1")
	assert.Equal(t, 2, n)

	_, ok := c.Get("dash:c1:jan", time.Hour)
	assert.False(t, ok)
	_, ok = c.Get("dash:c1:feb", time.Hour)
	assert.False(t, ok)

	// Unrelated client untouched.
	_, ok = c.Get("dash:c2:jan", time.Hour)
	assert.True(t, ok)
}

func TestInvalidateUnknownDependency(t *testing.T) {
	c := New(10)

	assert.Equal(t, 0, c.Invalidate("no-such-tag"))
}

func TestInvalidateAfterOverwrite(t *testing.T) {
	c := New(10)

	c.Set("key", "v1", []string{"old-dep"})
	c.Set("key", "v2", []string{"new-dep"})

	// Old dependency no longer owns the key.
	assert.Equal(t, 0, c.Invalidate("old-dep"))

	got, ok := c.Get("key", time.Hour)
	require.True(t, ok)
	assert.Equal(t, "v2", got)

	assert.Equal(t, 1, c.Invalidate("new-dep"))
}

func TestCapacityEvictsLeastUsed(t *testing.T) {
	c := New(3)

	c.Set("a", 1, nil)
	c.Set("b", 2, nil)
	c.Set("c", 3, nil)

	// Touch everything except "b" so it has the lowest access count.
	for i := 0; i < 3; i++ {
		_, ok := c.Get("a", time.Hour)
		require.True(t, ok)
	}

	_, ok := c.Get("c", time.Hour)
	require.True(t, ok)

	c.Set("d", 4, nil)

	assert.Equal(t, 3, c.Len())

	_, ok = c.Get("b", time.Hour)
	assert.False(t, ok, "least-used entry should have been evicted")

	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key, time.Hour)
		assert.True(t, ok, "entry %q should survive eviction", key)
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := New(2)

	c.Set("a", 1, nil)
	c.Set("b", 2, nil)
	c.Set("a", 10, nil)

	assert.Equal(t, 2, c.Len())

	got, ok := c.Get("a", time.Hour)
	require.True(t, ok)
	assert.Equal(t, 10, got)
}

func TestVersionIncrementsPerWrite(t *testing.T) {
	c := New(10)

	before := c.Version()

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, nil)
	}

	assert.Equal(t, before+5, c.Version())
}

func TestClear(t *testing.T) {
	c := New(10)

	c.Set("a", 1, []string{"dep"})
	c.Set("b", 2, nil)

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Invalidate("dep"))
}
