package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-packdb/packdb/plumbing"
)

func obj(size int) plumbing.RawObject {
	return plumbing.RawObject{Type: plumbing.BlobObject, Data: make([]byte, size)}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewLRU(2)
	c.Put(0, 10, obj(1))
	c.Put(0, 20, obj(2))

	// Touch the first entry so the second becomes the eviction victim.
	_, ok := c.Get(0, 10)
	assert.True(t, ok)

	c.Put(0, 30, obj(3))

	_, ok = c.Get(0, 10)
	assert.True(t, ok)
	_, ok = c.Get(0, 20)
	assert.False(t, ok)
	_, ok = c.Get(0, 30)
	assert.True(t, ok)
}

func TestLRUKeysIncludePackID(t *testing.T) {
	t.Parallel()

	c := NewLRU(4)
	c.Put(1, 10, obj(1))

	_, ok := c.Get(2, 10)
	assert.False(t, ok)
	_, ok = c.Get(1, 10)
	assert.True(t, ok)
}

func TestLRUClear(t *testing.T) {
	t.Parallel()

	c := NewLRU(4)
	c.Put(0, 10, obj(1))
	c.Clear()

	_, ok := c.Get(0, 10)
	assert.False(t, ok)
}

func TestMemoryLRUStaysWithinBudget(t *testing.T) {
	t.Parallel()

	c := NewMemoryLRU(100 * Byte)
	c.Put(0, 10, obj(40))
	c.Put(0, 20, obj(40))
	c.Put(0, 30, obj(40))

	// 120 bytes exceed the budget; the oldest entry must be gone.
	_, ok := c.Get(0, 10)
	assert.False(t, ok)
	_, ok = c.Get(0, 20)
	assert.True(t, ok)
	_, ok = c.Get(0, 30)
	assert.True(t, ok)
	assert.LessOrEqual(t, c.used, FileSize(100))
}

func TestMemoryLRUSkipsOversizedObjects(t *testing.T) {
	t.Parallel()

	c := NewMemoryLRU(100 * Byte)
	c.Put(0, 10, obj(150))

	_, ok := c.Get(0, 10)
	assert.False(t, ok)
	assert.Equal(t, FileSize(0), c.used)
}

func TestMemoryLRUReplaceAccountsOldSize(t *testing.T) {
	t.Parallel()

	c := NewMemoryLRU(100 * Byte)
	c.Put(0, 10, obj(60))
	c.Put(0, 10, obj(30))

	got, ok := c.Get(0, 10)
	assert.True(t, ok)
	assert.Len(t, got.Data, 30)
	assert.Equal(t, FileSize(30), c.used)
}

func TestMemoryLRUClear(t *testing.T) {
	t.Parallel()

	c := NewMemoryLRU(MiByte)
	c.Put(0, 10, obj(64))
	c.Clear()

	_, ok := c.Get(0, 10)
	assert.False(t, ok)
	assert.Equal(t, FileSize(0), c.used)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var c Noop
	c.Put(0, 10, obj(1))
	_, ok := c.Get(0, 10)
	assert.False(t, ok)
	c.Clear()
}
