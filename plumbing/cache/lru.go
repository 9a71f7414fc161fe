package cache

import (
	"github.com/golang/groupcache/lru"

	"github.com/go-packdb/packdb/plumbing"
)

// LRU is a DecodeEntry bounded by a fixed number of slots.
type LRU struct {
	c *lru.Cache
}

// NewLRU returns a cache holding at most the given number of decoded
// entries, evicting the least recently used.
func NewLRU(slots int) *LRU {
	return &LRU{c: lru.New(slots)}
}

func (l *LRU) Put(packID uint32, offset uint64, obj plumbing.RawObject) {
	l.c.Add(key{packID, offset}, obj)
}

func (l *LRU) Get(packID uint32, offset uint64) (plumbing.RawObject, bool) {
	v, ok := l.c.Get(key{packID, offset})
	if !ok {
		return plumbing.RawObject{}, false
	}
	return v.(plumbing.RawObject), true
}

func (l *LRU) Clear() {
	l.c.Clear()
}

// MemoryLRU is a DecodeEntry bounded by the total size of the cached
// object data, evicting the least recently used entries until the
// budget is met.
type MemoryLRU struct {
	max  FileSize
	used FileSize
	c    *lru.Cache
}

// NewMemoryLRU returns a cache bounded by max bytes of object data.
func NewMemoryLRU(max FileSize) *MemoryLRU {
	m := &MemoryLRU{max: max}
	m.c = lru.New(0)
	m.c.OnEvicted = func(_ lru.Key, value interface{}) {
		m.used -= FileSize(len(value.(plumbing.RawObject).Data))
	}
	return m
}

func (m *MemoryLRU) Put(packID uint32, offset uint64, obj plumbing.RawObject) {
	sz := FileSize(len(obj.Data))
	if sz > m.max {
		// Objects larger than the whole budget are never cached.
		return
	}

	k := key{packID, offset}
	if old, ok := m.c.Get(k); ok {
		m.used -= FileSize(len(old.(plumbing.RawObject).Data))
	}

	m.c.Add(k, obj)
	m.used += sz

	for m.used > m.max {
		m.c.RemoveOldest()
	}
}

func (m *MemoryLRU) Get(packID uint32, offset uint64) (plumbing.RawObject, bool) {
	v, ok := m.c.Get(key{packID, offset})
	if !ok {
		return plumbing.RawObject{}, false
	}
	return v.(plumbing.RawObject), true
}

func (m *MemoryLRU) Clear() {
	m.c.Clear()
	m.used = 0
}
