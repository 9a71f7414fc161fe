// Package cache provides the pluggable caches consulted before
// decompressing and un-delta-ing packed entries. None of the
// implementations lock internally: the intended sharing model is one
// cache per worker, with callers adding external synchronization when
// a cache must be shared.
package cache

import "github.com/go-packdb/packdb/plumbing"

const (
	Byte FileSize = 1 << (iota * 10)
	KiByte
	MiByte
	GiByte
)

// FileSize is an amount of memory in bytes.
type FileSize int64

// DecodeEntry caches fully decoded pack entries, keyed by the pack they
// live in and their offset inside it. Stored objects are owned by the
// cache; callers must copy Data before mutating their own buffers.
type DecodeEntry interface {
	// Put stores a decoded entry.
	Put(packID uint32, offset uint64, obj plumbing.RawObject)
	// Get retrieves a previously stored entry, if still present.
	Get(packID uint32, offset uint64) (plumbing.RawObject, bool)
	// Clear drops all entries.
	Clear()
}

// key identifies one pack entry across all packs of a store.
type key struct {
	packID uint32
	offset uint64
}

// Noop is a DecodeEntry that never caches anything.
type Noop struct{}

func (Noop) Put(uint32, uint64, plumbing.RawObject) {}
func (Noop) Clear()                                 {}

func (Noop) Get(uint32, uint64) (plumbing.RawObject, bool) {
	return plumbing.RawObject{}, false
}
