// Package linked composes several filesystem object stores into one,
// in a fixed precedence order. The typical shape is a repository's own
// objects directory followed by the stores it borrows through
// alternates.
package linked

import (
	"github.com/go-git/go-billy/v5"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/cache"
	"github.com/go-packdb/packdb/plumbing/format/idxfile"
	"github.com/go-packdb/packdb/plumbing/format/packfile"
	"github.com/go-packdb/packdb/plumbing/object"
	"github.com/go-packdb/packdb/plumbing/traverse"
	"github.com/go-packdb/packdb/storage/filesystem"
)

// Store is an ordered chain of object stores. Lookups try each store
// in order and the first match wins; within a store, packs win over
// loose objects.
type Store struct {
	stores  []*filesystem.ObjectStorage
	bundles []*packfile.Bundle
}

// Open opens one filesystem store per objects directory, in precedence
// order. Pack ids are assigned across the whole chain, so a Location
// resolved through the Store can be mapped back to its bundle without
// knowing which member store produced it.
func Open(fss ...billy.Filesystem) (*Store, error) {
	s := &Store{}
	for _, fs := range fss {
		os, err := filesystem.Open(fs, uint32(len(s.bundles)))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.stores = append(s.stores, os)
		s.bundles = append(s.bundles, os.Bundles()...)
	}
	return s, nil
}

// Contains reports whether any store in the chain holds id.
func (s *Store) Contains(id plumbing.ObjectID) bool {
	for _, st := range s.stores {
		if st.Contains(id) {
			return true
		}
	}
	return false
}

// Find returns the object with the given id from the first store that
// holds it, decoded into buf. dc caches delta bases across calls; pass
// cache.Noop to disable caching.
func (s *Store) Find(id plumbing.ObjectID, buf *[]byte, dc cache.DecodeEntry) (plumbing.RawObject, bool, error) {
	for _, st := range s.stores {
		obj, ok, err := st.Find(id, buf, dc)
		if err != nil {
			return plumbing.RawObject{}, false, err
		}
		if ok {
			return obj, true, nil
		}
	}
	return plumbing.RawObject{}, false, nil
}

// LocationByOID resolves id to its raw location in the first pack of
// the chain that holds it.
func (s *Store) LocationByOID(id plumbing.ObjectID, buf *[]byte) (packfile.Location, bool) {
	for _, st := range s.stores {
		if loc, ok := st.LocationByOID(id, buf); ok {
			return loc, true
		}
	}
	return packfile.Location{}, false
}

// EntryByLocation returns the verbatim on-disk entry bytes for a
// location previously resolved through this Store.
func (s *Store) EntryByLocation(loc packfile.Location) (packfile.RawEntry, bool) {
	b, ok := s.bundleByPackID(loc.PackID)
	if !ok {
		return packfile.RawEntry{}, false
	}
	return b.EntryByLocation(loc)
}

// IndexIterByPackID returns an iterator over the index entries of the
// pack with the given id.
func (s *Store) IndexIterByPackID(packID uint32) (*idxfile.EntryIter, bool) {
	b, ok := s.bundleByPackID(packID)
	if !ok {
		return nil, false
	}
	return b.Index.Entries(), true
}

// Bundles returns every opened bundle of the chain in pack id order.
func (s *Store) Bundles() []*packfile.Bundle {
	return s.bundles
}

// Pack ids are chain-wide ordinals, handed out in Open.
func (s *Store) bundleByPackID(packID uint32) (*packfile.Bundle, bool) {
	if packID >= uint32(len(s.bundles)) {
		return nil, false
	}
	return s.bundles[packID], true
}

// CommitLookup adapts the Store into the lookup function the ancestry
// walker consumes. Objects that are missing or are not commits report
// absence; decoding errors do too, because the walker cannot
// distinguish them anyway.
func (s *Store) CommitLookup(dc cache.DecodeEntry) traverse.FindCommit {
	return func(id plumbing.ObjectID, buf *[]byte) (*object.CommitTokenIter, bool) {
		obj, ok, err := s.Find(id, buf, dc)
		if err != nil || !ok || obj.Type != plumbing.CommitObject {
			return nil, false
		}
		return object.NewCommitTokenIter(obj.Data), true
	}
}

// Close releases every member store.
func (s *Store) Close() error {
	var first error
	for _, st := range s.stores {
		if err := st.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.stores = nil
	s.bundles = nil
	return first
}
