// Package filesystem implements object storage over a single git-style
// objects directory on a billy filesystem: loose objects in fanout
// subdirectories plus index/pack pairs under pack/.
package filesystem

import (
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/cache"
	"github.com/go-packdb/packdb/plumbing/format/idxfile"
	"github.com/go-packdb/packdb/plumbing/format/packfile"
)

const packDirName = "pack"

// ObjectStorage serves objects from one objects directory, consulting
// its packs before its loose objects.
type ObjectStorage struct {
	fs      billy.Filesystem
	loose   LooseStorage
	bundles []*packfile.Bundle
}

// Open scans the objects directory rooted at fs and opens every index
// file under pack/ that has a matching pack data file. Pack ids are
// assigned from firstPackID onward in file name order, so they stay
// stable for the lifetime of the storage.
func Open(fs billy.Filesystem, firstPackID uint32) (*ObjectStorage, error) {
	s := &ObjectStorage{fs: fs, loose: NewLooseStorage(fs)}

	entries, err := fs.ReadDir(packDirName)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".idx") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, ok, err := s.openBundle(name, firstPackID+uint32(len(s.bundles)))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if ok {
			s.bundles = append(s.bundles, b)
		}
	}
	return s, nil
}

// openBundle opens one index file and its pack. An index whose pack
// data file is missing is skipped; the pack may still be in transit.
func (s *ObjectStorage) openBundle(idxName string, packID uint32) (*packfile.Bundle, bool, error) {
	packName := strings.TrimSuffix(idxName, ".idx") + ".pack"
	packFile, err := s.fs.Open(s.fs.Join(packDirName, packName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	idxFile, err := s.fs.Open(s.fs.Join(packDirName, idxName))
	if err != nil {
		_ = packFile.Close()
		return nil, false, err
	}

	idx, err := idxfile.Open(idxFile)
	if err != nil {
		_ = packFile.Close()
		return nil, false, err
	}

	p, err := packfile.OpenPack(packFile, packID)
	if err != nil {
		_ = idx.Close()
		return nil, false, err
	}

	return packfile.NewBundle(idx, p), true, nil
}

// Bundles returns the opened index/pack pairs in pack id order.
func (s *ObjectStorage) Bundles() []*packfile.Bundle {
	return s.bundles
}

// Contains reports whether the storage holds the given id, packed or
// loose.
func (s *ObjectStorage) Contains(id plumbing.ObjectID) bool {
	for _, b := range s.bundles {
		if b.Contains(id) {
			return true
		}
	}
	return s.loose.Contains(id)
}

// Find returns the object with the given id, trying packs before loose
// objects. The result is decoded into buf; dc is consulted for delta
// bases during pack decoding.
func (s *ObjectStorage) Find(id plumbing.ObjectID, buf *[]byte, dc cache.DecodeEntry) (plumbing.RawObject, bool, error) {
	for _, b := range s.bundles {
		obj, ok, err := b.Get(id, buf, dc)
		if err != nil {
			return plumbing.RawObject{}, false, err
		}
		if ok {
			return obj, true, nil
		}
	}
	return s.loose.Find(id, buf)
}

// LocationByOID resolves id to its raw location in one of the packs.
// Loose objects have no pack location.
func (s *ObjectStorage) LocationByOID(id plumbing.ObjectID, buf *[]byte) (packfile.Location, bool) {
	for _, b := range s.bundles {
		if loc, ok := b.LocationByOID(id, buf); ok {
			return loc, true
		}
	}
	return packfile.Location{}, false
}

// Close releases every opened bundle.
func (s *ObjectStorage) Close() error {
	var first error
	for _, b := range s.bundles {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.bundles = nil
	return first
}
