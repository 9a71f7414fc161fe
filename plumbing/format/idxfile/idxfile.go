// Package idxfile implements the codec for pack index files, in both
// the legacy version 1 layout and the version 2 layout introduced to
// support packs larger than 2 GiB.
package idxfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-billy/v5"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/hash"
	"github.com/go-packdb/packdb/utils/mmap"
)

var (
	// ErrCorruptIdx is returned when an idx file violates a structural
	// invariant of the format.
	ErrCorruptIdx = errors.New("corrupt idx file")
	// ErrUnsupportedVersion is returned when a version 2 signature is
	// present but the version number is not 2.
	ErrUnsupportedVersion = errors.New("unsupported idx version")
)

// idxSignature is the magic header of version 2 index files. Version 1
// files have no header: the fanout table starts at byte 0.
var idxSignature = []byte{255, 't', 'O', 'c'}

const (
	fanLen       = 256
	idxCrcSize   = 4
	off32Size    = 4
	off64Size    = 8
	v1EntrySize  = off32Size + plumbing.IDSize
	v1HeaderSize = fanLen * 4
	v2HeaderSize = 4 + 4 + fanLen*4 // signature, version, fanout
	trailerSize  = 2 * plumbing.IDSize

	// idxMinLen is the smallest possible index: a bare fanout table
	// plus the two trailing checksums.
	idxMinLen = fanLen*4 + trailerSize

	// is64bitsMask tags a 32-bit offset as an index into the 64-bit
	// offset table rather than an offset itself.
	is64bitsMask = uint32(1) << 31
)

// Kind is the on-disk layout version of an index file.
type Kind int8

const (
	V1 Kind = 1
	V2 Kind = 2
)

// Entry is a single index record: an object id, its byte offset into
// the paired pack file and, for version 2 indexes, a CRC32 of the raw
// pack entry.
type Entry struct {
	OID      plumbing.ObjectID
	Offset   uint64
	CRC32    uint32
	HasCRC32 bool
}

// Index provides read access to a pack index file. It is immutable and
// safe for concurrent readers once opened.
type Index struct {
	kind    Kind
	version uint32
	data    []byte
	cleanup func() error
	fanout  [fanLen]uint32
	count   int

	// Section starts, precomputed at open time. Version 1 interleaves
	// offsets and ids instead, starting at v1HeaderSize.
	namesStart   int
	crcStart     int
	off32Start   int
	off64Start   int
	trailerStart int
}

// Open parses and validates the given idx file. The file is mapped into
// memory and stays open until Close is called.
func Open(f billy.File) (*Index, error) {
	data, cleanup, err := mmap.Open(f)
	if err != nil {
		return nil, fmt.Errorf("cannot open idx file: %w", err)
	}

	idx, err := parse(data)
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	idx.cleanup = cleanup
	return idx, nil
}

func parse(data []byte) (*Index, error) {
	if len(data) < idxMinLen {
		return nil, fmt.Errorf("%w: %d bytes is too small for even an empty index", ErrCorruptIdx, len(data))
	}

	idx := &Index{data: data, kind: V1, version: 1}

	fanoutStart := 0
	if bytes.Equal(data[:len(idxSignature)], idxSignature) {
		idx.kind = V2
		idx.version = binary.BigEndian.Uint32(data[len(idxSignature):])
		if idx.version != 2 {
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, idx.version)
		}
		fanoutStart = v2HeaderSize - fanLen*4
		if len(data) < v2HeaderSize+trailerSize {
			return nil, fmt.Errorf("%w: truncated v2 header", ErrCorruptIdx)
		}
	}

	for i := 0; i < fanLen; i++ {
		idx.fanout[i] = binary.BigEndian.Uint32(data[fanoutStart+i*4:])
		if i > 0 && idx.fanout[i] < idx.fanout[i-1] {
			return nil, fmt.Errorf("%w: fanout table is not monotonic at byte %d", ErrCorruptIdx, i)
		}
	}
	idx.count = int(idx.fanout[fanLen-1])
	idx.trailerStart = len(data) - trailerSize

	switch idx.kind {
	case V1:
		if v1HeaderSize+idx.count*v1EntrySize > idx.trailerStart {
			return nil, fmt.Errorf("%w: v1 index is too small for %d objects", ErrCorruptIdx, idx.count)
		}
	case V2:
		idx.namesStart = v2HeaderSize
		idx.crcStart = idx.namesStart + idx.count*plumbing.IDSize
		idx.off32Start = idx.crcStart + idx.count*idxCrcSize
		idx.off64Start = idx.off32Start + idx.count*off32Size
		if idx.off64Start > idx.trailerStart {
			return nil, fmt.Errorf("%w: v2 index is too small for %d objects", ErrCorruptIdx, idx.count)
		}
	}

	return idx, nil
}

// Kind returns the layout version of the index.
func (idx *Index) Kind() Kind {
	return idx.kind
}

// Version returns the version number of the index: 1 for legacy files
// without a header, 2 otherwise.
func (idx *Index) Version() uint32 {
	return idx.version
}

// Count returns the number of objects in the index.
func (idx *Index) Count() int {
	return idx.count
}

// Fanout returns the fanout entry for the given first byte: the number
// of objects whose id starts with a byte less than or equal to b.
func (idx *Index) Fanout(b byte) uint32 {
	return idx.fanout[b]
}

// PackChecksum returns the checksum of the paired pack file, as
// recorded in the index trailer.
func (idx *Index) PackChecksum() plumbing.ObjectID {
	id, _ := plumbing.FromBytes(idx.data[idx.trailerStart : idx.trailerStart+plumbing.IDSize])
	return id
}

// IndexChecksum returns the checksum of the index file itself, as
// recorded in the final 20 bytes.
func (idx *Index) IndexChecksum() plumbing.ObjectID {
	id, _ := plumbing.FromBytes(idx.data[idx.trailerStart+plumbing.IDSize:])
	return id
}

// VerifyChecksum recomputes the checksum of the index content and
// compares it against the recorded one. Opening an index never does
// this implicitly; verification is always caller-triggered.
func (idx *Index) VerifyChecksum() error {
	want := idx.IndexChecksum()
	got := hash.Sum(idx.data[:idx.trailerStart+plumbing.IDSize])
	if got != want {
		return fmt.Errorf("%w: checksum mismatch: %s != %s", ErrCorruptIdx, got, want)
	}
	return nil
}

// Lookup binary-searches for the given id and returns its position in
// the index. The fanout table narrows the search to the bucket of ids
// sharing the first byte.
func (idx *Index) Lookup(id plumbing.ObjectID) (int, bool) {
	first := int(id[0])
	var lo int
	if first > 0 {
		lo = int(idx.fanout[first-1])
	}
	hi := int(idx.fanout[first])

	pos := lo + sort.Search(hi-lo, func(i int) bool {
		return bytes.Compare(idx.oidSlice(lo+i), id[:]) >= 0
	})

	if pos < hi && bytes.Equal(idx.oidSlice(pos), id[:]) {
		return pos, true
	}
	return 0, false
}

// Contains reports whether the index holds the given id.
func (idx *Index) Contains(id plumbing.ObjectID) bool {
	_, ok := idx.Lookup(id)
	return ok
}

// FindOffset returns the pack offset of the given id.
func (idx *Index) FindOffset(id plumbing.ObjectID) (uint64, bool, error) {
	pos, ok := idx.Lookup(id)
	if !ok {
		return 0, false, nil
	}
	off, err := idx.OffsetAt(pos)
	if err != nil {
		return 0, false, err
	}
	return off, true, nil
}

// OIDAt returns the object id at the given index position.
func (idx *Index) OIDAt(pos int) plumbing.ObjectID {
	id, _ := plumbing.FromBytes(idx.oidSlice(pos))
	return id
}

func (idx *Index) oidSlice(pos int) []byte {
	var start int
	switch idx.kind {
	case V1:
		start = v1HeaderSize + pos*v1EntrySize + off32Size
	default:
		start = idx.namesStart + pos*plumbing.IDSize
	}
	return idx.data[start : start+plumbing.IDSize]
}

// OffsetAt returns the pack offset of the entry at the given position.
// For version 2, offsets with the high bit set indirect into the table
// of 64-bit offsets; decodeOffset32 is the single place that tag is
// interpreted.
func (idx *Index) OffsetAt(pos int) (uint64, error) {
	if idx.kind == V1 {
		start := v1HeaderSize + pos*v1EntrySize
		return uint64(binary.BigEndian.Uint32(idx.data[start:])), nil
	}

	off32 := binary.BigEndian.Uint32(idx.data[idx.off32Start+pos*off32Size:])
	direct, indirect, is64 := decodeOffset32(off32)
	if !is64 {
		return direct, nil
	}

	start := idx.off64Start + indirect*off64Size
	if start+off64Size > idx.trailerStart {
		return 0, fmt.Errorf("%w: 64-bit offset index %d out of range", ErrCorruptIdx, indirect)
	}
	return binary.BigEndian.Uint64(idx.data[start:]), nil
}

// decodeOffset32 interprets a 32-bit offset field. When the high bit is
// set the remaining 31 bits index into the 64-bit offset table; the
// third return value reports which case applies.
func decodeOffset32(v uint32) (direct uint64, indirect int, is64 bool) {
	if v&is64bitsMask != 0 {
		return 0, int(v &^ is64bitsMask), true
	}
	return uint64(v), 0, false
}

// CRC32At returns the CRC32 of the raw pack entry at the given
// position. Version 1 indexes record no CRC32s, in which case ok is
// false.
func (idx *Index) CRC32At(pos int) (crc uint32, ok bool) {
	if idx.kind == V1 {
		return 0, false
	}
	return binary.BigEndian.Uint32(idx.data[idx.crcStart+pos*idxCrcSize:]), true
}

// EntryAt returns the full entry at the given index position.
func (idx *Index) EntryAt(pos int) (Entry, error) {
	off, err := idx.OffsetAt(pos)
	if err != nil {
		return Entry{}, err
	}

	crc, hasCRC := idx.CRC32At(pos)
	return Entry{
		OID:      idx.OIDAt(pos),
		Offset:   off,
		CRC32:    crc,
		HasCRC32: hasCRC,
	}, nil
}

// Entries returns an iterator over all entries in stored (id-sorted)
// order. Iterators are independent; obtaining one never consumes the
// index.
func (idx *Index) Entries() *EntryIter {
	return &EntryIter{idx: idx}
}

// Close releases the memory mapping and closes the underlying file.
func (idx *Index) Close() error {
	if idx.cleanup == nil {
		return nil
	}
	return idx.cleanup()
}
