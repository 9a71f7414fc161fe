package packfile

import (
	"fmt"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/cache"
	"github.com/go-packdb/packdb/plumbing/format/idxfile"
)

// Bundle couples one pack data file with its index.
type Bundle struct {
	Index *idxfile.Index
	Pack  *Pack
}

// NewBundle returns a bundle over the given index and pack.
func NewBundle(idx *idxfile.Index, p *Pack) *Bundle {
	return &Bundle{Index: idx, Pack: p}
}

// Location is a resolved pointer into a specific bundle's pack data. It
// is enough to re-extract the raw entry bytes later without another id
// lookup.
type Location struct {
	// PackID identifies the pack within its store.
	PackID uint32
	// PackOffset is the byte offset of the entry header.
	PackOffset uint64
	// IndexFileID is the position of the entry inside the index.
	IndexFileID int
	// EntrySize is the total on-disk span of the entry: header plus
	// compressed payload.
	EntrySize int
}

// RawEntry is the verbatim on-disk form of one pack entry: still
// compressed, still delta-encoded. CRC32 is only present for entries
// of version 2 indexes.
type RawEntry struct {
	Data     []byte
	CRC32    uint32
	HasCRC32 bool
	Version  uint32
}

// Contains reports whether the bundle's index holds the given id.
func (b *Bundle) Contains(id plumbing.ObjectID) bool {
	return b.Index.Contains(id)
}

// Get returns the fully decoded object with the given id, resolving
// delta chains as needed. The result is written into buf, which is
// reused across calls; dc is consulted before any decompression.
// Absence is reported through the second return value, not an error.
func (b *Bundle) Get(id plumbing.ObjectID, buf *[]byte, dc cache.DecodeEntry) (plumbing.RawObject, bool, error) {
	pos, ok := b.Index.Lookup(id)
	if !ok {
		return plumbing.RawObject{}, false, nil
	}

	offset, err := b.Index.OffsetAt(pos)
	if err != nil {
		return plumbing.RawObject{}, false, err
	}

	typ, data, err := b.objectAt(offset, dc)
	if err != nil {
		return plumbing.RawObject{}, false, err
	}

	*buf = append((*buf)[:0], data...)
	return plumbing.RawObject{Type: typ, Data: *buf}, true, nil
}

// objectAt decodes the entry at the given offset, recursing through
// delta bases. Returned data is either cache-owned or freshly
// allocated; callers copy before reuse.
func (b *Bundle) objectAt(offset uint64, dc cache.DecodeEntry) (plumbing.ObjectType, []byte, error) {
	if obj, ok := dc.Get(b.Pack.ID(), offset); ok {
		return obj.Type, obj.Data, nil
	}

	h, err := b.Pack.EntryHeader(offset)
	if err != nil {
		return plumbing.InvalidObject, nil, err
	}

	payload := offset + uint64(h.HeaderSize)

	if !h.Type.IsDelta() {
		data, _, err := b.Pack.Inflate(payload, nil)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		if uint64(len(data)) != h.Size {
			return plumbing.InvalidObject, nil, fmt.Errorf("%w: entry at %d inflates to %d bytes, header says %d",
				ErrCorruptPack, offset, len(data), h.Size)
		}
		dc.Put(b.Pack.ID(), offset, plumbing.RawObject{Type: h.Type, Data: data})
		return h.Type, data, nil
	}

	baseOffset := h.BaseOffset
	if h.Type == plumbing.REFDeltaObject {
		var ok bool
		baseOffset, ok, err = b.Index.FindOffset(h.BaseID)
		if err != nil {
			return plumbing.InvalidObject, nil, err
		}
		if !ok {
			return plumbing.InvalidObject, nil, fmt.Errorf("%w: delta base %s not in pack", ErrCorruptPack, h.BaseID)
		}
	}

	baseType, baseData, err := b.objectAt(baseOffset, dc)
	if err != nil {
		return plumbing.InvalidObject, nil, err
	}

	delta, _, err := b.Pack.Inflate(payload, nil)
	if err != nil {
		return plumbing.InvalidObject, nil, err
	}

	data, err := PatchDelta(baseData, delta)
	if err != nil {
		return plumbing.InvalidObject, nil, err
	}

	// Deltas inherit the type of their base.
	dc.Put(b.Pack.ID(), offset, plumbing.RawObject{Type: baseType, Data: data})
	return baseType, data, nil
}

// LocationByOID resolves an id to its raw on-disk location without
// producing decoded object bytes: only the entry's own payload is
// decompressed (into buf) to learn the entry's total span. Failures of
// any kind are reported as absence.
func (b *Bundle) LocationByOID(id plumbing.ObjectID, buf *[]byte) (Location, bool) {
	pos, ok := b.Index.Lookup(id)
	if !ok {
		return Location{}, false
	}

	offset, err := b.Index.OffsetAt(pos)
	if err != nil {
		return Location{}, false
	}

	h, err := b.Pack.EntryHeader(offset)
	if err != nil {
		return Location{}, false
	}

	data, consumed, err := b.Pack.Inflate(offset+uint64(h.HeaderSize), (*buf)[:0])
	if err != nil {
		return Location{}, false
	}
	*buf = data

	return Location{
		PackID:      b.Pack.ID(),
		PackOffset:  offset,
		IndexFileID: pos,
		EntrySize:   h.HeaderSize + consumed,
	}, true
}

// EntryByLocation re-slices the exact raw bytes of a previously
// resolved location, along with their CRC32 and the pack format
// version. No decoding happens.
func (b *Bundle) EntryByLocation(loc Location) (RawEntry, bool) {
	if loc.PackID != b.Pack.ID() {
		return RawEntry{}, false
	}

	data, ok := b.Pack.EntrySlice(loc.PackOffset, loc.PackOffset+uint64(loc.EntrySize))
	if !ok {
		return RawEntry{}, false
	}

	crc, hasCRC := b.Index.CRC32At(loc.IndexFileID)
	return RawEntry{
		Data:     data,
		CRC32:    crc,
		HasCRC32: hasCRC,
		Version:  b.Pack.Version(),
	}, true
}

// VerifyChecksum checks that the pack's trailing checksum matches the
// one its index recorded at pack time.
func (b *Bundle) VerifyChecksum() error {
	if got, want := b.Pack.Checksum(), b.Index.PackChecksum(); got != want {
		return fmt.Errorf("%w: pack checksum %s does not match index %s", ErrCorruptPack, got, want)
	}
	return nil
}

// Close releases both underlying files.
func (b *Bundle) Close() error {
	err := b.Index.Close()
	if cerr := b.Pack.Close(); err == nil {
		err = cerr
	}
	return err
}
