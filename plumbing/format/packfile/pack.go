// Package packfile provides read access to pack data files: entry
// header decoding, decompression, delta resolution and raw entry
// extraction. Pack generation and delta construction are out of scope.
package packfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"

	"github.com/go-packdb/packdb/plumbing"
	packutil "github.com/go-packdb/packdb/plumbing/format/packfile/util"
	"github.com/go-packdb/packdb/utils/mmap"
	"github.com/go-packdb/packdb/utils/sync"
)

var (
	// ErrCorruptPack is returned when pack data violates the format.
	ErrCorruptPack = errors.New("corrupt pack file")
	// ErrUnsupportedPackVersion is returned for pack versions other
	// than 2.
	ErrUnsupportedPackVersion = errors.New("unsupported pack version")
	// ErrZLib wraps decompression failures of entry payloads.
	ErrZLib = errors.New("zlib reading error")
)

var packSignature = []byte{'P', 'A', 'C', 'K'}

const (
	packHeaderSize  = 12
	packTrailerSize = plumbing.IDSize
	packMinLen      = packHeaderSize + packTrailerSize
)

// Pack provides random access to a single pack data file. The id is
// assigned by whoever opened the pack and identifies it within a store
// for the lifetime of that store.
type Pack struct {
	id      uint32
	version uint32
	objects uint32
	data    []byte
	cleanup func() error
}

// OpenPack memory-maps and validates the given pack file.
func OpenPack(f billy.File, id uint32) (*Pack, error) {
	data, cleanup, err := mmap.Open(f)
	if err != nil {
		return nil, fmt.Errorf("cannot open pack file: %w", err)
	}

	p, err := parsePack(data, id)
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	p.cleanup = cleanup
	return p, nil
}

func parsePack(data []byte, id uint32) (*Pack, error) {
	if len(data) < packMinLen {
		return nil, fmt.Errorf("%w: %d bytes is too small", ErrCorruptPack, len(data))
	}
	if !bytes.Equal(data[:4], packSignature) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrCorruptPack)
	}

	version := binary.BigEndian.Uint32(data[4:])
	if version != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPackVersion, version)
	}

	return &Pack{
		id:      id,
		version: version,
		objects: binary.BigEndian.Uint32(data[8:]),
		data:    data,
	}, nil
}

// ID returns the store-assigned pack id.
func (p *Pack) ID() uint32 {
	return p.id
}

// Version returns the pack format version.
func (p *Pack) Version() uint32 {
	return p.version
}

// ObjectCount returns the object count recorded in the pack header.
func (p *Pack) ObjectCount() uint32 {
	return p.objects
}

// Checksum returns the trailing pack checksum.
func (p *Pack) Checksum() plumbing.ObjectID {
	id, _ := plumbing.FromBytes(p.data[len(p.data)-packTrailerSize:])
	return id
}

// EntryHeader describes one pack entry before its compressed payload.
// For OFSDeltaObject entries BaseOffset holds the absolute pack offset
// of the base; for REFDeltaObject entries BaseID holds its id.
type EntryHeader struct {
	Type       plumbing.ObjectType
	Size       uint64
	HeaderSize int
	BaseOffset uint64
	BaseID     plumbing.ObjectID
}

// EntryHeader decodes the entry header at the given pack offset.
func (p *Pack) EntryHeader(offset uint64) (EntryHeader, error) {
	body := p.bodyEnd()
	if offset < packHeaderSize || offset >= uint64(body) {
		return EntryHeader{}, fmt.Errorf("%w: entry offset %d out of range", ErrCorruptPack, offset)
	}

	br := bytes.NewReader(p.data[offset:body])
	first, err := br.ReadByte()
	if err != nil {
		return EntryHeader{}, err
	}

	h := EntryHeader{Type: packutil.ObjectType(first)}
	if !h.Type.Valid() {
		return EntryHeader{}, fmt.Errorf("%w: invalid entry type %d at offset %d", ErrCorruptPack, h.Type, offset)
	}

	h.Size, err = packutil.VariableLengthSize(first, br)
	if err != nil {
		return EntryHeader{}, fmt.Errorf("%w: truncated entry size at offset %d", ErrCorruptPack, offset)
	}

	switch h.Type {
	case plumbing.OFSDeltaObject:
		neg, err := packutil.NegativeOffset(br)
		if err != nil {
			return EntryHeader{}, fmt.Errorf("%w: truncated base offset at offset %d", ErrCorruptPack, offset)
		}
		if neg == 0 || neg > offset {
			return EntryHeader{}, fmt.Errorf("%w: base offset underflow at offset %d", ErrCorruptPack, offset)
		}
		h.BaseOffset = offset - neg

	case plumbing.REFDeltaObject:
		var raw [plumbing.IDSize]byte
		if _, err := io.ReadFull(br, raw[:]); err != nil {
			return EntryHeader{}, fmt.Errorf("%w: truncated base id at offset %d", ErrCorruptPack, offset)
		}
		h.BaseID = plumbing.ObjectID(raw)
	}

	h.HeaderSize = int(uint64(br.Size()) - uint64(br.Len()))
	return h, nil
}

// Inflate decompresses the zlib stream starting at the given pack
// offset, appending the output to dst. It returns the grown slice and
// the number of compressed bytes consumed, which is exact because the
// source is a bytes.Reader and the decompressor never reads ahead of
// the stream.
func (p *Pack) Inflate(start uint64, dst []byte) ([]byte, int, error) {
	body := p.bodyEnd()
	if start >= uint64(body) {
		return dst, 0, fmt.Errorf("%w: payload offset %d out of range", ErrCorruptPack, start)
	}

	br := bytes.NewReader(p.data[start:body])
	zr, err := sync.GetZlibReader(br)
	defer sync.PutZlibReader(zr)
	if err != nil {
		return dst, 0, fmt.Errorf("%w: %s", ErrZLib, err)
	}
	defer zr.Close()

	buf := bytes.NewBuffer(dst)
	if _, err := io.Copy(buf, zr); err != nil {
		return dst, 0, fmt.Errorf("%w: %s", ErrZLib, err)
	}

	consumed := int(br.Size()) - br.Len()
	return buf.Bytes(), consumed, nil
}

// EntrySlice returns the raw on-disk bytes in [from, to), still
// compressed and still delta-encoded. It is how entries are copied
// verbatim between packs.
func (p *Pack) EntrySlice(from, to uint64) ([]byte, bool) {
	if from >= to || to > uint64(p.bodyEnd()) {
		return nil, false
	}
	return p.data[from:to], true
}

// bodyEnd returns the offset right after the last entry byte, before
// the trailing checksum.
func (p *Pack) bodyEnd() int {
	return len(p.data) - packTrailerSize
}

// Close releases the memory mapping and closes the underlying file.
func (p *Pack) Close() error {
	if p.cleanup == nil {
		return nil
	}
	return p.cleanup()
}
