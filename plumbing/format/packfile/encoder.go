package packfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/hash"
	"github.com/go-packdb/packdb/utils/sync"
)

// Encoder builds pack data files entry by entry. It performs no delta
// compression: delta entries carry payloads the caller already
// constructed. Its consumers are tests and tooling that need packs to
// read back.
type Encoder struct {
	buf   bytes.Buffer
	count uint32
}

// NewEncoder returns an encoder with an empty version 2 pack.
func NewEncoder() *Encoder {
	e := &Encoder{}
	e.buf.Write(packSignature)
	e.buf.Write(be32(2))
	e.buf.Write(be32(0)) // object count, patched by Finish
	return e
}

// Append writes a non-delta entry with the given type and content, and
// returns the offset of its header together with the CRC32 of its raw
// on-disk bytes.
func (e *Encoder) Append(t plumbing.ObjectType, content []byte) (offset uint64, crc uint32, err error) {
	if t.IsDelta() {
		return 0, 0, fmt.Errorf("append delta entries with AppendOFSDelta or AppendREFDelta")
	}
	return e.appendEntry(t, uint64(len(content)), nil, content)
}

// AppendOFSDelta writes a delta entry whose base lives at baseOffset in
// this same pack.
func (e *Encoder) AppendOFSDelta(baseOffset uint64, delta []byte) (offset uint64, crc uint32, err error) {
	here := uint64(e.buf.Len())
	if baseOffset >= here {
		return 0, 0, fmt.Errorf("delta base offset %d is not behind %d", baseOffset, here)
	}
	return e.appendEntry(plumbing.OFSDeltaObject, uint64(len(delta)), encodeNegativeOffset(here-baseOffset), delta)
}

// AppendREFDelta writes a delta entry whose base is identified by id.
func (e *Encoder) AppendREFDelta(baseID plumbing.ObjectID, delta []byte) (offset uint64, crc uint32, err error) {
	return e.appendEntry(plumbing.REFDeltaObject, uint64(len(delta)), baseID.Bytes(), delta)
}

func (e *Encoder) appendEntry(t plumbing.ObjectType, size uint64, extra, payload []byte) (uint64, uint32, error) {
	offset := uint64(e.buf.Len())

	e.buf.Write(encodeTypeSize(t, size))
	e.buf.Write(extra)

	zw := sync.GetZlibWriter(&e.buf)
	defer sync.PutZlibWriter(zw)
	if _, err := zw.Write(payload); err != nil {
		return 0, 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, 0, err
	}

	e.count++
	crc := crc32.ChecksumIEEE(e.buf.Bytes()[offset:])
	return offset, crc, nil
}

// Finish patches the object count, appends the pack checksum and
// returns the complete pack bytes along with that checksum.
func (e *Encoder) Finish() ([]byte, plumbing.ObjectID) {
	data := e.buf.Bytes()
	binary.BigEndian.PutUint32(data[8:], e.count)

	checksum := hash.Sum(data)
	data = append(data, checksum.Bytes()...)
	return data, checksum
}

func be32(v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return buf[:]
}

// encodeTypeSize produces the entry header varint: three type bits and
// the size split over four bits plus 7-bit continuations.
func encodeTypeSize(t plumbing.ObjectType, size uint64) []byte {
	first := byte(t)<<4 | byte(size&0x0f)
	size >>= 4

	out := []byte{first}
	for size > 0 {
		out[len(out)-1] |= maskContinue
		out = append(out, byte(size&0x7f))
		size >>= 7
	}
	return out
}

// encodeNegativeOffset produces the base-offset varint used by
// ofs-delta entries, mirroring util.NegativeOffset.
func encodeNegativeOffset(diff uint64) []byte {
	var buf [10]byte
	pos := len(buf) - 1
	buf[pos] = byte(diff & 0x7f)
	for diff >>= 7; diff > 0; diff >>= 7 {
		diff--
		pos--
		buf[pos] = maskContinue | byte(diff&0x7f)
	}
	return buf[pos:]
}
