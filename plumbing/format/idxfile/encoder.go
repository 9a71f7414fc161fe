package idxfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/hash"
)

// Encoder writes index files. It exists for exploding packs into fresh
// indexes and for building fixtures; pack generation itself is out of
// scope.
type Encoder struct {
	kind Kind
}

// NewEncoder returns an encoder producing the given layout version.
func NewEncoder(kind Kind) *Encoder {
	return &Encoder{kind: kind}
}

// Encode writes an index holding the given entries and pack checksum to
// w. Entries are sorted by id if they are not already. The number of
// bytes written is returned.
func (e *Encoder) Encode(w io.Writer, entries []Entry, packChecksum plumbing.ObjectID) (int, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OID.Compare(sorted[j].OID) < 0
	})

	h := hash.New()
	mw := io.MultiWriter(w, h)

	var n int
	write := func(b []byte) error {
		wn, err := mw.Write(b)
		n += wn
		return err
	}

	if e.kind == V2 {
		if err := write(idxSignature); err != nil {
			return n, err
		}
		if err := write(be32(2)); err != nil {
			return n, err
		}
	}

	if err := e.encodeFanout(write, sorted); err != nil {
		return n, err
	}

	var err error
	switch e.kind {
	case V1:
		err = e.encodeV1Entries(write, sorted)
	case V2:
		err = e.encodeV2Entries(write, sorted)
	default:
		return n, fmt.Errorf("cannot encode idx kind %d", e.kind)
	}
	if err != nil {
		return n, err
	}

	if err := write(packChecksum.Bytes()); err != nil {
		return n, err
	}

	// The index checksum covers everything written so far, including
	// the pack checksum.
	wn, err := w.Write(h.Sum(nil))
	n += wn
	return n, err
}

func (e *Encoder) encodeFanout(write func([]byte) error, entries []Entry) error {
	var fanout [fanLen]uint32
	for _, entry := range entries {
		fanout[entry.OID[0]]++
	}
	var acc uint32
	for i := 0; i < fanLen; i++ {
		acc += fanout[i]
		if err := write(be32(acc)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeV1Entries(write func([]byte) error, entries []Entry) error {
	for _, entry := range entries {
		if entry.Offset > uint64(^uint32(0)) {
			return fmt.Errorf("offset %d does not fit in a v1 index", entry.Offset)
		}
		if err := write(be32(uint32(entry.Offset))); err != nil {
			return err
		}
		if err := write(entry.OID.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeV2Entries(write func([]byte) error, entries []Entry) error {
	for _, entry := range entries {
		if err := write(entry.OID.Bytes()); err != nil {
			return err
		}
	}
	for _, entry := range entries {
		if err := write(be32(entry.CRC32)); err != nil {
			return err
		}
	}

	// Offsets that do not fit in 31 bits are spilled into the 64-bit
	// table; their 32-bit slot holds the table index with the high bit
	// set.
	var large []uint64
	for _, entry := range entries {
		if entry.Offset >= uint64(is64bitsMask) {
			if err := write(be32(is64bitsMask | uint32(len(large)))); err != nil {
				return err
			}
			large = append(large, entry.Offset)
			continue
		}
		if err := write(be32(uint32(entry.Offset))); err != nil {
			return err
		}
	}
	for _, off := range large {
		var buf [off64Size]byte
		binary.BigEndian.PutUint64(buf[:], off)
		if err := write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func be32(v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return buf[:]
}
