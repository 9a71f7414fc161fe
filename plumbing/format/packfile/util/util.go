// Package util holds the bit-level helpers shared by packfile readers:
// entry-header varints and LEB128 sizes.
package util

import (
	"errors"
	"io"

	"github.com/go-packdb/packdb/plumbing"
)

const (
	firstLengthBits = uint8(4)   // the first byte of an entry header has 4 bits to store the length
	maskPayload     = 0x7f       // 0111 1111
	maskContinue    = 0x80       // 1000 0000
	maskType        = uint8(112) // 0111 0000
)

// VariableLengthSize reads a variable length size from first, and uses
// reader to continue on reading until the full size is determined.
func VariableLengthSize(first byte, reader io.ByteReader) (uint64, error) {
	// Extract the first part of the size (last 4 bits of the first byte).
	size := uint64(first & 0x0F)

	// |  001xxxx | xxxxxxxx | xxxxxxxx | ...
	//
	//	 ^^^       ^^^^^^^^   ^^^^^^^^
	//	Type      Size Part 1   Size Part 2
	//
	// Check if more bytes are needed to fully determine the size.
	if first&maskContinue != 0 {
		shift := uint(firstLengthBits)

		if reader == nil {
			return 0, errors.New("reader is nil")
		}

		for {
			b, err := reader.ReadByte()
			if err != nil {
				return 0, err
			}

			size |= uint64(b&maskPayload) << shift

			if b&maskContinue == 0 {
				break
			}

			shift += 7
		}
	}
	return size, nil
}

// NegativeOffset reads the base-offset encoding used by ofs-delta
// entries: a big-endian varint where each continuation adds one to the
// accumulated value before shifting.
func NegativeOffset(reader io.ByteReader) (uint64, error) {
	b, err := reader.ReadByte()
	if err != nil {
		return 0, err
	}

	offset := uint64(b & maskPayload)
	for b&maskContinue != 0 {
		b, err = reader.ReadByte()
		if err != nil {
			return 0, err
		}
		offset = ((offset + 1) << 7) | uint64(b&maskPayload)
	}
	return offset, nil
}

// DecodeLEB128 decodes a number encoded as an unsigned LEB128 at the
// start of some binary data and returns the decoded number and the rest
// of the bytes.
func DecodeLEB128(input []byte) (uint, []byte) {
	if len(input) == 0 {
		return 0, input
	}

	var num, sz uint
	var b byte
	for {
		b = input[sz]
		num |= (uint(b) & maskPayload) << (sz * 7) // concats 7 bits chunks
		sz++

		if uint(b)&maskContinue == 0 || sz == uint(len(input)) {
			break
		}
	}

	return num, input[sz:]
}

// ObjectType returns the plumbing.ObjectType encoded in the first byte
// of an entry header.
func ObjectType(b byte) plumbing.ObjectType {
	return plumbing.ObjectType((b & maskType) >> firstLengthBits)
}
