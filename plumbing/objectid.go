// Package plumbing holds the value types shared by every layer of the
// object database: object identifiers, object types and raw object data.
package plumbing

import (
	"bytes"
	"encoding/hex"
)

// IDSize is the size, in bytes, of an ObjectID.
const IDSize = 20

// HexSize is the size, in characters, of the hexadecimal form of an ObjectID.
const HexSize = IDSize * 2

// ObjectID is the SHA-1 identity of an object. It is the sole key used
// for lookups across loose and packed storage, and is totally ordered
// bytewise.
type ObjectID [IDSize]byte

// ZeroID is the all-zero ObjectID, used to signal absence.
var ZeroID ObjectID

// FromHex parses a 40-character hexadecimal string into an ObjectID.
// The second return value reports whether the input was valid.
func FromHex(in string) (ObjectID, bool) {
	var id ObjectID
	if len(in) != HexSize {
		return id, false
	}

	out, err := hex.DecodeString(in)
	if err != nil {
		return id, false
	}

	copy(id[:], out)
	return id, true
}

// FromBytes creates an ObjectID from its raw 20-byte form.
func FromBytes(in []byte) (ObjectID, bool) {
	var id ObjectID
	if len(in) != IDSize {
		return id, false
	}

	copy(id[:], in)
	return id, true
}

// Bytes returns the raw bytes of the ObjectID.
func (id ObjectID) Bytes() []byte {
	return id[:]
}

// String returns the hexadecimal form of the ObjectID.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the ObjectID is the zero value.
func (id ObjectID) IsZero() bool {
	return id == ZeroID
}

// Compare compares two ObjectIDs bytewise, returning -1, 0 or 1.
func (id ObjectID) Compare(other ObjectID) int {
	return bytes.Compare(id[:], other[:])
}
