// Package hash provides the hash function used to derive object
// identities. SHA-1 is computed with a collision detection layer
// (sha1cd), matching what git itself ships.
package hash

import (
	"hash"
	"strconv"

	"github.com/pjbgf/sha1cd"

	"github.com/go-packdb/packdb/plumbing"
)

// New returns a new collision-detecting SHA-1 hash.
func New() hash.Hash {
	return sha1cd.New()
}

// Compute returns the object id of an object with the given type and
// content, hashing the standard "<type> <size>\x00" header followed by
// the content.
func Compute(t plumbing.ObjectType, data []byte) plumbing.ObjectID {
	h := New()
	h.Write(t.Bytes())
	h.Write([]byte(" "))
	h.Write([]byte(strconv.Itoa(len(data))))
	h.Write([]byte{0})
	h.Write(data)

	var id plumbing.ObjectID
	copy(id[:], h.Sum(nil))
	return id
}

// Sum returns the plain hash of data, without an object header. It is
// what index and pack file trailers record.
func Sum(data []byte) plumbing.ObjectID {
	h := New()
	h.Write(data)

	var id plumbing.ObjectID
	copy(id[:], h.Sum(nil))
	return id
}
