package plumbing

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when an object is not found in storage.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidType is returned when an object type is not recognized.
	ErrInvalidType = errors.New("invalid object type")
)

// ObjectType describes the on-disk type of an object, matching the 3-bit
// type codes used inside pack entries.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	CommitObject  ObjectType = 1
	TreeObject    ObjectType = 2
	BlobObject    ObjectType = 3
	TagObject     ObjectType = 4

	// OFSDeltaObject is a delta against a base located by pack offset.
	OFSDeltaObject ObjectType = 6
	// REFDeltaObject is a delta against a base located by object id.
	REFDeltaObject ObjectType = 7
)

func (t ObjectType) String() string {
	switch t {
	case CommitObject:
		return "commit"
	case TreeObject:
		return "tree"
	case BlobObject:
		return "blob"
	case TagObject:
		return "tag"
	case OFSDeltaObject:
		return "ofs-delta"
	case REFDeltaObject:
		return "ref-delta"
	default:
		return "unknown"
	}
}

// Bytes returns the textual form of the type, as used in loose object
// and commit headers.
func (t ObjectType) Bytes() []byte {
	return []byte(t.String())
}

// Valid reports whether t is a type that can appear on disk.
func (t ObjectType) Valid() bool {
	return t >= CommitObject && t <= REFDeltaObject && t != 5
}

// IsDelta reports whether t is one of the two delta encodings.
func (t ObjectType) IsDelta() bool {
	return t == OFSDeltaObject || t == REFDeltaObject
}

// ParseObjectType parses the textual form of an object type.
func ParseObjectType(value string) (ObjectType, error) {
	switch value {
	case "commit":
		return CommitObject, nil
	case "tree":
		return TreeObject, nil
	case "blob":
		return BlobObject, nil
	case "tag":
		return TagObject, nil
	case "ofs-delta":
		return OFSDeltaObject, nil
	case "ref-delta":
		return REFDeltaObject, nil
	default:
		return InvalidObject, fmt.Errorf("%w: %q", ErrInvalidType, value)
	}
}

// RawObject is a fully decoded object. Data aliases the buffer the caller
// supplied to the lookup that produced it, and is only valid until that
// buffer is reused.
type RawObject struct {
	Type ObjectType
	Data []byte
}
