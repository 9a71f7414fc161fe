// Package objfile implements the codec for loose object files: a zlib
// stream whose content is a "<type> <size>\x00" header followed by the
// object data.
package objfile

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/utils/sync"
)

var (
	// ErrHeader is returned when a loose object header is malformed.
	ErrHeader = errors.New("invalid loose object header")

	// maxHeaderLen bounds header parsing: "<type> <size>\x00" never
	// legitimately exceeds this.
	maxHeaderLen = 32
)

// Reader reads and decompresses a loose object from an underlying
// stream.
type Reader struct {
	header plumbing.ObjectType
	size   int64
	zr     *sync.ZLibReader
}

// NewReader decompresses r and parses the loose object header,
// leaving the reader positioned at the start of the object content.
// The decompressor is pooled; Close returns it.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := sync.GetZlibReader(r)
	if err != nil {
		sync.PutZlibReader(zr)
		return nil, fmt.Errorf("%w: %s", ErrHeader, err)
	}

	reader := &Reader{zr: zr}
	if err := reader.readHeader(); err != nil {
		_ = reader.Close()
		return nil, err
	}
	return reader, nil
}

func (r *Reader) readHeader() error {
	var header []byte
	var one [1]byte
	for {
		if len(header) > maxHeaderLen {
			return fmt.Errorf("%w: header too long", ErrHeader)
		}
		if _, err := io.ReadFull(r.zr, one[:]); err != nil {
			return fmt.Errorf("%w: %s", ErrHeader, err)
		}
		if one[0] == 0 {
			break
		}
		header = append(header, one[0])
	}

	sp := -1
	for i, c := range header {
		if c == ' ' {
			sp = i
			break
		}
	}
	if sp < 0 {
		return fmt.Errorf("%w: missing size", ErrHeader)
	}

	typ, err := plumbing.ParseObjectType(string(header[:sp]))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrHeader, err)
	}

	size, err := strconv.ParseInt(string(header[sp+1:]), 10, 64)
	if err != nil || size < 0 {
		return fmt.Errorf("%w: bad size %q", ErrHeader, header[sp+1:])
	}

	r.header = typ
	r.size = size
	return nil
}

// Type returns the object type from the header.
func (r *Reader) Type() plumbing.ObjectType {
	return r.header
}

// Size returns the content size from the header.
func (r *Reader) Size() int64 {
	return r.size
}

// Read reads the object content.
func (r *Reader) Read(p []byte) (int, error) {
	return r.zr.Read(p)
}

// Content appends the whole object content to dst, verifying it
// matches the announced size.
func (r *Reader) Content(dst []byte) ([]byte, error) {
	out := dst
	var buf [4096]byte
	for {
		n, err := r.zr.Read(buf[:])
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return dst, err
		}
	}

	if int64(len(out)-len(dst)) != r.size {
		return dst, fmt.Errorf("%w: content is %d bytes, header says %d", ErrHeader, len(out)-len(dst), r.size)
	}
	return out, nil
}

// Close releases the decompressor, leaving the underlying stream
// open. Close must be called exactly once.
func (r *Reader) Close() error {
	err := r.zr.Close()
	sync.PutZlibReader(r.zr)
	r.zr = nil
	return err
}
