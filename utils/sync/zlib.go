// Package sync pools the zlib codecs shared by the loose and packed
// object formats, so hot read paths do not build a fresh decompressor
// per entry.
package sync

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

var (
	// zlibInit is a minimal valid zlib stream, used to prime pooled
	// readers before their first Reset.
	zlibInit = []byte{0x78, 0x9c, 0x01, 0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x00, 0x01}

	zlibReaders = sync.Pool{
		New: func() interface{} {
			r, _ := zlib.NewReader(bytes.NewReader(zlibInit))
			return &ZLibReader{reader: r.(zlibReadCloser)}
		},
	}
	zlibWriters = sync.Pool{
		New: func() interface{} {
			return zlib.NewWriter(nil)
		},
	}
)

type zlibReadCloser interface {
	io.ReadCloser
	zlib.Resetter
}

// ZLibReader is a pooled zlib reader. Obtain one with GetZlibReader
// and hand it back with PutZlibReader when done reading.
type ZLibReader struct {
	reader zlibReadCloser
}

func (r *ZLibReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *ZLibReader) Close() error {
	return r.reader.Close()
}

// GetZlibReader returns a pooled zlib reader reset to decompress r.
func GetZlibReader(r io.Reader) (*ZLibReader, error) {
	z := zlibReaders.Get().(*ZLibReader)
	return z, z.reader.Reset(r, nil)
}

// PutZlibReader puts z back into its pool.
func PutZlibReader(z *ZLibReader) {
	zlibReaders.Put(z)
}

// GetZlibWriter returns a pooled zlib writer reset to compress into w.
func GetZlibWriter(w io.Writer) *zlib.Writer {
	z := zlibWriters.Get().(*zlib.Writer)
	z.Reset(w)
	return z
}

// PutZlibWriter puts w back into its pool.
func PutZlibWriter(w *zlib.Writer) {
	zlibWriters.Put(w)
}
