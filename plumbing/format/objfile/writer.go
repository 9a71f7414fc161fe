package objfile

import (
	"io"
	"strconv"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/utils/sync"
)

// Write compresses a complete loose object to w. It exists for
// exploding packs into loose storage and for building fixtures.
func Write(w io.Writer, t plumbing.ObjectType, content []byte) error {
	zw := sync.GetZlibWriter(w)
	defer sync.PutZlibWriter(zw)

	if _, err := zw.Write(header(t, int64(len(content)))); err != nil {
		_ = zw.Close()
		return err
	}
	if _, err := zw.Write(content); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

func header(t plumbing.ObjectType, size int64) []byte {
	out := append([]byte{}, t.Bytes()...)
	out = append(out, ' ')
	out = append(out, strconv.FormatInt(size, 10)...)
	return append(out, 0)
}
