// Package mmap maps files into memory for random access. Files whose
// filesystem cannot expose a descriptor (such as in-memory test
// filesystems) are read fully instead, which yields the same read-only
// byte slice semantics.
package mmap

import (
	"errors"
	"io"

	"github.com/go-git/go-billy/v5"
)

var (
	ErrNilFile = errors.New("cannot open mmap: file is nil")

	errNoFileDescriptor = errors.New("fs does not support access to file descriptor")
)

// Open returns the contents of f as a read-only byte slice, preferring
// a memory map when the platform and filesystem allow it. The returned
// cleanup function releases the mapping (or buffer) and closes f.
func Open(f billy.File) ([]byte, func() error, error) {
	if f == nil {
		return nil, nil, ErrNilFile
	}

	data, cleanup, err := mapFile(f)
	if err == nil {
		return data, cleanup, nil
	}
	if !errors.Is(err, errNoFileDescriptor) {
		return nil, nil, errors.Join(err, f.Close())
	}

	return readFile(f)
}

// readFile is the fallback for filesystems without file descriptors.
func readFile(f billy.File) ([]byte, func() error, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, nil, errors.Join(err, f.Close())
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, errors.Join(err, f.Close())
	}

	return data, f.Close, nil
}

// fileDescriptor extracts the descriptor from a billy.File. Two
// signatures exist in the wild: the plain os.File form and the
// two-value form used by filesystems that may not have one.
func fileDescriptor(f billy.File) (uintptr, error) {
	if ffd, ok := f.(interface{ Fd() (uintptr, bool) }); ok {
		if v, ok := ffd.Fd(); ok {
			return v, nil
		}
		return 0, errNoFileDescriptor
	}
	if ffd, ok := f.(interface{ Fd() uintptr }); ok {
		return ffd.Fd(), nil
	}
	return 0, errNoFileDescriptor
}

// size returns the length of f without relying on Stat, which not all
// billy filesystems implement.
func size(f billy.File) (int64, error) {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return end, nil
}
