//go:build darwin || linux

package mmap

import (
	"errors"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sys/unix"
)

func mapFile(f billy.File) ([]byte, func() error, error) {
	fd, err := fileDescriptor(f)
	if err != nil {
		return nil, nil, err
	}

	sz, err := size(f)
	if err != nil {
		return nil, nil, err
	}
	if sz == 0 {
		// Zero-length mappings are invalid; treat as an empty read.
		return nil, f.Close, nil
	}

	data, err := unix.Mmap(int(fd), 0, int(sz), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() error {
		return errors.Join(
			unix.Munmap(data),
			f.Close(),
		)
	}

	return data, cleanup, nil
}
