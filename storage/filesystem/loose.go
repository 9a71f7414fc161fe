package filesystem

import (
	"os"

	"github.com/go-git/go-billy/v5"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/format/objfile"
)

// LooseStorage reads loose objects from a git-style objects directory:
// the first two hex digits of an id name a subdirectory, the remaining
// thirty-eight the file inside it.
type LooseStorage struct {
	fs billy.Filesystem
}

// NewLooseStorage returns loose object storage rooted at the objects
// directory fs.
func NewLooseStorage(fs billy.Filesystem) LooseStorage {
	return LooseStorage{fs: fs}
}

func (s LooseStorage) objectPath(id plumbing.ObjectID) string {
	hex := id.String()
	return s.fs.Join(hex[0:2], hex[2:])
}

// Contains reports whether a loose object file exists for id.
func (s LooseStorage) Contains(id plumbing.ObjectID) bool {
	_, err := s.fs.Stat(s.objectPath(id))
	return err == nil
}

// Find reads and decompresses the loose object with the given id into
// buf. A missing file is absence, not an error; a file that exists but
// cannot be decoded is an error.
func (s LooseStorage) Find(id plumbing.ObjectID, buf *[]byte) (plumbing.RawObject, bool, error) {
	f, err := s.fs.Open(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return plumbing.RawObject{}, false, nil
		}
		return plumbing.RawObject{}, false, err
	}
	defer f.Close()

	r, err := objfile.NewReader(f)
	if err != nil {
		return plumbing.RawObject{}, false, err
	}
	defer r.Close()

	content, err := r.Content((*buf)[:0])
	*buf = content
	if err != nil {
		return plumbing.RawObject{}, false, err
	}
	return plumbing.RawObject{Type: r.Type(), Data: content}, true, nil
}
