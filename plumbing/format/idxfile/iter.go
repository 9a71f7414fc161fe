package idxfile

import "io"

// EntryIter iterates over the entries of an index in stored order.
type EntryIter struct {
	idx *Index
	pos int
}

// Next returns the next entry, or io.EOF once all entries have been
// returned.
func (i *EntryIter) Next() (Entry, error) {
	if i.pos >= i.idx.count {
		return Entry{}, io.EOF
	}

	e, err := i.idx.EntryAt(i.pos)
	if err != nil {
		return Entry{}, err
	}

	i.pos++
	return e, nil
}

// ForEach calls cb for every remaining entry, stopping at the first
// error.
func (i *EntryIter) ForEach(cb func(Entry) error) error {
	for {
		e, err := i.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(e); err != nil {
			return err
		}
	}
}
