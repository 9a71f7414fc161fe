// Package traverse walks the commit graph through an injected lookup
// function, without ever touching storage itself.
package traverse

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/emirpasic/gods/sets/treeset"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/object"
)

// ErrCommitNotFound is returned when a commit scheduled for traversal
// cannot be produced by the lookup function.
var ErrCommitNotFound = errors.New("commit not found")

// FindCommit produces a token iterator over the commit identified by
// id, or reports that no such commit exists. Implementations decode
// into buf, which the walker owns and reuses between calls.
type FindCommit func(id plumbing.ObjectID, buf *[]byte) (*object.CommitTokenIter, bool)

// Parents selects which parents of a commit the walk follows.
type Parents int8

const (
	// ParentsAll follows every parent of each commit.
	ParentsAll Parents = iota
	// ParentsFirst follows only the first parent, yielding the
	// linearized history of the first-parent chain.
	ParentsFirst
)

// Sorting selects the order in which commits are yielded.
type Sorting int8

const (
	// GraphOrder yields commits breadth-first in discovery order. It
	// needs no commit dates and performs one lookup per yielded commit.
	GraphOrder Sorting = iota
	// ByCommitterDate orders each commit's parents newest committer
	// date first before appending them to the queue. The ordering is
	// local to each parent batch, not a global priority queue: a
	// commit discovered earlier is always yielded before one
	// discovered later, whatever their dates. Each parent costs one
	// extra lookup to learn its date at discovery time.
	ByCommitterDate
)

func idComparator(a, b interface{}) int {
	x := a.(plumbing.ObjectID)
	y := b.(plumbing.ObjectID)
	return x.Compare(y)
}

// State carries the reusable allocations of a walk: the pending queue,
// the seen set and the scratch buffers handed to the lookup function.
// A State serves one walk at a time; Clear readies it for the next one.
type State struct {
	queue *linkedlistqueue.Queue
	seen  *treeset.Set

	buf       []byte
	parentBuf []byte
}

// NewState returns an empty State ready for a walk.
func NewState() *State {
	return &State{
		queue: linkedlistqueue.New(),
		seen:  treeset.NewWith(idComparator),
	}
}

// Clear resets the State for reuse, keeping its allocations where the
// underlying collections allow it.
func (s *State) Clear() {
	s.queue.Clear()
	s.seen.Clear()
	s.buf = s.buf[:0]
	s.parentBuf = s.parentBuf[:0]
}

// markSeen records id and reports whether it was new.
func (s *State) markSeen(id plumbing.ObjectID) bool {
	if s.seen.Contains(id) {
		return false
	}
	s.seen.Add(id)
	return true
}

// datedParent pairs a discovered parent with its committer date while
// its batch is being ordered.
type datedParent struct {
	id   plumbing.ObjectID
	when int64
}

// Ancestors walks the ancestry of a set of tip commits, yielding each
// reachable commit exactly once. The walk is pull-based: commits are
// looked up lazily as Next is called, so an Ancestors over a large
// history costs nothing until it is consumed.
type Ancestors struct {
	find      FindCommit
	predicate func(plumbing.ObjectID) bool
	state     *State
	tips      []plumbing.ObjectID

	parents Parents
	sorting Sorting

	started bool
	err     error
}

// NewAncestors returns a walker over the ancestry of tips, following
// all parents in GraphOrder. Use Sort and FollowParents before the
// first Next to change that.
func NewAncestors(tips []plumbing.ObjectID, state *State, find FindCommit) *Ancestors {
	return NewFilteredAncestors(tips, state, find, nil)
}

// NewFilteredAncestors is NewAncestors with a predicate: commits it
// rejects are neither yielded nor expanded, but still count as seen,
// so the walk never reconsiders them through another path.
func NewFilteredAncestors(tips []plumbing.ObjectID, state *State, find FindCommit, predicate func(plumbing.ObjectID) bool) *Ancestors {
	return &Ancestors{
		find:      find,
		predicate: predicate,
		state:     state,
		tips:      tips,
	}
}

// Sort sets the yield order. It must be called before the first Next.
func (a *Ancestors) Sort(s Sorting) *Ancestors {
	a.sorting = s
	return a
}

// FollowParents sets which parents the walk follows. It must be called
// before the first Next.
func (a *Ancestors) FollowParents(p Parents) *Ancestors {
	a.parents = p
	return a
}

// Next returns the id of the next commit in the walk. Once the walk is
// exhausted it returns io.EOF, and keeps doing so on further calls.
func (a *Ancestors) Next() (plumbing.ObjectID, error) {
	if a.err != nil {
		return plumbing.ZeroID, a.err
	}
	if !a.started {
		a.started = true
		a.enqueueTips()
	}

	v, ok := a.state.queue.Dequeue()
	if !ok {
		a.err = io.EOF
		return plumbing.ZeroID, a.err
	}
	id := v.(plumbing.ObjectID)

	it, ok := a.find(id, &a.state.buf)
	if !ok {
		a.err = fmt.Errorf("%w: %s", ErrCommitNotFound, id)
		return plumbing.ZeroID, a.err
	}

	var err error
	if a.sorting == ByCommitterDate {
		err = a.expandByDate(it)
	} else {
		err = a.expand(it)
	}
	if err != nil {
		a.err = err
		return plumbing.ZeroID, a.err
	}
	return id, nil
}

// ForEach calls cb for every commit of the walk, stopping early when
// cb returns an error.
func (a *Ancestors) ForEach(cb func(plumbing.ObjectID) error) error {
	for {
		id, err := a.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(id); err != nil {
			return err
		}
	}
}

// enqueueTips seeds the queue with the tips in the order given, with
// no date lookup even under ByCommitterDate. Tips are marked seen
// immediately; a tip the predicate rejects is dropped here and stays
// dropped even if it reappears as a parent.
func (a *Ancestors) enqueueTips() {
	for _, tip := range a.tips {
		if !a.state.markSeen(tip) {
			continue
		}
		if a.predicate != nil && !a.predicate(tip) {
			continue
		}
		a.state.queue.Enqueue(tip)
	}
}

// expand schedules the parents of the commit it is iterating over in
// listed order. Parents are marked seen the moment they are
// discovered, before the predicate rules on them, which guarantees
// each commit is considered at most once no matter how many paths
// reach it.
func (a *Ancestors) expand(it *object.CommitTokenIter) error {
	for {
		tok, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch tok.Kind {
		case object.TokenTree:
			continue
		case object.TokenParent:
			if a.state.markSeen(tok.ID) {
				if a.predicate == nil || a.predicate(tok.ID) {
					a.state.queue.Enqueue(tok.ID)
				}
			}
			if a.parents == ParentsFirst {
				return nil
			}
		default:
			// Parents precede every other header.
			return nil
		}
	}
}

// expandByDate collects the parents of one commit together with their
// committer dates, orders that batch newest first and appends it to
// the tail of the queue. Only the batch is sorted; commits already
// queued keep their positions.
func (a *Ancestors) expandByDate(it *object.CommitTokenIter) error {
	var batch []datedParent
	for {
		tok, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if tok.Kind == object.TokenTree {
			continue
		}
		if tok.Kind != object.TokenParent {
			// Parents precede every other header.
			break
		}

		if when, ok := a.lookupDate(tok.ID); ok {
			batch = append(batch, datedParent{id: tok.ID, when: when})
		}
		// A parent whose committer date cannot be determined is
		// dropped from the batch rather than surfaced as an error.

		if a.parents == ParentsFirst {
			break
		}
	}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].when > batch[j].when
	})
	for _, p := range batch {
		if !a.state.markSeen(p.id) {
			continue
		}
		if a.predicate != nil && !a.predicate(p.id) {
			continue
		}
		a.state.queue.Enqueue(p.id)
	}
	return nil
}

// lookupDate fetches id into the parent scratch buffer and extracts
// its committer date. The primary buffer stays untouched because the
// caller may still be iterating tokens borrowed from it.
func (a *Ancestors) lookupDate(id plumbing.ObjectID) (int64, bool) {
	it, ok := a.find(id, &a.state.parentBuf)
	if !ok {
		return 0, false
	}
	sig, ok := it.Committer()
	if !ok {
		return 0, false
	}
	return sig.When.Unix(), true
}
