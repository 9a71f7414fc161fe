// Package object implements streaming decoding of commit objects into
// tokens: the tree reference, parent references, author and committer
// signatures and finally the message.
package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-packdb/packdb/plumbing"
)

// ErrDecode is returned when a commit token stream is malformed.
var ErrDecode = errors.New("commit decode error")

// TokenKind identifies one token of a commit object.
type TokenKind int8

const (
	// TokenTree is the tree reference; always the first token.
	TokenTree TokenKind = iota + 1
	// TokenParent is one parent reference; zero or more follow the tree.
	TokenParent
	// TokenAuthor carries the author signature.
	TokenAuthor
	// TokenCommitter carries the committer signature.
	TokenCommitter
	// TokenHeader is any other header field, such as gpgsig.
	TokenHeader
	// TokenMessage carries the commit message and ends the stream.
	TokenMessage
)

// Token is one decoded element of a commit object.
type Token struct {
	Kind      TokenKind
	ID        plumbing.ObjectID // tree and parent tokens
	Signature Signature         // author and committer tokens
	Key       string            // other header tokens
	Data      []byte            // message token
}

const (
	stateTree = iota
	stateHeaders
	stateMessage
	stateDone
)

// CommitTokenIter yields the tokens of one raw commit in order. The
// iterator borrows the byte slice it was created over; the slice must
// stay untouched while the iterator is used.
type CommitTokenIter struct {
	data  []byte
	state int8
}

// NewCommitTokenIter returns an iterator over the raw bytes of a
// commit object (without the loose-object header).
func NewCommitTokenIter(data []byte) *CommitTokenIter {
	return &CommitTokenIter{data: data}
}

// Next returns the next token, or io.EOF after the message token. The
// first token must be a valid tree reference; a malformed line anywhere
// fails the iteration at that point.
func (it *CommitTokenIter) Next() (Token, error) {
	switch it.state {
	case stateDone:
		return Token{}, io.EOF

	case stateMessage:
		it.state = stateDone
		return Token{Kind: TokenMessage, Data: it.data}, nil

	case stateTree:
		line, err := it.line()
		if err != nil {
			return Token{}, err
		}
		id, ok := headerID(line, "tree")
		if !ok {
			return Token{}, fmt.Errorf("%w: first line is not a tree reference", ErrDecode)
		}
		it.state = stateHeaders
		return Token{Kind: TokenTree, ID: id}, nil

	default:
		return it.nextHeader()
	}
}

func (it *CommitTokenIter) nextHeader() (Token, error) {
	line, err := it.line()
	if err != nil {
		return Token{}, err
	}

	if len(line) == 0 {
		// Blank line: everything that remains is the message.
		it.state = stateMessage
		return it.Next()
	}

	switch {
	case bytes.HasPrefix(line, []byte("parent ")):
		id, ok := headerID(line, "parent")
		if !ok {
			return Token{}, fmt.Errorf("%w: malformed parent line %q", ErrDecode, line)
		}
		return Token{Kind: TokenParent, ID: id}, nil

	case bytes.HasPrefix(line, []byte("author ")):
		sig, _ := ParseSignature(line[len("author "):])
		return Token{Kind: TokenAuthor, Signature: sig}, nil

	case bytes.HasPrefix(line, []byte("committer ")):
		sig, _ := ParseSignature(line[len("committer "):])
		return Token{Kind: TokenCommitter, Signature: sig}, nil
	}

	key := line
	if sp := bytes.IndexByte(line, ' '); sp >= 0 {
		key = line[:sp]
	}

	// Fold continuation lines (leading space) into their header.
	for len(it.data) > 0 && it.data[0] == ' ' {
		if _, err := it.line(); err != nil {
			return Token{}, err
		}
	}

	return Token{Kind: TokenHeader, Key: string(key)}, nil
}

// line consumes one newline-terminated line from the remaining data.
func (it *CommitTokenIter) line() ([]byte, error) {
	nl := bytes.IndexByte(it.data, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("%w: truncated header", ErrDecode)
	}

	line := it.data[:nl]
	it.data = it.data[nl+1:]
	return line, nil
}

// headerID parses a "<key> <40-hex>" line.
func headerID(line []byte, key string) (plumbing.ObjectID, bool) {
	prefix := key + " "
	if !bytes.HasPrefix(line, []byte(prefix)) {
		return plumbing.ZeroID, false
	}
	return plumbing.FromHex(string(line[len(prefix):]))
}

// Committer scans a fresh pass over the commit for its committer
// signature. The iterator itself is not advanced. A committer header
// without a parseable timestamp counts as absent.
func (it *CommitTokenIter) Committer() (Signature, bool) {
	scan := NewCommitTokenIter(it.data)
	if it.state != stateTree {
		// The iterator may have been advanced; rescanning headers only
		// is still correct because committer follows them.
		scan.state = stateHeaders
	}

	for {
		tok, err := scan.Next()
		if err != nil {
			return Signature{}, false
		}
		switch tok.Kind {
		case TokenCommitter:
			return tok.Signature, !tok.Signature.When.IsZero()
		case TokenMessage:
			return Signature{}, false
		}
	}
}
