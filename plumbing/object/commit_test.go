package object

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-packdb/packdb/plumbing"
)

const (
	treeHex    = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	parent1Hex = "8ab686eafeb1f44702738c8b0f24f2567c36da6d"
	parent2Hex = "b029517f6300c2da0f4b651b8642506cd6aaf45d"
)

func mustHex(t *testing.T, s string) plumbing.ObjectID {
	t.Helper()
	id, ok := plumbing.FromHex(s)
	require.True(t, ok)
	return id
}

const mergeCommit = "tree " + treeHex + "\n" +
	"parent " + parent1Hex + "\n" +
	"parent " + parent2Hex + "\n" +
	"author Alice <alice@example.com> 1257894000 +0100\n" +
	"committer Bob <bob@example.com> 1257894030 -0500\n" +
	"gpgsig -----BEGIN PGP SIGNATURE-----\n" +
	" iQEcBAABAgAGBQJTZbQl\n" +
	" -----END PGP SIGNATURE-----\n" +
	"\n" +
	"Merge branch 'topic'\n"

func TestCommitTokens(t *testing.T) {
	t.Parallel()

	it := NewCommitTokenIter([]byte(mergeCommit))

	tok, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenTree, tok.Kind)
	assert.Equal(t, mustHex(t, treeHex), tok.ID)

	tok, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenParent, tok.Kind)
	assert.Equal(t, mustHex(t, parent1Hex), tok.ID)

	tok, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenParent, tok.Kind)
	assert.Equal(t, mustHex(t, parent2Hex), tok.ID)

	tok, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenAuthor, tok.Kind)
	assert.Equal(t, "Alice", tok.Signature.Name)
	assert.Equal(t, "alice@example.com", tok.Signature.Email)
	assert.Equal(t, int64(1257894000), tok.Signature.When.Unix())

	tok, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenCommitter, tok.Kind)
	assert.Equal(t, "Bob", tok.Signature.Name)
	assert.Equal(t, int64(1257894030), tok.Signature.When.Unix())

	tok, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenHeader, tok.Kind)
	assert.Equal(t, "gpgsig", tok.Key, "continuation lines fold into the header")

	tok, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenMessage, tok.Kind)
	assert.Equal(t, "Merge branch 'topic'\n", string(tok.Data))

	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCommitWithoutParents(t *testing.T) {
	t.Parallel()

	data := "tree " + treeHex + "\n" +
		"author A <a@b> 1 +0000\n" +
		"committer A <a@b> 1 +0000\n" +
		"\n" +
		"root\n"

	var kinds []TokenKind
	it := NewCommitTokenIter([]byte(data))
	for {
		tok, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []TokenKind{TokenTree, TokenAuthor, TokenCommitter, TokenMessage}, kinds)
}

func TestCommitMalformed(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no tree", "parent " + parent1Hex + "\n"},
		{"bad tree id", "tree zzz\n"},
		{"truncated line", "tree " + treeHex},
		{"bad parent", "tree " + treeHex + "\nparent nope\n"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			it := NewCommitTokenIter([]byte(tc.data))
			for {
				_, err := it.Next()
				if err != nil {
					assert.ErrorIs(t, err, ErrDecode)
					return
				}
			}
		})
	}
}

func TestCommitter(t *testing.T) {
	t.Parallel()

	it := NewCommitTokenIter([]byte(mergeCommit))
	sig, ok := it.Committer()
	require.True(t, ok)
	assert.Equal(t, "Bob", sig.Name)
	assert.Equal(t, int64(1257894030), sig.When.Unix())

	// A partially consumed iterator still finds the committer.
	_, err := it.Next()
	require.NoError(t, err)
	sig, ok = it.Committer()
	require.True(t, ok)
	assert.Equal(t, "Bob", sig.Name)
}

func TestCommitterMissingOrDateless(t *testing.T) {
	t.Parallel()

	noCommitter := "tree " + treeHex + "\n\nmsg\n"
	_, ok := NewCommitTokenIter([]byte(noCommitter)).Committer()
	assert.False(t, ok)

	dateless := "tree " + treeHex + "\n" +
		"committer Bob <bob@example.com>\n" +
		"\nmsg\n"
	_, ok = NewCommitTokenIter([]byte(dateless)).Committer()
	assert.False(t, ok)
}

func TestParseSignature(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		in    string
		sig   Signature
		ok    bool
		where string
	}{
		{
			name:  "plus offset",
			in:    "Jane Doe <jane@example.com> 1257894000 +0100",
			sig:   Signature{Name: "Jane Doe", Email: "jane@example.com"},
			ok:    true,
			where: "+0100",
		},
		{
			name:  "minus offset",
			in:    "Jane <j@e> 1257894000 -0730",
			sig:   Signature{Name: "Jane", Email: "j@e"},
			ok:    true,
			where: "-0730",
		},
		{
			name: "empty name",
			in:   "<j@e> 1257894000 +0000",
			sig:  Signature{Email: "j@e"},
			ok:   true,
		},
		{
			name: "no timestamp",
			in:   "Jane <j@e>",
			sig:  Signature{Name: "Jane", Email: "j@e"},
			ok:   false,
		},
		{
			name: "garbage timestamp",
			in:   "Jane <j@e> soon +0000",
			sig:  Signature{Name: "Jane", Email: "j@e"},
			ok:   false,
		},
		{
			name: "empty",
			in:   "",
			ok:   false,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sig, ok := ParseSignature([]byte(tc.in))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.sig.Name, sig.Name)
			assert.Equal(t, tc.sig.Email, sig.Email)
			if tc.ok {
				assert.Equal(t, int64(1257894000), sig.When.Unix())
				if tc.where != "" {
					zone, _ := sig.When.Zone()
					assert.Equal(t, tc.where, zone)
				}
			} else {
				assert.True(t, sig.When.IsZero())
			}
		})
	}
}

func TestParseTimeZoneFallback(t *testing.T) {
	t.Parallel()

	sig, ok := ParseSignature([]byte("J <j@e> 1257894000 somewhere"))
	require.True(t, ok)
	assert.Equal(t, time.UTC, sig.When.Location())
}
