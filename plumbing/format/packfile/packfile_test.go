package packfile_test

import (
	"hash/crc32"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/cache"
	"github.com/go-packdb/packdb/plumbing/format/idxfile"
	"github.com/go-packdb/packdb/plumbing/format/packfile"
	"github.com/go-packdb/packdb/plumbing/hash"
)

// leb128 encodes n the way delta headers expect: low seven bits first,
// high bit marking continuation.
func leb128(n uint64) []byte {
	out := []byte{byte(n & 0x7f)}
	for n >>= 7; n > 0; n >>= 7 {
		out[len(out)-1] |= 0x80
		out = append(out, byte(n&0x7f))
	}
	return out
}

// copyAppendDelta produces base plus extra through one copy command
// and one insert command.
func copyAppendDelta(baseLen int, extra []byte) []byte {
	delta := leb128(uint64(baseLen))
	delta = append(delta, leb128(uint64(baseLen+len(extra)))...)
	// copy from src: offset 0 (no offset bytes), one size byte
	delta = append(delta, 0x90, byte(baseLen))
	// insert from delta
	delta = append(delta, byte(len(extra)))
	return append(delta, extra...)
}

// insertDelta replaces the base entirely with content.
func insertDelta(baseLen int, content []byte) []byte {
	delta := leb128(uint64(baseLen))
	delta = append(delta, leb128(uint64(len(content)))...)
	delta = append(delta, byte(len(content)))
	return append(delta, content...)
}

func writeFile(t *testing.T, fs billy.Filesystem, name string, data []byte) billy.File {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	return f
}

type fixture struct {
	bundle *packfile.Bundle
	pack   []byte

	baseID, ofsID, refID                plumbing.ObjectID
	baseContent, ofsContent, refContent []byte
	baseOff, ofsOff, refOff             uint64
}

// newFixture builds a three-entry pack: a blob, an ofs-delta extending
// it and a ref-delta replacing it, plus the matching v2 index.
func newFixture(t *testing.T, packID uint32) *fixture {
	t.Helper()

	fx := &fixture{
		baseContent: []byte("the quick brown fox jumps over the lazy dog"),
	}
	fx.ofsContent = append(append([]byte{}, fx.baseContent...), []byte(" again")...)
	fx.refContent = []byte("a fully inserted replacement")

	fx.baseID = hash.Compute(plumbing.BlobObject, fx.baseContent)
	fx.ofsID = hash.Compute(plumbing.BlobObject, fx.ofsContent)
	fx.refID = hash.Compute(plumbing.BlobObject, fx.refContent)

	enc := packfile.NewEncoder()

	var baseCRC, ofsCRC, refCRC uint32
	var err error
	fx.baseOff, baseCRC, err = enc.Append(plumbing.BlobObject, fx.baseContent)
	require.NoError(t, err)
	fx.ofsOff, ofsCRC, err = enc.AppendOFSDelta(fx.baseOff, copyAppendDelta(len(fx.baseContent), []byte(" again")))
	require.NoError(t, err)
	fx.refOff, refCRC, err = enc.AppendREFDelta(fx.baseID, insertDelta(len(fx.baseContent), fx.refContent))
	require.NoError(t, err)

	var checksum plumbing.ObjectID
	fx.pack, checksum = enc.Finish()

	entries := []idxfile.Entry{
		{OID: fx.baseID, Offset: fx.baseOff, CRC32: baseCRC},
		{OID: fx.ofsID, Offset: fx.ofsOff, CRC32: ofsCRC},
		{OID: fx.refID, Offset: fx.refOff, CRC32: refCRC},
	}

	fs := memfs.New()
	packFile := writeFile(t, fs, "pack-fix.pack", fx.pack)

	idxFile, err := fs.Create("pack-fix.idx")
	require.NoError(t, err)
	_, err = idxfile.NewEncoder(idxfile.V2).Encode(idxFile, entries, checksum)
	require.NoError(t, err)

	idx, err := idxfile.Open(idxFile)
	require.NoError(t, err)
	p, err := packfile.OpenPack(packFile, packID)
	require.NoError(t, err)

	fx.bundle = packfile.NewBundle(idx, p)
	t.Cleanup(func() { _ = fx.bundle.Close() })
	return fx
}

func TestPackHeader(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 7)
	p := fx.bundle.Pack

	assert.Equal(t, uint32(7), p.ID())
	assert.Equal(t, uint32(2), p.Version())
	assert.Equal(t, uint32(3), p.ObjectCount())
	assert.Equal(t, fx.bundle.Index.PackChecksum(), p.Checksum())
	assert.NoError(t, fx.bundle.VerifyChecksum())
}

func TestGetNonDelta(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 0)

	var buf []byte
	obj, ok, err := fx.bundle.Get(fx.baseID, &buf, cache.Noop{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, plumbing.BlobObject, obj.Type)
	assert.Equal(t, fx.baseContent, obj.Data)
}

func TestGetResolvesOFSDelta(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 0)

	var buf []byte
	obj, ok, err := fx.bundle.Get(fx.ofsID, &buf, cache.Noop{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, plumbing.BlobObject, obj.Type, "deltas inherit the base type")
	assert.Equal(t, fx.ofsContent, obj.Data)
}

func TestGetResolvesREFDelta(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 0)

	var buf []byte
	obj, ok, err := fx.bundle.Get(fx.refID, &buf, cache.Noop{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fx.refContent, obj.Data)
}

func TestGetAbsent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 0)

	var buf []byte
	_, ok, err := fx.bundle.Get(hash.Sum([]byte("not here")), &buf, cache.Noop{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetWithCache(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 3)
	dc := cache.NewLRU(16)

	var buf []byte
	for i := 0; i < 3; i++ {
		obj, ok, err := fx.bundle.Get(fx.ofsID, &buf, dc)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fx.ofsContent, obj.Data)
	}

	// The base was cached under its own offset during delta resolution.
	cached, ok := dc.Get(3, fx.baseOff)
	assert.True(t, ok)
	assert.Equal(t, fx.baseContent, cached.Data)
}

func TestEntryHeader(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 0)
	p := fx.bundle.Pack

	h, err := p.EntryHeader(fx.baseOff)
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, h.Type)
	assert.Equal(t, uint64(len(fx.baseContent)), h.Size)

	h, err = p.EntryHeader(fx.ofsOff)
	require.NoError(t, err)
	assert.Equal(t, plumbing.OFSDeltaObject, h.Type)
	assert.Equal(t, fx.baseOff, h.BaseOffset)

	h, err = p.EntryHeader(fx.refOff)
	require.NoError(t, err)
	assert.Equal(t, plumbing.REFDeltaObject, h.Type)
	assert.Equal(t, fx.baseID, h.BaseID)

	_, err = p.EntryHeader(0)
	assert.ErrorIs(t, err, packfile.ErrCorruptPack)
}

func TestLocationByOID(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 9)

	var buf []byte
	loc, ok := fx.bundle.LocationByOID(fx.baseID, &buf)
	require.True(t, ok)
	assert.Equal(t, uint32(9), loc.PackID)
	assert.Equal(t, fx.baseOff, loc.PackOffset)
	assert.Equal(t, int(fx.ofsOff-fx.baseOff), loc.EntrySize,
		"entry span must end exactly where the next entry starts")

	loc, ok = fx.bundle.LocationByOID(fx.ofsID, &buf)
	require.True(t, ok)
	assert.Equal(t, int(fx.refOff-fx.ofsOff), loc.EntrySize)

	_, ok = fx.bundle.LocationByOID(hash.Sum([]byte("absent")), &buf)
	assert.False(t, ok)
}

func TestEntryByLocation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, 2)

	var buf []byte
	loc, ok := fx.bundle.LocationByOID(fx.ofsID, &buf)
	require.True(t, ok)

	raw, ok := fx.bundle.EntryByLocation(loc)
	require.True(t, ok)
	assert.Equal(t, fx.pack[fx.ofsOff:fx.refOff], raw.Data)
	assert.Equal(t, uint32(2), raw.Version)
	require.True(t, raw.HasCRC32)
	assert.Equal(t, raw.CRC32, crc32.ChecksumIEEE(raw.Data))

	// A location from another pack is rejected.
	loc.PackID = 5
	_, ok = fx.bundle.EntryByLocation(loc)
	assert.False(t, ok)
}

func TestGetMissingREFDeltaBase(t *testing.T) {
	t.Parallel()

	ghost := hash.Sum([]byte("no such base"))
	content := []byte("target")

	enc := packfile.NewEncoder()
	off, crc, err := enc.AppendREFDelta(ghost, insertDelta(0, content))
	require.NoError(t, err)
	packData, checksum := enc.Finish()

	id := hash.Compute(plumbing.BlobObject, content)
	fs := memfs.New()
	packFile := writeFile(t, fs, "p.pack", packData)
	idxFile, err := fs.Create("p.idx")
	require.NoError(t, err)
	_, err = idxfile.NewEncoder(idxfile.V2).Encode(idxFile, []idxfile.Entry{{OID: id, Offset: off, CRC32: crc}}, checksum)
	require.NoError(t, err)

	idx, err := idxfile.Open(idxFile)
	require.NoError(t, err)
	p, err := packfile.OpenPack(packFile, 0)
	require.NoError(t, err)
	b := packfile.NewBundle(idx, p)
	defer b.Close()

	var buf []byte
	_, _, err = b.Get(id, &buf, cache.Noop{})
	assert.ErrorIs(t, err, packfile.ErrCorruptPack)
}

func TestOpenPackRejectsGarbage(t *testing.T) {
	t.Parallel()

	fs := memfs.New()

	f := writeFile(t, fs, "short.pack", []byte("PACK"))
	_, err := packfile.OpenPack(f, 0)
	assert.ErrorIs(t, err, packfile.ErrCorruptPack)

	f = writeFile(t, fs, "sig.pack", make([]byte, 64))
	_, err = packfile.OpenPack(f, 0)
	assert.ErrorIs(t, err, packfile.ErrCorruptPack)

	bad := append([]byte("PACK"), 0, 0, 0, 3)
	bad = append(bad, make([]byte, 32)...)
	f = writeFile(t, fs, "ver.pack", bad)
	_, err = packfile.OpenPack(f, 0)
	assert.ErrorIs(t, err, packfile.ErrUnsupportedPackVersion)
}

func TestPatchDelta(t *testing.T) {
	t.Parallel()

	base := []byte("0123456789")

	t.Run("copy and insert", func(t *testing.T) {
		t.Parallel()
		got, err := packfile.PatchDelta(base, copyAppendDelta(len(base), []byte("abc")))
		require.NoError(t, err)
		assert.Equal(t, "0123456789abc", string(got))
	})

	t.Run("insert only", func(t *testing.T) {
		t.Parallel()
		got, err := packfile.PatchDelta(base, insertDelta(len(base), []byte("xyz")))
		require.NoError(t, err)
		assert.Equal(t, "xyz", string(got))
	})

	t.Run("source size mismatch", func(t *testing.T) {
		t.Parallel()
		_, err := packfile.PatchDelta(base[1:], insertDelta(len(base), []byte("xyz")))
		assert.ErrorIs(t, err, packfile.ErrInvalidDelta)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := packfile.PatchDelta(base, []byte{1, 2})
		assert.ErrorIs(t, err, packfile.ErrInvalidDelta)
	})

	t.Run("truncated insert payload", func(t *testing.T) {
		t.Parallel()
		delta := append(leb128(uint64(len(base))), leb128(5)...)
		delta = append(delta, 5, 'a', 'b') // announces five bytes, carries two
		_, err := packfile.PatchDelta(base, delta)
		assert.ErrorIs(t, err, packfile.ErrInvalidDelta)
	})

	t.Run("copy out of range", func(t *testing.T) {
		t.Parallel()
		delta := append(leb128(uint64(len(base))), leb128(20)...)
		delta = append(delta, 0x91, 8, 20) // offset 8, size 20: past the base
		_, err := packfile.PatchDelta(base, delta)
		assert.ErrorIs(t, err, packfile.ErrInvalidDelta)
	})
}
