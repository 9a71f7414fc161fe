// Command packdb inspects git-style object stores: it verifies index
// files, reads objects through a linked store, explodes packs into
// loose objects and walks commit ancestry.
package main

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/pflag"

	"github.com/go-packdb/packdb/plumbing"
	"github.com/go-packdb/packdb/plumbing/cache"
	"github.com/go-packdb/packdb/plumbing/format/idxfile"
	"github.com/go-packdb/packdb/plumbing/format/objfile"
	"github.com/go-packdb/packdb/plumbing/traverse"
	"github.com/go-packdb/packdb/storage/linked"
)

var (
	cacheMiB    = pflag.Int("cache-mib", 96, "delta base cache budget in MiB, 0 disables it")
	firstParent = pflag.Bool("first-parent", false, "log: follow only first parents")
	dateOrder   = pflag.Bool("date-order", false, "log: yield newest committer date first")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: packdb [flags] <command> <args>

commands:
  verify  <file.idx>                check an index file and print its stats
  cat     <objects-dir> <hex-id>    print an object's type, size and content
  explode <objects-dir> <pack-id>   rewrite one pack's objects as loose objects
  log     <objects-dir> <hex-tip>   list the ancestry of a commit

flags:
`)
	pflag.PrintDefaults()
}

func main() {
	pflag.Usage = usage
	pflag.Parse()
	args := pflag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd := args[0]; cmd {
	case "verify":
		err = runVerify(args[1:])
	case "cat":
		err = runCat(args[1:])
	case "explode":
		err = runExplode(args[1:])
	case "log":
		err = runLog(args[1:])
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "packdb:", err)
		os.Exit(1)
	}
}

func decodeCache() cache.DecodeEntry {
	if *cacheMiB <= 0 {
		return cache.Noop{}
	}
	return cache.NewMemoryLRU(cache.FileSize(*cacheMiB) * cache.MiByte)
}

func runVerify(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("verify wants exactly one index file")
	}

	fs := osfs.New(filepath.Dir(args[0]))
	f, err := fs.Open(filepath.Base(args[0]))
	if err != nil {
		return err
	}

	idx, err := idxfile.Open(f)
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.VerifyChecksum(); err != nil {
		return err
	}

	fmt.Printf("version:        %d\n", idx.Version())
	fmt.Printf("objects:        %d\n", idx.Count())
	fmt.Printf("pack checksum:  %s\n", idx.PackChecksum())
	fmt.Printf("index checksum: %s\n", idx.IndexChecksum())
	return nil
}

func runCat(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("cat wants an objects directory and an object id")
	}

	id, ok := plumbing.FromHex(args[1])
	if !ok {
		return fmt.Errorf("malformed object id %q", args[1])
	}

	store, err := linked.Open(osfs.New(args[0]))
	if err != nil {
		return err
	}
	defer store.Close()

	var buf []byte
	obj, ok, err := store.Find(id, &buf, decodeCache())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", plumbing.ErrObjectNotFound, id)
	}

	fmt.Printf("%s %d\n", obj.Type, len(obj.Data))
	_, err = os.Stdout.Write(obj.Data)
	return err
}

// runExplode rewrites every object of one pack as a loose object in
// the same objects directory, checking each raw entry against its
// index CRC on the way.
func runExplode(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("explode wants an objects directory and a pack id")
	}

	packID, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("malformed pack id %q", args[1])
	}

	fs := osfs.New(args[0])
	store, err := linked.Open(fs)
	if err != nil {
		return err
	}
	defer store.Close()

	iter, ok := store.IndexIterByPackID(uint32(packID))
	if !ok {
		return fmt.Errorf("no pack with id %d", packID)
	}

	dc := decodeCache()
	var buf []byte
	var exploded int
	err = iter.ForEach(func(e idxfile.Entry) error {
		loc, ok := store.LocationByOID(e.OID, &buf)
		if !ok {
			return fmt.Errorf("cannot locate %s", e.OID)
		}
		raw, ok := store.EntryByLocation(loc)
		if !ok {
			return fmt.Errorf("cannot extract entry for %s", e.OID)
		}
		if raw.HasCRC32 && crc32.ChecksumIEEE(raw.Data) != raw.CRC32 {
			return fmt.Errorf("entry %s fails its CRC", e.OID)
		}

		obj, ok, err := store.Find(e.OID, &buf, dc)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", plumbing.ErrObjectNotFound, e.OID)
		}

		if err := writeLoose(fs, e.OID, obj); err != nil {
			return err
		}
		exploded++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("exploded %d objects\n", exploded)
	return nil
}

func writeLoose(fs billy.Filesystem, id plumbing.ObjectID, obj plumbing.RawObject) error {
	hex := id.String()
	dir := hex[0:2]
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := fs.Create(fs.Join(dir, hex[2:]))
	if err != nil {
		return err
	}
	if err := objfile.Write(f, obj.Type, obj.Data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func runLog(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("log wants an objects directory and a tip id")
	}

	tip, ok := plumbing.FromHex(args[1])
	if !ok {
		return fmt.Errorf("malformed object id %q", args[1])
	}

	store, err := linked.Open(osfs.New(args[0]))
	if err != nil {
		return err
	}
	defer store.Close()

	walk := traverse.NewAncestors([]plumbing.ObjectID{tip}, traverse.NewState(), store.CommitLookup(decodeCache()))
	if *firstParent {
		walk.FollowParents(traverse.ParentsFirst)
	}
	if *dateOrder {
		walk.Sort(traverse.ByCommitterDate)
	}

	return walk.ForEach(func(id plumbing.ObjectID) error {
		_, err := fmt.Println(id)
		return err
	})
}
