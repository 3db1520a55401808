// Package source owns the shared per-file state of an open ZIP archive:
// the OS file handle, the raw central directory bytes and the name index
// built over them.
//
// Sources are deduplicated by file identity (modification time plus
// device and inode where available) and reference counted, so several
// logical handles over the same physical file share one parse of the
// central directory and one descriptor. The last release closes the file.
package source

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skyline93/zipr/internal/format"
	"github.com/skyline93/zipr/internal/fs"
)

// Key identifies one physical file independently of the path string used
// to open it. Path is only set when the platform offers no device/inode
// identity.
type Key struct {
	ModTime  int64
	Dev, Ino uint64
	Path     string
}

func newKey(path string) (Key, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return Key{}, err
	}
	k := Key{ModTime: fi.ModTime().UnixNano()}
	if dev, ino, ok := fs.FileID(path); ok {
		k.Dev, k.Ino = dev, ino
		return k, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Key{}, err
	}
	k.Path = abs
	return k, nil
}

// Source holds the shared state for one physical ZIP file.
type Source struct {
	key  Key
	refs int // guarded by the registry mutex

	f    *os.File
	size int64

	cen     []byte // CEN records plus the trailing END header
	locpos  int64  // position of the first LOC header (usually 0)
	comment []byte

	// Packed name index: three int32 per entry (name hash, chain next as
	// an offset into entries or endChain, CEN record offset). Keeping the
	// triples flat instead of allocating a struct per entry matters for
	// archives with hundreds of thousands of entries.
	entries []int32
	table   []int32 // hash chain heads, offsets into entries
	total   int

	metaNames     []int // CEN offsets of non-directory META-INF/ entries
	startsWithLOC bool
}

var (
	mu    sync.Mutex
	files = make(map[Key]*Source)
)

// Acquire returns the shared Source for the named file, opening and
// parsing it on first use. With toDelete set the file is removed from the
// filesystem namespace right after opening; the open descriptor keeps its
// bytes readable until the last release.
func Acquire(path string, toDelete bool) (*Source, error) {
	key, err := newKey(path)
	if err != nil {
		return nil, errors.Wrap(err, "Stat")
	}

	mu.Lock()
	if src := files[key]; src != nil {
		src.refs++
		mu.Unlock()
		log.Debugf("zip source %s shared, %d refs", path, src.refs)
		return src, nil
	}
	mu.Unlock()

	src, err := newSource(key, path, toDelete)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if winner := files[key]; winner != nil {
		// Lost a construction race; discard ours and share the winner.
		_ = src.close()
		winner.refs++
		return winner, nil
	}
	files[key] = src
	return src, nil
}

// Release drops one reference. The registry entry is removed and the file
// closed when the last reference goes away.
func Release(src *Source) error {
	if src == nil {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	src.refs--
	if src.refs > 0 {
		return nil
	}
	delete(files, src.key)
	log.Debugf("closing zip source, key %+v", src.key)
	return src.close()
}

func newSource(key Key, path string, toDelete bool) (*Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Open")
	}
	if toDelete {
		if err := fs.Remove(path); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "Remove")
		}
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "Stat")
	}

	s := &Source{key: key, refs: 1, f: f, size: fi.Size()}
	if err := s.parse(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) parse() error {
	end, err := s.findEnd()
	if err != nil {
		return err
	}
	if err := s.initCEN(end); err != nil {
		return err
	}
	if s.size >= 4 {
		var buf [4]byte
		if err := s.ReadFullyAt(buf[:], 0); err != nil {
			return err
		}
		s.startsWithLOC = format.Sig(buf[:], 0) == format.LOCSIG
	}
	return nil
}

func (s *Source) close() error {
	err := s.f.Close()
	s.cen = nil
	s.entries = nil
	s.table = nil
	s.metaNames = nil
	s.comment = nil
	return err
}

// ReadFullyAt reads exactly len(p) bytes at off. The descriptor is shared
// by every stream over this source; positioned reads leave no cursor to
// fight over.
func (s *Source) ReadFullyAt(p []byte, off int64) error {
	_, err := s.f.ReadAt(p, off)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// ReadAt reads up to len(p) bytes at off, returning the count read.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

// Cen exposes the raw central directory bytes; offsets returned by Lookup
// and EntryAt point into this buffer. Nil when the archive holds only an
// END record.
func (s *Source) Cen() []byte { return s.cen }

// Total returns the number of indexed entries.
func (s *Source) Total() int { return s.total }

// EntryAt returns the CEN offset of the i-th entry in central directory
// order.
func (s *Source) EntryAt(i int) int { return int(s.entries[i*3+2]) }

// Locpos returns the position of the first local header, accounting for a
// stub prefixed to the archive.
func (s *Source) Locpos() int64 { return s.locpos }

// Comment returns the raw archive comment bytes, nil if none.
func (s *Source) Comment() []byte { return s.comment }

// MetaNames returns the CEN offsets of non-directory entries whose names
// start with "META-INF/", case ignored.
func (s *Source) MetaNames() []int { return s.metaNames }

// StartsWithLOC reports whether the file begins with a local header
// signature, which is false for self-extracting archives with a prepended
// stub.
func (s *Source) StartsWithLOC() bool { return s.startsWithLOC }

// Refs returns the current reference count.
func (s *Source) Refs() int {
	mu.Lock()
	defer mu.Unlock()
	return s.refs
}
