package zipr

import (
	"io"
	"iter"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/skyline93/zipr/internal/format"
	"github.com/skyline93/zipr/internal/source"
)

// Open modes.
const (
	// OpenRead opens the archive for reading.
	OpenRead = 0x1

	// OpenDelete additionally unlinks the file right after opening. Its
	// bytes stay readable through the handle until the last close.
	OpenDelete = 0x4
)

// Archive is a handle on an open ZIP file. It is safe for concurrent use
// by multiple goroutines, as are the entry readers it hands out.
type Archive struct {
	name   string
	utf8   bool
	decode func([]byte) string
	encode func(string) []byte

	mu       sync.Mutex
	closed   bool
	lastName string
	lastPos  int

	res     *resources
	cleanup runtime.Cleanup
}

// Open opens the named ZIP file for reading.
func Open(path string, opts ...Option) (*Archive, error) {
	return OpenFile(path, OpenRead, opts...)
}

// OpenFile opens the named ZIP file in the given mode. mode must be
// OpenRead, optionally combined with OpenDelete.
func OpenFile(path string, mode int, opts ...Option) (*Archive, error) {
	if mode&OpenRead == 0 || mode&^(OpenRead|OpenDelete) != 0 {
		return nil, errors.Wrapf(ErrInvalidMode, "mode 0x%x", mode)
	}

	a := &Archive{name: path, utf8: true, lastPos: -1}
	for _, opt := range opts {
		opt(a)
	}

	src, err := source.Acquire(path, mode&OpenDelete != 0)
	if err != nil {
		return nil, err
	}
	a.res = newResources(src)

	// Safety net for handles dropped without Close. Explicit Close is
	// still the contract; the cleanup only releases the shared source
	// state once the handle is unreachable.
	a.cleanup = runtime.AddCleanup(a, func(res *resources) { _ = res.release() }, a.res)
	return a, nil
}

// Name returns the path the archive was opened with.
func (a *Archive) Name() string {
	return a.name
}

// Count returns the number of entries, 0 once closed.
func (a *Archive) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0
	}
	return a.res.src.Total()
}

// Comment returns the archive comment, "" if there is none or the archive
// is closed.
func (a *Archive) Comment() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ""
	}
	b := a.res.src.Comment()
	if len(b) == 0 {
		return ""
	}
	return a.toString(b, false)
}

// StartsWithLocalHeader reports whether the file begins with a local
// header signature. Self-extracting archives with a prepended stub do
// not.
func (a *Archive) StartsWithLocalHeader() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	return a.res.src.StartsWithLOC()
}

// Entry returns the entry with the given name. A directory entry matches
// with or without its trailing slash. Returns ErrNotFound when the name
// is absent and ErrClosed after Close.
func (a *Archive) Entry(name string) (*Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}
	pos := a.res.src.Lookup(a.toBytes(name), true)
	if pos < 0 {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return a.entryAt(pos), nil
}

// Entries returns an iterator over the entries in central directory
// order. The sequence is lazy and finite; every call re-walks from the
// first entry. Iteration ends early if the archive is closed.
func (a *Archive) Entries() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for i := 0; ; i++ {
			a.mu.Lock()
			if a.closed || i >= a.res.src.Total() {
				a.mu.Unlock()
				return
			}
			e := a.entryAt(a.res.src.EntryAt(i))
			a.mu.Unlock()
			if !yield(e) {
				return
			}
		}
	}
}

// Names returns an iterator over the entry names, in the same order as
// Entries.
func (a *Archive) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 0; ; i++ {
			a.mu.Lock()
			if a.closed || i >= a.res.src.Total() {
				a.mu.Unlock()
				return
			}
			name := a.entryName(a.res.src.EntryAt(i))
			a.mu.Unlock()
			if !yield(name) {
				return
			}
		}
	}
}

// MetaNames returns the names of all non-directory entries beginning with
// "META-INF/", case ignored, always decoded as UTF-8. Nil when there are
// none or the archive is closed.
func (a *Archive) MetaNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	poss := a.res.src.MetaNames()
	if len(poss) == 0 {
		return nil
	}
	cen := a.res.src.Cen()
	names := make([]string, len(poss))
	for i, pos := range poss {
		names[i] = string(cen[pos+format.CENHDR : pos+format.CENHDR+format.CenNam(cen, pos)])
	}
	return names
}

// Open returns a reader over the entry's payload, decompressing DEFLATED
// data transparently. The reader stays valid until it or the archive is
// closed; closing the archive closes every reader it handed out.
func (a *Archive) Open(e *Entry) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrClosed
	}

	var pos int
	switch {
	case a.lastPos >= 0 && a.lastName == e.Name:
		pos = a.lastPos
	case !a.utf8 && e.Flags&format.FlagUTF8 != 0:
		pos = a.res.src.Lookup([]byte(e.Name), false)
	default:
		pos = a.res.src.Lookup(a.toBytes(e.Name), false)
	}
	if pos < 0 {
		return nil, errors.Wrap(ErrNotFound, e.Name)
	}

	cen := a.res.src.Cen()
	zr := newEntryReader(a.res, cen, pos)
	switch format.CenHow(cen, pos) {
	case format.Stored:
		a.res.track(zr)
		return zr, nil
	case format.Deflated:
		ir := newInflateReader(a.res, zr, inflateBufSize(format.CenSiz(cen, pos)))
		a.res.track(ir)
		return ir, nil
	default:
		// Unreachable after index validation, kept as a hard stop.
		return nil, errors.Wrapf(ErrFormat, "invalid compression method %d", format.CenHow(cen, pos))
	}
}

// Close releases the archive: open entry readers first, then the flate
// cache, then the shared source. Close is idempotent; the first cleanup
// error is returned, later ones are dropped, and cleanup always runs to
// completion.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.cleanup.Stop()
	return a.res.release()
}

// entryAt materializes the entry at the given CEN offset. Caller holds
// a.mu.
func (a *Archive) entryAt(pos int) *Entry {
	cen := a.res.src.Cen()
	nlen := format.CenNam(cen, pos)
	elen := format.CenExt(cen, pos)
	clen := format.CenCom(cen, pos)
	flag := format.CenFlg(cen, pos)
	forceUTF8 := flag&format.FlagUTF8 != 0

	e := &Entry{
		Name:    a.toString(cen[pos+format.CENHDR:pos+format.CENHDR+nlen], forceUTF8),
		Flags:   flag,
		Method:  format.CenHow(cen, pos),
		ModTime: dosTime(format.CenTim(cen, pos)),
		CRC32:   format.CenCrc(cen, pos),
	}
	e.UncompressedSize, e.CompressedSize, _ = zip64Resolve(cen, pos)
	if elen != 0 {
		start := pos + format.CENHDR + nlen
		e.Extra = append([]byte(nil), cen[start:start+elen]...)
	}
	if clen != 0 {
		start := pos + format.CENHDR + nlen + elen
		e.Comment = a.toString(cen[start:start+clen], forceUTF8)
	}

	// Fast path for the common lookup-then-open pattern.
	a.lastName = e.Name
	a.lastPos = pos
	return e
}

// entryName decodes just the name of the entry at pos. Caller holds a.mu.
func (a *Archive) entryName(pos int) string {
	cen := a.res.src.Cen()
	nlen := format.CenNam(cen, pos)
	forceUTF8 := format.CenFlg(cen, pos)&format.FlagUTF8 != 0
	return a.toString(cen[pos+format.CENHDR:pos+format.CENHDR+nlen], forceUTF8)
}

func (a *Archive) toString(b []byte, forceUTF8 bool) string {
	if a.utf8 || forceUTF8 || a.decode == nil {
		return string(b)
	}
	return a.decode(b)
}

func (a *Archive) toBytes(name string) []byte {
	if a.utf8 || a.encode == nil {
		return []byte(name)
	}
	return a.encode(name)
}

// inflateBufSize sizes the compressed-input buffer for an inflating
// reader: a little slack past the compressed length, with oversized and
// degenerate values pulled back to sane defaults.
func inflateBufSize(csize uint32) int {
	size := int64(csize) + 2
	if size > 65536 {
		size = 8192
	}
	if size <= 0 {
		size = 4096
	}
	return int(size)
}
