package zipr

import (
	"io"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/skyline93/zipr/internal/format"
)

// entryReader reads one entry's raw, possibly compressed payload straight
// from the shared source. Reads are positioned, so any number of readers
// can share the descriptor.
type entryReader struct {
	res *resources

	mu     sync.Mutex
	closed bool
	pos    int64  // negative until the data offset is resolved
	rem    uint64 // payload bytes remaining
	size   uint64 // uncompressed size of the entry
}

func newEntryReader(res *resources, cen []byte, pos int) *entryReader {
	size, csize, off := zip64Resolve(cen, pos)
	return &entryReader{
		res:  res,
		rem:  csize,
		size: size,
		// Stored negated until the local header confirms where the
		// payload really starts, see initDataOffset.
		pos: -(int64(off) + res.src.Locpos()),
	}
}

// initDataOffset re-reads the local file header to find the payload
// start. The format allows the local extra field length to differ from
// the central copy, so the central offset alone cannot be trusted.
// Caller holds r.mu.
func (r *entryReader) initDataOffset() error {
	if r.pos > 0 {
		return nil
	}
	pos := -r.pos
	loc := make([]byte, format.LOCHDR)
	if err := r.res.src.ReadFullyAt(loc, pos); err != nil {
		if err == io.ErrUnexpectedEOF {
			return errors.Wrap(ErrFormat, "reading local header")
		}
		return errors.Wrap(err, "reading local header")
	}
	if format.Sig(loc, 0) != format.LOCSIG {
		return errors.Wrap(ErrFormat, "invalid LOC header (bad signature)")
	}
	r.pos = pos + int64(format.LOCHDR+format.LocNam(loc)+format.LocExt(loc))
	return nil
}

func (r *entryReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, io.EOF
	}
	if err := r.initDataOffset(); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	if r.rem == 0 {
		r.mu.Unlock()
		_ = r.Close()
		return 0, io.EOF
	}
	if len(p) == 0 {
		r.mu.Unlock()
		return 0, nil
	}
	if uint64(len(p)) > r.rem {
		p = p[:r.rem]
	}

	n, err := r.res.src.ReadAt(p, r.pos)
	r.pos += int64(n)
	r.rem -= uint64(n)
	done := r.rem == 0
	r.mu.Unlock()

	if done {
		_ = r.Close()
		return n, nil
	}
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		if n > 0 {
			// Hand out what we got; the next call reports the failure.
			return n, nil
		}
		return 0, errors.Wrap(err, "read entry data")
	}
	return n, nil
}

// Skip advances past up to n payload bytes without reading them and
// returns the number skipped.
func (r *entryReader) Skip(n int64) (int64, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, nil
	}
	if err := r.initDataOffset(); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	if uint64(n) > r.rem {
		n = int64(r.rem)
	}
	r.pos += n
	r.rem -= uint64(n)
	done := r.rem == 0
	r.mu.Unlock()

	if done {
		_ = r.Close()
	}
	return n, nil
}

// Available returns the payload bytes remaining, clamped to an int32
// range.
func (r *entryReader) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rem > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(r.rem)
}

// Size returns the entry's uncompressed size.
func (r *entryReader) Size() int64 {
	return int64(r.size)
}

// Close is idempotent. Exhausted readers close themselves, dropping out
// of the archive's tracking set; later reads return io.EOF.
func (r *entryReader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.rem = 0
	r.mu.Unlock()

	r.res.untrack(r)
	return nil
}
