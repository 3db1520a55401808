package zipr

import (
	"bufio"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/flate"
)

// inflateReader decompresses a DEFLATED entry with a raw-deflate reader
// checked out from the archive's cache. A truncated compressed stream
// surfaces as io.ErrUnexpectedEOF.
type inflateReader struct {
	res *resources
	zr  *entryReader
	fr  io.ReadCloser

	mu       sync.Mutex
	closed   bool
	produced uint64
}

func newInflateReader(res *resources, zr *entryReader, bufSize int) *inflateReader {
	fr := res.getInflater()
	_ = fr.(flate.Resetter).Reset(bufio.NewReaderSize(zr, bufSize), nil)
	return &inflateReader{res: res, zr: zr, fr: fr}
}

func (r *inflateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		// Matches the stored-entry reader: a closed stream reads as
		// exhausted.
		return 0, io.EOF
	}
	n, err := r.fr.Read(p)
	r.produced += uint64(n)
	return n, err
}

// Available estimates the uncompressed bytes left as the declared size
// minus the bytes produced so far, clamped to an int32 range.
func (r *inflateReader) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	avail := r.zr.Size() - int64(r.produced)
	if avail < 0 {
		return 0
	}
	if avail > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(avail)
}

// Close is idempotent; the flate reader goes back to the cache exactly
// once even under concurrent close calls.
func (r *inflateReader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.zr.Close()
	r.res.releaseInflater(r.fr)
	r.res.untrack(r)
	return err
}
