package zipr

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/skyline93/zipr/internal/source"
)

// resources tracks everything an Archive must give back: the open entry
// readers, the cached flate readers and the reference on the shared
// source. It is a separate object so the unreachability cleanup can run
// without keeping the handle itself alive.
type resources struct {
	mu        sync.Mutex
	released  bool
	poolGone  bool
	streams   map[io.Closer]struct{}
	inflaters []io.ReadCloser // LIFO free list
	src       *source.Source
}

func newResources(src *source.Source) *resources {
	return &resources{
		streams: make(map[io.Closer]struct{}),
		src:     src,
	}
}

func (r *resources) track(c io.Closer) {
	r.mu.Lock()
	if r.streams != nil {
		r.streams[c] = struct{}{}
	}
	r.mu.Unlock()
}

func (r *resources) untrack(c io.Closer) {
	r.mu.Lock()
	delete(r.streams, c)
	r.mu.Unlock()
}

// getInflater pops a cached flate reader or allocates a fresh one.
func (r *resources) getInflater() io.ReadCloser {
	r.mu.Lock()
	if n := len(r.inflaters); n > 0 {
		fr := r.inflaters[n-1]
		r.inflaters = r.inflaters[:n-1]
		r.mu.Unlock()
		return fr
	}
	r.mu.Unlock()
	return flate.NewReader(bytes.NewReader(nil))
}

// releaseInflater returns a flate reader to the free list, or closes it
// when the cache is already drained.
func (r *resources) releaseInflater(fr io.ReadCloser) {
	r.mu.Lock()
	if !r.poolGone {
		r.inflaters = append(r.inflaters, fr)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	_ = fr.Close()
}

// release closes tracked readers, then drains the flate cache, then drops
// the source reference. Reader closes come first because they hand their
// flate readers back to the cache, and the source goes last because
// readers close through it. The first error wins; cleanup never stops
// early.
func (r *resources) release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return nil
	}
	r.released = true
	streams := make([]io.Closer, 0, len(r.streams))
	for c := range r.streams {
		streams = append(streams, c)
	}
	r.streams = nil
	r.mu.Unlock()

	var firstErr error
	for _, c := range streams {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	r.mu.Lock()
	r.poolGone = true
	inflaters := r.inflaters
	r.inflaters = nil
	r.mu.Unlock()
	for _, fr := range inflaters {
		_ = fr.Close()
	}

	if err := source.Release(r.src); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
