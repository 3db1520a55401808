package zipr

import (
	"github.com/pkg/errors"

	"github.com/skyline93/zipr/internal/source"
)

var (
	// ErrFormat is returned when the archive is malformed: bad signature,
	// encrypted entry, unsupported compression method, inconsistent
	// sizes or offsets, truncated central directory.
	ErrFormat = source.ErrFormat

	// ErrClosed is returned by operations on a closed archive.
	ErrClosed = errors.New("zip: archive closed")

	// ErrNotFound is returned when the archive has no entry with the
	// requested name.
	ErrNotFound = errors.New("zip: entry not found")

	// ErrInvalidMode is returned by OpenFile for a mode that is not
	// OpenRead, optionally combined with OpenDelete.
	ErrInvalidMode = errors.New("zip: invalid open mode")
)
