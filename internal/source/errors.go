package source

import "github.com/pkg/errors"

// ErrFormat is returned when the archive does not parse as a ZIP file.
// All format failures wrap it, so callers can match with errors.Is.
var ErrFormat = errors.New("zip: not a valid zip file")
