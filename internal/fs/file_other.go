//go:build !unix

package fs

func fixpath(name string) string {
	return name
}

// FileID is not available on this platform; callers fall back to keying
// files by path.
func FileID(name string) (dev, ino uint64, ok bool) {
	return 0, 0, false
}
