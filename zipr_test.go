package zipr_test

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/skyline93/zipr"
)

type testEntry struct {
	name   string
	data   string
	method uint16
}

func buildArchive(t *testing.T, comment string, entries []testEntry) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	if comment != "" {
		require.NoError(t, zw.SetComment(comment))
	}
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		require.NoError(t, err)
		_, err = w.Write([]byte(e.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func readEntry(t *testing.T, a *zipr.Archive, name string) string {
	t.Helper()

	e, err := a.Entry(name)
	require.NoError(t, err)
	rc, err := a.Open(e)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	return string(data)
}

func TestOpenAndRead(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{
		{"a.txt", "stored payload", zip.Store},
		{"dir/", "", zip.Store},
		{"dir/b.txt", strings.Repeat("deflate me. ", 500), zip.Deflate},
	})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.Equal(t, path, a.Name())
	require.Equal(t, 3, a.Count())

	assert.Equal(t, "stored payload", readEntry(t, a, "a.txt"))
	assert.Equal(t, strings.Repeat("deflate me. ", 500), readEntry(t, a, "dir/b.txt"))
}

func TestEntryFields(t *testing.T) {
	t.Parallel()

	const data = "some bytes for the checksum"
	path := buildArchive(t, "", []testEntry{
		{"a.txt", data, zip.Store},
		{"dir/", "", zip.Store},
	})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	e, err := a.Entry("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", e.Name)
	assert.Equal(t, zipr.Stored, e.Method)
	assert.Equal(t, uint64(len(data)), e.UncompressedSize)
	assert.Equal(t, uint64(len(data)), e.CompressedSize)
	assert.Equal(t, crc32.ChecksumIEEE([]byte(data)), e.CRC32)
	assert.False(t, e.IsDir())

	d, err := a.Entry("dir/")
	require.NoError(t, err)
	assert.True(t, d.IsDir())
}

func TestEntryNotFound(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{{"a.txt", "x", zip.Store}})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	_, err = a.Entry("missing.txt")
	require.ErrorIs(t, err, zipr.ErrNotFound)
}

func TestEntrySlashRetry(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{
		{"dir/", "", zip.Store},
		{"dir/a.txt", "x", zip.Store},
	})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	// A directory matches without its trailing slash, and the returned
	// entry carries the name as stored.
	e, err := a.Entry("dir")
	require.NoError(t, err)
	assert.Equal(t, "dir/", e.Name)
	assert.True(t, e.IsDir())
}

func TestEntriesOrder(t *testing.T) {
	t.Parallel()

	want := []string{"b.txt", "a.txt", "c/", "c/d.txt"}
	entries := make([]testEntry, 0, len(want))
	for _, name := range want {
		entries = append(entries, testEntry{name, "", zip.Store})
	}
	path := buildArchive(t, "", entries)

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	var names []string
	for e := range a.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, want, names)

	names = names[:0]
	for name := range a.Names() {
		names = append(names, name)
	}
	assert.Equal(t, want, names)
}

func TestEntriesEarlyStop(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{
		{"a.txt", "", zip.Store},
		{"b.txt", "", zip.Store},
		{"c.txt", "", zip.Store},
	})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	seen := 0
	for range a.Entries() {
		seen++
		if seen == 2 {
			break
		}
	}
	require.Equal(t, 2, seen)
}

func TestArchiveComment(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "release build", []testEntry{{"a.txt", "x", zip.Store}})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.Equal(t, "release build", a.Comment())
}

func TestMetaNames(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{
		{"META-INF/MANIFEST.MF", "Manifest-Version: 1.0\n", zip.Store},
		{"META-INF/", "", zip.Store},
		{"a.txt", "x", zip.Store},
	})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.Equal(t, []string{"META-INF/MANIFEST.MF"}, a.MetaNames())
}

func TestClosedArchive(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "with comment", []testEntry{{"a.txt", "x", zip.Store}})

	a, err := zipr.Open(path)
	require.NoError(t, err)

	e, err := a.Entry("a.txt")
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close()) // idempotent

	assert.Equal(t, 0, a.Count())
	assert.Equal(t, "", a.Comment())
	assert.Nil(t, a.MetaNames())
	assert.False(t, a.StartsWithLocalHeader())

	_, err = a.Entry("a.txt")
	assert.ErrorIs(t, err, zipr.ErrClosed)
	_, err = a.Open(e)
	assert.ErrorIs(t, err, zipr.ErrClosed)

	for range a.Entries() {
		t.Fatal("iteration over a closed archive must yield nothing")
	}
}

func TestCloseClosesReaders(t *testing.T) {
	t.Parallel()

	// Half-read streams of both kinds must read as exhausted once the
	// archive is closed.
	path := buildArchive(t, "", []testEntry{
		{"stored.txt", "stored payload", zip.Store},
		{"deflated.txt", strings.Repeat("deflated payload. ", 300), zip.Deflate},
	})

	a, err := zipr.Open(path)
	require.NoError(t, err)

	readers := make(map[string]io.ReadCloser)
	for _, name := range []string{"stored.txt", "deflated.txt"} {
		e, err := a.Entry(name)
		require.NoError(t, err)
		rc, err := a.Open(e)
		require.NoError(t, err)

		_, err = io.ReadFull(rc, make([]byte, 6))
		require.NoError(t, err)
		readers[name] = rc
	}

	require.NoError(t, a.Close())

	for name, rc := range readers {
		n, err := rc.Read(make([]byte, 16))
		assert.Equal(t, 0, n, name)
		assert.ErrorIs(t, err, io.EOF, name)
		assert.NoError(t, rc.Close(), name)
	}
}

func TestExhaustedReader(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{{"a.txt", "abc", zip.Store}})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	e, err := a.Entry("a.txt")
	require.NoError(t, err)
	rc, err := a.Open(e)
	require.NoError(t, err)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "abc", string(data))

	_, err = rc.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, rc.Close())
}

func TestOpenFileModes(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{{"a.txt", "x", zip.Store}})

	for _, mode := range []int{0, 0x2, zipr.OpenDelete, zipr.OpenRead | 0x8} {
		_, err := zipr.OpenFile(path, mode)
		assert.ErrorIs(t, err, zipr.ErrInvalidMode, "mode 0x%x", mode)
	}
}

func TestOpenDelete(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{{"a.txt", "still readable", zip.Store}})

	a, err := zipr.OpenFile(path, zipr.OpenRead|zipr.OpenDelete)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	require.Equal(t, "still readable", readEntry(t, a, "a.txt"))
}

func TestSharedHandles(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{{"a.txt", "shared", zip.Store}})

	a1, err := zipr.Open(path)
	require.NoError(t, err)
	a2, err := zipr.Open(path)
	require.NoError(t, err)

	require.Equal(t, "shared", readEntry(t, a1, "a.txt"))
	require.NoError(t, a1.Close())

	// The second handle keeps the shared source alive.
	require.Equal(t, "shared", readEntry(t, a2, "a.txt"))
	require.NoError(t, a2.Close())
}

func TestConcurrentReads(t *testing.T) {
	t.Parallel()

	stored := strings.Repeat("stored data block. ", 1000)
	deflated := strings.Repeat("deflated data block. ", 1000)
	path := buildArchive(t, "", []testEntry{
		{"stored.bin", stored, zip.Store},
		{"deflated.bin", deflated, zip.Deflate},
	})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	var g errgroup.Group
	for range 4 {
		for name, want := range map[string]string{"stored.bin": stored, "deflated.bin": deflated} {
			g.Go(func() error {
				e, err := a.Entry(name)
				if err != nil {
					return err
				}
				rc, err := a.Open(e)
				if err != nil {
					return err
				}
				data, err := io.ReadAll(rc)
				if err != nil {
					return err
				}
				if string(data) != want {
					return io.ErrUnexpectedEOF
				}
				return rc.Close()
			})
		}
	}
	require.NoError(t, g.Wait())
}

func TestPaddedArchive(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{{"a.txt", "hello", zip.Store}})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 100))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.True(t, a.StartsWithLocalHeader())
	require.Equal(t, "hello", readEntry(t, a, "a.txt"))
}

func TestPrependedStub(t *testing.T) {
	t.Parallel()

	plain := buildArchive(t, "", []testEntry{{"a.txt", "hello", zip.Store}})
	raw, err := os.ReadFile(plain)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sfx.zip")
	stub := []byte("#!/bin/sh\nexec unzip \"$0\"\n")
	require.NoError(t, os.WriteFile(path, append(stub, raw...), 0644))

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.False(t, a.StartsWithLocalHeader())
	require.Equal(t, "hello", readEntry(t, a, "a.txt"))
}

func TestNotAnArchive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("junk"), 64), 0644))

	_, err := zipr.Open(path)
	require.ErrorIs(t, err, zipr.ErrFormat)
}

func TestMissingFile(t *testing.T) {
	t.Parallel()

	_, err := zipr.Open(filepath.Join(t.TempDir(), "nope.zip"))
	require.Error(t, err)
}

func TestWithEncoding(t *testing.T) {
	t.Parallel()

	// ASCII names are not flagged UTF-8, so a configured codec applies.
	// An uppercasing codec makes the translation visible.
	path := buildArchive(t, "", []testEntry{{"a.txt", "decoded", zip.Store}})

	a, err := zipr.Open(path, zipr.WithEncoding(zipr.Encoding{
		Decode: func(b []byte) string { return strings.ToUpper(string(b)) },
		Encode: func(s string) []byte { return []byte(strings.ToLower(s)) },
	}))
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	e, err := a.Entry("A.TXT")
	require.NoError(t, err)
	require.Equal(t, "A.TXT", e.Name)

	rc, err := a.Open(e)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "decoded", string(data))
	require.NoError(t, rc.Close())
}

type availabler interface {
	Available() int
}

type skipper interface {
	Skip(int64) (int64, error)
}

func TestStoredSkipAndAvailable(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{{"a.txt", "0123456789", zip.Store}})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	e, err := a.Entry("a.txt")
	require.NoError(t, err)
	rc, err := a.Open(e)
	require.NoError(t, err)
	defer func() { require.NoError(t, rc.Close()) }()

	require.Equal(t, 10, rc.(availabler).Available())

	n, err := rc.(skipper).Skip(4)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.Equal(t, 6, rc.(availabler).Available())

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "456789", string(data))

	// Skipping past the end clamps.
	n, err = rc.(skipper).Skip(100)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestDeflatedAvailable(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("compressible content. ", 200)
	path := buildArchive(t, "", []testEntry{{"a.txt", payload, zip.Deflate}})

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	e, err := a.Entry("a.txt")
	require.NoError(t, err)
	rc, err := a.Open(e)
	require.NoError(t, err)
	defer func() { require.NoError(t, rc.Close()) }()

	require.Equal(t, len(payload), rc.(availabler).Available())

	buf := make([]byte, 100)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)
	require.Equal(t, len(payload)-100, rc.(availabler).Available())
}

func TestTruncatedDeflateStream(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("will be cut short. ", 500)
	path := buildArchive(t, "", []testEntry{{"a.txt", payload, zip.Deflate}})

	// Chop the tail of the compressed payload out of the file, keeping
	// the central directory intact at the original offsets.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	cut := bytes.Index(raw, []byte("PK\x01\x02"))
	require.Greater(t, cut, 100)
	patched := append([]byte(nil), raw[:cut-64]...)
	patched = append(patched, make([]byte, 64)...)
	patched = append(patched, raw[cut:]...)
	require.NoError(t, os.WriteFile(path, patched, 0644))

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	e, err := a.Entry("a.txt")
	require.NoError(t, err)
	rc, err := a.Open(e)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	_, err = io.ReadAll(rc)
	require.Error(t, err)
}

func TestEntryCountRecovery(t *testing.T) {
	t.Parallel()

	path := buildArchive(t, "", []testEntry{
		{"a.txt", "one", zip.Store},
		{"b.txt", "two", zip.Store},
		{"c.txt", "three", zip.Store},
	})

	// Understate the END record's 16-bit entry count.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	endpos := len(raw) - 22
	raw[endpos+10] = 1
	raw[endpos+11] = 0
	require.NoError(t, os.WriteFile(path, raw, 0644))

	a, err := zipr.Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	require.Equal(t, 3, a.Count())
	require.Equal(t, "three", readEntry(t, a, "c.txt"))
}
