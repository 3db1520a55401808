package source

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/skyline93/zipr/internal/format"
)

// endChain terminates a hash chain in the packed entry table.
const endChain = -1

// initCEN reads the central directory into memory and indexes it.
func (s *Source) initCEN(end endRecord) error {
	if end.endpos == 0 {
		// Only an END header present.
		s.locpos = 0
		s.total = 0
		s.entries = nil
		s.cen = nil
		return nil
	}
	if end.cenlen > end.endpos {
		return errors.Wrap(ErrFormat, "invalid END header (bad central directory size)")
	}
	cenpos := end.endpos - end.cenlen

	// Position of the first local header, taking into account that a stub
	// may be prefixed to the zip file.
	s.locpos = cenpos - end.cenoff
	if s.locpos < 0 {
		return errors.Wrap(ErrFormat, "invalid END header (bad central directory offset)")
	}

	s.cen = make([]byte, end.cenlen+int64(format.ENDHDR))
	if err := s.ReadFullyAt(s.cen, cenpos); err != nil {
		return errors.Wrap(ErrFormat, "read CEN tables failed")
	}
	return s.buildIndex(end.total)
}

// buildIndex walks consecutive CEN records and fills the packed hash
// table. A new entry is pushed onto the front of its chain, so chains
// list most recently added entries first.
func (s *Source) buildIndex(total int) error {
	// The declared count is untrusted. Every CEN record occupies at least
	// CENHDR bytes, which bounds how many can fit in the directory;
	// anything beyond that would only inflate the allocations below. The
	// walk fixes up an understated count via the recount path.
	if max := len(s.cen) / format.CENHDR; total < 0 || total > max {
		total = max
	}
	s.total = total
	s.entries = make([]int32, 0, total*3)
	tablelen := total/2 | 1 // odd, fewer collisions
	s.table = make([]int32, tablelen)
	for i := range s.table {
		s.table[i] = endChain
	}
	s.metaNames = nil

	limit := len(s.cen) - format.ENDHDR
	i, pos := 0, 0
	for pos+format.CENHDR <= limit {
		if i >= total {
			// Only happens when the END record's 16-bit total is wrong,
			// which usually means the archive holds more than 65535
			// entries. Recount the headers and index again with the
			// true total.
			return s.buildIndex(countHeaders(s.cen, limit))
		}
		if format.Sig(s.cen, pos) != format.CENSIG {
			return errors.Wrap(ErrFormat, "invalid CEN header (bad signature)")
		}
		method := format.CenHow(s.cen, pos)
		nlen := format.CenNam(s.cen, pos)
		elen := format.CenExt(s.cen, pos)
		clen := format.CenCom(s.cen, pos)
		if format.CenFlg(s.cen, pos)&format.FlagEncrypted != 0 {
			return errors.Wrap(ErrFormat, "invalid CEN header (encrypted entry)")
		}
		if method != format.Stored && method != format.Deflated {
			return errors.Wrapf(ErrFormat, "invalid CEN header (bad compression method: %d)", method)
		}
		if pos+format.CENHDR+nlen > limit {
			return errors.Wrap(ErrFormat, "invalid CEN header (bad header size)")
		}

		name := s.cen[pos+format.CENHDR : pos+format.CENHDR+nlen]
		h := hashN(name)
		bucket := int(uint32(h)&0x7fffffff) % tablelen
		idx := int32(len(s.entries))
		s.entries = append(s.entries, h, s.table[bucket], int32(pos))
		s.table[bucket] = idx

		if isMetaName(name) {
			s.metaNames = append(s.metaNames, pos)
		}

		pos += format.CENHDR + nlen + elen + clen
		i++
	}
	s.total = i
	if pos+format.ENDHDR != len(s.cen) {
		return errors.Wrap(ErrFormat, "invalid CEN header (bad header size)")
	}
	return nil
}

// Lookup returns the CEN offset of the entry with the given raw name
// bytes, or -1 if absent. With addSlash set and the name not already
// ending in '/', a failed lookup is retried once with a trailing slash
// appended, since the format only nominally requires directory entries to
// carry one.
func (s *Source) Lookup(name []byte, addSlash bool) int {
	if s.total == 0 {
		return -1
	}
	h := hashN(name)
	idx := s.table[int(uint32(h)&0x7fffffff)%len(s.table)]
	for {
		for idx != endChain {
			if s.entries[idx] == h {
				pos := int(s.entries[idx+2])
				if len(name) == format.CenNam(s.cen, pos) &&
					bytes.Equal(name, s.cen[pos+format.CENHDR:pos+format.CENHDR+len(name)]) {
					return pos
				}
			}
			idx = s.entries[idx+1]
		}
		if !addSlash || len(name) == 0 || name[len(name)-1] == '/' {
			return -1
		}
		// Append a slash and try once more. Extending the hash
		// incrementally only works because hashN folds one byte at a
		// time in the same order.
		name = append(append(make([]byte, 0, len(name)+1), name...), '/')
		h = hashAppend(h, '/')
		idx = s.table[int(uint32(h)&0x7fffffff)%len(s.table)]
		addSlash = false
	}
}

// hashN is the polynomial rolling hash h = 31*h + b over the raw name
// bytes, seeded at 1, with wrapping 32-bit arithmetic and sign-extended
// bytes.
func hashN(b []byte) int32 {
	h := int32(1)
	for _, c := range b {
		h = 31*h + int32(int8(c))
	}
	return h
}

func hashAppend(h int32, c byte) int32 {
	return 31*h + int32(int8(c))
}

var metaPrefix = []byte("meta-inf/")

// isMetaName reports whether name is a non-directory entry under
// "META-INF/", ASCII case ignored.
func isMetaName(name []byte) bool {
	if len(name) <= len(metaPrefix) || name[len(name)-1] == '/' {
		return false
	}
	for i, want := range metaPrefix {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c |= 0x20
		}
		if c != want {
			return false
		}
	}
	return true
}

// countHeaders counts the CEN records actually present. It never fails,
// even on a corrupt directory.
func countHeaders(cen []byte, limit int) int {
	count := 0
	for pos := 0; pos+format.CENHDR <= limit; pos += format.CENHDR +
		format.CenNam(cen, pos) + format.CenExt(cen, pos) + format.CenCom(cen, pos) {
		count++
	}
	return count
}
