package source

import (
	"github.com/pkg/errors"

	"github.com/skyline93/zipr/internal/format"
)

// endRecord carries the End-Of-Central-Directory fields after any ZIP64
// promotion. Fields are wider than the legacy record because the 32-bit
// ones may hold the overflow sentinel.
type endRecord struct {
	total  int
	cenlen int64
	cenoff int64
	endpos int64
}

const (
	readBlockSize = 128

	// The END record's trailing comment is at most 65535 bytes, so the
	// record cannot start further from the tail than this.
	endMaxLen = format.ENDHDR + 0xFFFF
)

// findEnd scans the file tail backwards for the END record. A signature
// match alone is not trusted: the comment bytes or padding appended after
// the archive may themselves contain it.
func (s *Source) findEnd() (endRecord, error) {
	var end endRecord
	if s.size <= 0 {
		return end, errors.Wrap(ErrFormat, "zip file is empty")
	}

	buf := make([]byte, readBlockSize)
	var minHDR int64
	if s.size-endMaxLen > 0 {
		minHDR = s.size - endMaxLen
	}
	minPos := minHDR - int64(len(buf)-format.ENDHDR)

	for pos := s.size - int64(len(buf)); pos >= minPos; pos -= int64(len(buf) - format.ENDHDR) {
		off := 0
		if pos < 0 {
			// Pretend there are NUL bytes before the start of the file.
			off = int(-pos)
			for i := range buf[:off] {
				buf[i] = 0
			}
		}
		if err := s.ReadFullyAt(buf[off:], pos+int64(off)); err != nil {
			return end, errors.Wrap(ErrFormat, "zip END header not found")
		}

		// Scan the block backwards for the END signature.
		for i := len(buf) - format.ENDHDR; i >= 0; i-- {
			if buf[i] != 'P' || buf[i+1] != 'K' || buf[i+2] != '\x05' || buf[i+3] != '\x06' {
				continue
			}
			endbuf := buf[i : i+format.ENDHDR]
			end.total = format.EndTot(endbuf)
			end.cenlen = int64(format.EndSiz(endbuf))
			end.cenoff = int64(format.EndOff(endbuf))
			end.endpos = pos + int64(i)
			comlen := format.EndCom(endbuf)

			if end.endpos+int64(format.ENDHDR+comlen) != s.size {
				// The signature matched but the declared comment length
				// does not reach the end of the file. A common cause is
				// extra bytes padded after the archive. Verify that the
				// CEN and LOC positions computed from this candidate
				// carry the right signatures before accepting it.
				var sbuf [4]byte
				cenpos := end.endpos - end.cenlen
				locpos := cenpos - end.cenoff
				if cenpos < 0 || locpos < 0 ||
					s.ReadFullyAt(sbuf[:], cenpos) != nil ||
					format.Sig(sbuf[:], 0) != format.CENSIG ||
					s.ReadFullyAt(sbuf[:], locpos) != nil ||
					format.Sig(sbuf[:], 0) != format.LOCSIG {
					continue
				}
			}

			if comlen > 0 {
				s.comment = make([]byte, comlen)
				if err := s.ReadFullyAt(s.comment, end.endpos+format.ENDHDR); err != nil {
					return end, errors.Wrap(ErrFormat, "zip comment read failed")
				}
			}

			// A zip64 END record is always permitted to be present.
			s.checkZip64End(&end)
			return end, nil
		}
	}
	return end, errors.Wrap(ErrFormat, "zip END header not found")
}

// checkZip64End probes for a ZIP64 locator immediately preceding the END
// record and promotes the count, size and offset fields to the 64-bit
// values when the records are self-consistent. Probe failures leave the
// legacy record untouched.
func (s *Source) checkZip64End(end *endRecord) {
	if end.endpos < format.LOC64HDR {
		return
	}
	loc64 := make([]byte, format.LOC64HDR)
	if s.ReadFullyAt(loc64, end.endpos-format.LOC64HDR) != nil ||
		format.Sig(loc64, 0) != format.LOC64SIG {
		return
	}

	end64pos := int64(format.Loc64Off(loc64))
	if end64pos < 0 {
		return
	}
	end64buf := make([]byte, format.END64HDR)
	if s.ReadFullyAt(end64buf, end64pos) != nil ||
		format.Sig(end64buf, 0) != format.END64SIG {
		return
	}

	cenlen64 := int64(format.End64Siz(end64buf))
	cenoff64 := int64(format.End64Off(end64buf))
	centot64 := int64(format.End64Tot(end64buf))
	// Each legacy field must either agree or hold the overflow sentinel.
	if cenlen64 != end.cenlen && end.cenlen != int64(format.Zip64Magic) ||
		cenoff64 != end.cenoff && end.cenoff != int64(format.Zip64Magic) ||
		centot64 != int64(end.total) && end.total != format.Zip64MagicCount {
		return
	}

	end.cenlen = cenlen64
	end.cenoff = cenoff64
	end.total = int(centot64)
	end.endpos = end64pos
}
