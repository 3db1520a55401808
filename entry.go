package zipr

import (
	"strings"
	"time"

	"github.com/skyline93/zipr/internal/format"
)

// Compression methods an entry may use.
const (
	Stored   = format.Stored
	Deflated = format.Deflated
)

// Entry is an immutable snapshot of one archive member as recorded in the
// central directory.
type Entry struct {
	Name             string
	Comment          string
	Flags            int
	Method           int // Stored or Deflated
	ModTime          time.Time
	CRC32            uint32
	UncompressedSize uint64
	CompressedSize   uint64
	Extra            []byte
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// dosTime decodes an MS-DOS date/time pair (time in the low 16 bits, date
// in the high 16) in the local time zone, as the format prescribes.
func dosTime(x uint32) time.Time {
	sec := int(x&0x1f) * 2
	min := int(x>>5) & 0x3f
	hour := int(x>>11) & 0x1f
	day := int(x>>16) & 0x1f
	mon := int(x>>21) & 0xf
	year := 1980 + int(x>>25)&0x7f
	return time.Date(year, time.Month(mon), day, hour, min, sec, 0, time.Local)
}

// zip64Resolve returns the uncompressed size, compressed size and local
// header offset of the entry at pos, resolving ZIP64 overrides from the
// extra field. Each field is overridden only when the legacy one holds
// the sentinel, and the 8-byte slots are consumed in size, compressed
// size, offset order.
func zip64Resolve(cen []byte, pos int) (size, csize, off uint64) {
	size = uint64(format.CenLen(cen, pos))
	csize = uint64(format.CenSiz(cen, pos))
	off = uint64(format.CenOff(cen, pos))

	const magic = uint64(format.Zip64Magic)
	if size != magic && csize != magic && off != magic {
		return size, csize, off
	}

	xoff := pos + format.CENHDR + format.CenNam(cen, pos)
	end := xoff + format.CenExt(cen, pos)
	for xoff+4 < end {
		tag := format.Get16(cen, xoff)
		sz := format.Get16(cen, xoff+2)
		xoff += 4
		if xoff+sz > end { // invalid data
			break
		}
		if tag != format.Zip64ExtID {
			xoff += sz
			continue
		}
		if size == magic {
			if sz < 8 || xoff+8 > end {
				break
			}
			size = format.Get64(cen, xoff)
			sz -= 8
			xoff += 8
		}
		if csize == magic {
			if sz < 8 || xoff+8 > end {
				break
			}
			csize = format.Get64(cen, xoff)
			sz -= 8
			xoff += 8
		}
		if off == magic {
			if sz < 8 || xoff+8 > end {
				break
			}
			off = format.Get64(cen, xoff)
		}
		break
	}
	return size, csize, off
}
