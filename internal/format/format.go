// Package format decodes the fixed-offset fields of ZIP header records.
//
// All accessors operate in place on raw header bytes; callers are expected
// to have checked that the slice is long enough for the record they are
// reading. Field layouts follow the PKWARE appnote.
package format

import "encoding/binary"

// Header signatures.
const (
	LOCSIG uint32 = 0x04034b50 // "PK\x03\x04" local file header
	CENSIG uint32 = 0x02014b50 // "PK\x01\x02" central directory file header
	ENDSIG uint32 = 0x06054b50 // "PK\x05\x06" end of central directory record

	END64SIG uint32 = 0x06064b50 // "PK\x06\x06" zip64 end of central directory record
	LOC64SIG uint32 = 0x07064b50 // "PK\x06\x07" zip64 end of central directory locator
)

// Fixed record sizes, excluding variable-length fields.
const (
	LOCHDR = 30
	CENHDR = 46
	ENDHDR = 22

	END64HDR = 56
	LOC64HDR = 20
)

// ZIP64 sentinels. A legacy field holding the sentinel means the real
// value lives in a ZIP64 record or extra-field block.
const (
	Zip64Magic      uint32 = 0xFFFFFFFF
	Zip64MagicCount        = 0xFFFF

	// Zip64ExtID tags the extra-field block carrying 8-byte overrides for
	// uncompressed size, compressed size and local header offset, in that
	// order.
	Zip64ExtID = 0x0001
)

// General purpose bit flags.
const (
	FlagEncrypted = 0x1
	FlagUTF8      = 0x800
)

// Compression methods supported by the reader.
const (
	Stored   = 0
	Deflated = 8
)

func Get16(b []byte, off int) int {
	return int(binary.LittleEndian.Uint16(b[off:]))
}

func Get32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func Get64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}

// Sig reads the 4-byte signature at the start of a record.
func Sig(b []byte, off int) uint32 { return Get32(b, off) }

// Local file header fields.

func LocNam(b []byte) int { return Get16(b, 26) }
func LocExt(b []byte) int { return Get16(b, 28) }

// Central directory file header fields, relative to the record start pos.

func CenFlg(b []byte, pos int) int    { return Get16(b, pos+8) }
func CenHow(b []byte, pos int) int    { return Get16(b, pos+10) }
func CenTim(b []byte, pos int) uint32 { return Get32(b, pos+12) }
func CenCrc(b []byte, pos int) uint32 { return Get32(b, pos+16) }
func CenSiz(b []byte, pos int) uint32 { return Get32(b, pos+20) }
func CenLen(b []byte, pos int) uint32 { return Get32(b, pos+24) }
func CenNam(b []byte, pos int) int    { return Get16(b, pos+28) }
func CenExt(b []byte, pos int) int    { return Get16(b, pos+30) }
func CenCom(b []byte, pos int) int    { return Get16(b, pos+32) }
func CenOff(b []byte, pos int) uint32 { return Get32(b, pos+42) }

// End of central directory record fields.

func EndTot(b []byte) int    { return Get16(b, 10) }
func EndSiz(b []byte) uint32 { return Get32(b, 12) }
func EndOff(b []byte) uint32 { return Get32(b, 16) }
func EndCom(b []byte) int    { return Get16(b, 20) }

// Zip64 end of central directory record fields.

func End64Tot(b []byte) uint64 { return Get64(b, 32) }
func End64Siz(b []byte) uint64 { return Get64(b, 40) }
func End64Off(b []byte) uint64 { return Get64(b, 48) }

// Zip64 end of central directory locator fields.

func Loc64Off(b []byte) uint64 { return Get64(b, 8) }
