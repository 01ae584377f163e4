package protocol

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
)

// Every multi-byte UFP protocol field is big-endian. Readers report ok=false
// instead of panicking when the buffer is too short.

// Uint16 reads a big-endian uint16 at off.
func Uint16(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[off:]), true
}

// Uint32 reads a big-endian uint32 at off.
func Uint32(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[off:]), true
}

// Uint64 reads a big-endian uint64 at off.
func Uint64(b []byte, off int) (uint64, bool) {
	if off < 0 || off+8 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint64(b[off:]), true
}

// PutUint16 writes v big-endian at off.
func PutUint16(b []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(b[off:], v)
}

// PutUint32 writes v big-endian at off.
func PutUint32(b []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(b[off:], v)
}

// PutUint64 writes v big-endian at off.
func PutUint64(b []byte, off int, v uint64) {
	binary.BigEndian.PutUint64(b[off:], v)
}

// ASCII returns n bytes at off as a string, or false if out of range.
func ASCII(b []byte, off, n int) (string, bool) {
	if off < 0 || n < 0 || off+n > len(b) {
		return "", false
	}
	return string(b[off : off+n]), true
}

// TrimString strips the NUL and space padding devices put around strings.
func TrimString(s string) string {
	return strings.Trim(s, " \x00")
}

// EncodeUTF16LE encodes s as UTF-16LE without a terminator.
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// DecodeUTF16LE decodes a UTF-16LE field, stopping at the first NUL.
func DecodeUTF16LE(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// PutGUID writes id in the mixed-endian layout used by GPT entries and the
// flash app: the first three groups little-endian, the rest as-is.
func PutGUID(b []byte, off int, id uuid.UUID) {
	d := b[off : off+16]
	d[0], d[1], d[2], d[3] = id[3], id[2], id[1], id[0]
	d[4], d[5] = id[5], id[4]
	d[6], d[7] = id[7], id[6]
	copy(d[8:], id[8:])
}

// GUID reads a mixed-endian GUID at off.
func GUID(b []byte, off int) (uuid.UUID, bool) {
	var id uuid.UUID
	if off < 0 || off+16 > len(b) {
		return id, false
	}
	s := b[off : off+16]
	id[0], id[1], id[2], id[3] = s[3], s[2], s[1], s[0]
	id[4], id[5] = s[5], s[4]
	id[6], id[7] = s[7], s[6]
	copy(id[8:], s[8:])
	return id, true
}
