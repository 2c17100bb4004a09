package ble

// This file implements the 16-bit and 128-bit attribute type identifiers used
// by GATT.

import (
	"bytes"
	"cmp"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// UUID identifies an attribute type. It is either a 16-bit short value or a
// full 128-bit value; the two variants are kept distinct and a 16-bit UUID
// never compares equal to its 128-bit expansion.
//
// The 128-bit variant is stored little endian: index 15 holds the most
// significant byte.
type UUID struct {
	wide  bool
	short uint16
	long  [16]byte
}

// baseUUID is the Bluetooth base UUID 00000000-0000-1000-8000-00805F9B34FB in
// little endian order. 16-bit values live in bytes 12 and 13.
var baseUUID = [16]byte{
	0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

var errInvalidUUID = errors.New("ble: failed to parse UUID")

// UUID16 returns a short 16-bit UUID such as 0x2803.
func UUID16(v uint16) UUID {
	return UUID{short: v}
}

// UUID128 returns a full 128-bit UUID from its little endian bytes.
func UUID128(b [16]byte) UUID {
	return UUID{wide: true, long: b}
}

// Is16Bit reports whether u is the short variant.
func (u UUID) Is16Bit() bool {
	return !u.wide
}

// Get16Bit returns the short value. It is only meaningful if Is16Bit is true.
func (u UUID) Get16Bit() uint16 {
	return u.short
}

// Bytes returns the little endian bytes of u: 2 bytes for the short variant
// and 16 bytes for the long one, the layout used in ATT PDUs.
func (u UUID) Bytes() []byte {
	if u.wide {
		b := u.long
		return b[:]
	}
	return []byte{byte(u.short), byte(u.short >> 8)}
}

// Size returns the number of bytes of the UUID: 2 or 16.
func (u UUID) Size() int {
	if u.wide {
		return 16
	}
	return 2
}

// String returns colon separated upper case hex, most significant byte
// first: "2A:37" or "00:00:2A:37:00:00:10:00:80:00:00:80:5F:9B:34:FB".
func (u UUID) String() string {
	const digits = "0123456789ABCDEF"
	b := u.Bytes()
	var sb strings.Builder
	sb.Grow(len(b)*3 - 1)
	for i := len(b) - 1; i >= 0; i-- {
		sb.WriteByte(digits[b[i]>>4])
		sb.WriteByte(digits[b[i]&0x0f])
		if i != 0 {
			sb.WriteByte(':')
		}
	}
	return sb.String()
}

// Canonical returns the standard dashed form of the UUID. Short values are
// expanded onto the Bluetooth base UUID.
func (u UUID) Canonical() string {
	le := u.expand()
	var be uuid.UUID
	for i := range le {
		be[i] = le[15-i]
	}
	return be.String()
}

func (u UUID) expand() [16]byte {
	if u.wide {
		return u.long
	}
	b := baseUUID
	b[12] = byte(u.short)
	b[13] = byte(u.short >> 8)
	return b
}

// Compare orders UUIDs by variant first (16-bit before 128-bit), then by the
// 16-bit value, or by the 128-bit bytes lexicographically from index 0.
// It returns -1, 0 or +1.
func (u UUID) Compare(v UUID) int {
	switch {
	case !u.wide && v.wide:
		return -1
	case u.wide && !v.wide:
		return 1
	case !u.wide:
		return cmp.Compare(u.short, v.short)
	}
	return bytes.Compare(u.long[:], v.long[:])
}

// ParseUUID parses a UUID in one of the following forms:
//
//	2A:37                                  colon form, 2 or 16 groups
//	2a37                                   bare 16-bit form
//	00002a37-0000-1000-8000-00805f9b34fb   dashed 128-bit form
//
// Dashed values always yield the 128-bit variant.
func ParseUUID(s string) (UUID, error) {
	switch {
	case len(s) == 4:
		return parseShort(s)
	case len(s) == 36 && strings.Count(s, "-") == 4:
		be, err := uuid.Parse(s)
		if err != nil {
			return UUID{}, errInvalidUUID
		}
		var le [16]byte
		for i := range be {
			le[i] = be[15-i]
		}
		return UUID128(le), nil
	case strings.Contains(s, ":"):
		groups := strings.Split(s, ":")
		if len(groups) != 2 && len(groups) != 16 {
			return UUID{}, errInvalidUUID
		}
		b := make([]byte, len(groups))
		for i, g := range groups {
			if len(g) != 2 {
				return UUID{}, errInvalidUUID
			}
			hi, ok1 := hexNibble(g[0])
			lo, ok2 := hexNibble(g[1])
			if !ok1 || !ok2 {
				return UUID{}, errInvalidUUID
			}
			b[len(groups)-1-i] = hi<<4 | lo
		}
		if len(b) == 2 {
			return UUID16(uint16(b[0]) | uint16(b[1])<<8), nil
		}
		var le [16]byte
		copy(le[:], b)
		return UUID128(le), nil
	}
	return UUID{}, errInvalidUUID
}

func parseShort(s string) (UUID, error) {
	var v uint16
	for i := 0; i < len(s); i++ {
		n, ok := hexNibble(s[i])
		if !ok {
			return UUID{}, errInvalidUUID
		}
		v = v<<4 | uint16(n)
	}
	return UUID16(v), nil
}

// MustParseUUID is like ParseUUID but panics on error. Intended for package
// level constants.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}
