package ble

import (
	"errors"
	"fmt"
)

// Address is the 6-byte link-layer address of a Bluetooth device, stored in
// little endian order as it appears on the wire.
type Address [6]byte

var errInvalidAddress = errors.New("ble: failed to parse address")

// ParseAddress parses an address in AA:BB:CC:DD:EE:FF form. Upper and lower
// case hex digits are accepted. The first group is the most significant byte.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 17 {
		return a, errInvalidAddress
	}
	for i := 0; i < 6; i++ {
		off := i * 3
		if i > 0 && s[off-1] != ':' {
			return a, errInvalidAddress
		}
		hi, ok1 := hexNibble(s[off])
		lo, ok2 := hexNibble(s[off+1])
		if !ok1 || !ok2 {
			return a, errInvalidAddress
		}
		a[5-i] = hi<<4 | lo
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics if s cannot be parsed.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical form of the address, most significant byte
// first, such as 11:22:33:AA:BB:CC.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 0xA, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 0xA, true
	}
	return 0, false
}

// AddressKind tells whether an address is a fixed public address or a
// random one. The zero value is AddressPublic.
type AddressKind uint8

const (
	AddressPublic AddressKind = 0
	AddressRandom AddressKind = 1
)

// AddressKindFromCode converts the 1-byte wire code into an AddressKind.
// Codes other than 0 and 1 report false; callers fall back to the default.
func AddressKindFromCode(code uint8) (AddressKind, bool) {
	switch code {
	case 0:
		return AddressPublic, true
	case 1:
		return AddressRandom, true
	}
	return AddressPublic, false
}

// Code returns the wire code of the address kind.
func (k AddressKind) Code() uint8 {
	if k == AddressRandom {
		return 1
	}
	return 0
}

func (k AddressKind) String() string {
	if k == AddressRandom {
		return "random"
	}
	return "public"
}
