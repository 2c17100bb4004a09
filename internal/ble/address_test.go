package ble

import (
	"math/rand"
	"testing"
)

func TestAddressString(t *testing.T) {
	a := Address{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	if got, want := a.String(), "AA:BB:CC:DD:EE:FF"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := (Address{}).String(), "00:00:00:00:00:00"; got != want {
		t.Errorf("zero String() = %q, want %q", got, want)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		var a Address
		rng.Read(a[:])
		got, err := ParseAddress(a.String())
		if err != nil {
			t.Fatalf("ParseAddress(%q) error = %v", a, err)
		}
		if got != a {
			t.Fatalf("ParseAddress(%q) = %v, want %v", a, got, a)
		}
	}
}

func TestParseAddressLowerCase(t *testing.T) {
	a, err := ParseAddress("aa:bb:cc:dd:ee:0f")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if a != (Address{0x0F, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}) {
		t.Errorf("ParseAddress() = %v", a)
	}
}

func TestParseAddressInvalid(t *testing.T) {
	for _, s := range []string{
		"",
		"AA:BB:CC:DD:EE",
		"AA:BB:CC:DD:EE:FF:00",
		"AA-BB-CC-DD-EE-FF",
		"AA:BB:CC:DD:EE:FG",
		"AABBCCDDEEFF",
	} {
		if _, err := ParseAddress(s); err != errInvalidAddress {
			t.Errorf("ParseAddress(%q) error = %v, want errInvalidAddress", s, err)
		}
	}
}

func TestAddressKindCodes(t *testing.T) {
	for code := 0; code < 256; code++ {
		kind, ok := AddressKindFromCode(uint8(code))
		switch code {
		case 0, 1:
			if !ok {
				t.Fatalf("AddressKindFromCode(%d) reported no value", code)
			}
			if kind.Code() != uint8(code) {
				t.Errorf("AddressKindFromCode(%d).Code() = %d", code, kind.Code())
			}
		default:
			if ok {
				t.Errorf("AddressKindFromCode(%d) = %v, want no value", code, kind)
			}
		}
	}
	var zero AddressKind
	if zero != AddressPublic {
		t.Errorf("zero AddressKind = %v, want public", zero)
	}
}
