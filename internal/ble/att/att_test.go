package att

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Moret84/rumble/internal/ble"
)

func TestDecodeDeclarations16(t *testing.T) {
	// Two declarations: 0x0002 READ -> 0x0003 (2A00), 0x0004 READ|NOTIFY -> 0x0005 (2A37)
	value := []byte{
		0x07,
		0x02, 0x00, 0x02, 0x03, 0x00, 0x00, 0x2a,
		0x04, 0x00, 0x12, 0x05, 0x00, 0x37, 0x2a,
	}
	got, err := DecodeDeclarations(value)
	if err != nil {
		t.Fatalf("DecodeDeclarations() error = %v", err)
	}
	want := []Declaration{
		{Handle: 0x0002, Properties: ble.PropRead, ValueHandle: 0x0003, UUID: ble.UUID16(0x2a00)},
		{Handle: 0x0004, Properties: ble.PropRead | ble.PropNotify, ValueHandle: 0x0005, UUID: ble.UUID16(0x2a37)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d declarations, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("declaration %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDecodeDeclarations128(t *testing.T) {
	u := ble.MustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	value := append([]byte{21, 0x10, 0x00, byte(ble.PropWrite), 0x11, 0x00}, u.Bytes()...)
	got, err := DecodeDeclarations(value)
	if err != nil {
		t.Fatalf("DecodeDeclarations() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d declarations, want 1", len(got))
	}
	if got[0].UUID != u {
		t.Errorf("UUID = %s, want %s", got[0].UUID, u)
	}
	if got[0].Handle != 0x0010 || got[0].ValueHandle != 0x0011 {
		t.Errorf("handles = 0x%04x/0x%04x, want 0x0010/0x0011", got[0].Handle, got[0].ValueHandle)
	}
}

func TestDecodeDeclarationsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
	}{
		{"empty", nil},
		{"bad length", []byte{0x06, 1, 2, 3, 4, 5, 6}},
		{"truncated record", []byte{0x07, 0x02, 0x00, 0x02, 0x03, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDeclarations(tt.value); err == nil {
				t.Error("DecodeDeclarations() should fail")
			}
		})
	}
}

func TestEncodeDeclarationsRoundTrip(t *testing.T) {
	decls := []Declaration{
		{Handle: 0x0002, Properties: ble.PropRead, ValueHandle: 0x0003, UUID: ble.UUID16(0x2a00)},
		{Handle: 0x0004, Properties: ble.PropNotify, ValueHandle: 0x0005, UUID: ble.UUID16(0x2a37)},
	}
	value, n := EncodeDeclarations(decls, DefaultMTU)
	if n != 2 {
		t.Fatalf("consumed %d declarations, want 2", n)
	}
	got, err := DecodeDeclarations(value)
	if err != nil {
		t.Fatalf("DecodeDeclarations() error = %v", err)
	}
	for i := range decls {
		if got[i] != decls[i] {
			t.Errorf("declaration %d = %+v, want %+v", i, got[i], decls[i])
		}
	}
}

func TestEncodeDeclarationsStopsAtSizeChangeAndMTU(t *testing.T) {
	long := ble.MustParseUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	decls := []Declaration{
		{Handle: 1, ValueHandle: 2, UUID: ble.UUID16(0x2a00)},
		{Handle: 3, ValueHandle: 4, UUID: long},
	}
	if _, n := EncodeDeclarations(decls, DefaultMTU); n != 1 {
		t.Errorf("consumed %d declarations, want 1 (UUID size changes)", n)
	}

	var many []Declaration
	for h := uint16(1); h < 20; h += 2 {
		many = append(many, Declaration{Handle: h, ValueHandle: h + 1, UUID: ble.UUID16(0x2a00)})
	}
	// (23 - 2) / 7 = 3 records fit in the default MTU.
	if _, n := EncodeDeclarations(many, DefaultMTU); n != 3 {
		t.Errorf("consumed %d declarations, want 3", n)
	}
}

func TestCharacteristicsEndHandles(t *testing.T) {
	decls := []Declaration{
		{Handle: 0x0002, ValueHandle: 0x0003, UUID: ble.UUID16(0x2a00)},
		{Handle: 0x0005, ValueHandle: 0x0006, UUID: ble.UUID16(0x2a01)},
	}
	chars := Characteristics(decls, 0x000a)
	if chars[0].EndHandle != 0x0004 {
		t.Errorf("first EndHandle = 0x%04x, want 0x0004", chars[0].EndHandle)
	}
	if chars[1].EndHandle != 0x000a {
		t.Errorf("last EndHandle = 0x%04x, want 0x000a", chars[1].EndHandle)
	}
}

func TestErrorResponse(t *testing.T) {
	resp, err := ParseErrorResponse([]byte{OpError, OpReadByTypeReq, 0x05, 0x00, byte(ErrAttrNotFound)})
	if err != nil {
		t.Fatalf("ParseErrorResponse() error = %v", err)
	}
	if resp.Handle != 0x0005 || resp.RequestOpcode != OpReadByTypeReq {
		t.Errorf("resp = %+v", resp)
	}
	if !errors.Is(resp, ErrAttrNotFound) {
		t.Error("errors.Is(resp, ErrAttrNotFound) = false, want true")
	}
	if _, err := ParseErrorResponse([]byte{OpReadResponse, 0, 0, 0, 0}); err == nil {
		t.Error("ParseErrorResponse() should reject a non-error opcode")
	}
	if _, err := ParseErrorResponse([]byte{OpError}); err == nil {
		t.Error("ParseErrorResponse() should reject a short PDU")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		code Error
		want string
	}{
		{ErrAttrNotFound, "att: attribute not found"},
		{Error(0x80), "att: application error 0x80"},
		{Error(0xfd), "att: profile or service error 0xfd"},
		{Error(0x40), "att: reserved error 0x40"},
	}
	for _, tt := range tests {
		if got := tt.code.Error(); got != tt.want {
			t.Errorf("Error(0x%02x).Error() = %q, want %q", byte(tt.code), got, tt.want)
		}
	}
}

func TestEncodeCCC(t *testing.T) {
	if got := EncodeCCC(CCCNotify); !bytes.Equal(got, []byte{0x01, 0x00}) {
		t.Errorf("EncodeCCC(notify) = %x, want 0100", got)
	}
	if got := EncodeCCC(CCCIndicate); !bytes.Equal(got, []byte{0x02, 0x00}) {
		t.Errorf("EncodeCCC(indicate) = %x, want 0200", got)
	}
}
