package att

import (
	"encoding/binary"
	"fmt"

	"github.com/Moret84/rumble/internal/ble"
)

// Declaration is one characteristic declaration attribute: its own handle,
// the properties byte, the value handle and the characteristic UUID.
type Declaration struct {
	Handle      uint16
	Properties  ble.CharPropFlags
	ValueHandle uint16
	UUID        ble.UUID
}

// DecodeDeclarations decodes the value of a Read By Type response for the
// characteristic declaration type. The value starts with the record length:
// 7 for 16-bit UUIDs, 21 for 128-bit UUIDs.
func DecodeDeclarations(value []byte) ([]Declaration, error) {
	if len(value) < 1 {
		return nil, errShortPDU
	}
	length := int(value[0])
	if length != 7 && length != 21 {
		return nil, fmt.Errorf("att: invalid declaration record length %d", length)
	}
	b := value[1:]
	if len(b)%length != 0 {
		return nil, fmt.Errorf("att: %d bytes is not a multiple of record length %d", len(b), length)
	}
	decls := make([]Declaration, 0, len(b)/length)
	for ; len(b) > 0; b = b[length:] {
		d := Declaration{
			Handle:      binary.LittleEndian.Uint16(b[0:]),
			Properties:  ble.CharPropFlags(b[2]),
			ValueHandle: binary.LittleEndian.Uint16(b[3:]),
		}
		if length == 7 {
			d.UUID = ble.UUID16(binary.LittleEndian.Uint16(b[5:]))
		} else {
			var u [16]byte
			copy(u[:], b[5:21])
			d.UUID = ble.UUID128(u)
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// EncodeDeclarations builds a Read By Type response value from the leading
// declarations of decls that share one UUID size and fit in mtu. It returns
// the value and the number of declarations consumed.
func EncodeDeclarations(decls []Declaration, mtu int) ([]byte, int) {
	if len(decls) == 0 {
		return nil, 0
	}
	if mtu < DefaultMTU {
		mtu = DefaultMTU
	}
	length := 5 + decls[0].UUID.Size()
	// opcode and length byte
	room := mtu - 2
	value := []byte{byte(length)}
	n := 0
	for _, d := range decls {
		if 5+d.UUID.Size() != length || room < length {
			break
		}
		value = binary.LittleEndian.AppendUint16(value, d.Handle)
		value = append(value, byte(d.Properties))
		value = binary.LittleEndian.AppendUint16(value, d.ValueHandle)
		value = append(value, d.UUID.Bytes()...)
		room -= length
		n++
	}
	return value, n
}

// Characteristics turns declarations found in [start, end] into
// characteristics. Each characteristic ends right before the next
// declaration; the last one ends at end.
func Characteristics(decls []Declaration, end uint16) []ble.Characteristic {
	chars := make([]ble.Characteristic, len(decls))
	for i, d := range decls {
		chars[i] = ble.Characteristic{
			StartHandle: d.Handle,
			EndHandle:   end,
			ValueHandle: d.ValueHandle,
			UUID:        d.UUID,
			Properties:  d.Properties,
		}
		if i > 0 {
			chars[i-1].EndHandle = d.Handle - 1
		}
	}
	return chars
}
