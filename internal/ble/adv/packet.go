// Package adv parses the advertising data carried in advertising reports and
// scan responses. Refer to Supplement to the Bluetooth Core Specification,
// Part A.
package adv

import (
	"encoding/binary"
	"errors"

	"github.com/Moret84/rumble/internal/ble"
)

// AD types used by this package.
const (
	Flags            = 0x01
	ShortName        = 0x08
	CompleteName     = 0x09
	TxPower          = 0x0a
	ManufacturerData = 0xff
)

// ErrMalformed is returned when an AD structure overruns the packet.
var ErrMalformed = errors.New("adv: malformed advertising data")

// Packet is the raw advertising data of one report: a sequence of
// length-type-value structures.
type Packet []byte

// Validate checks that every AD structure fits in the packet. A zero length
// structure ends the significant part of the packet.
func (p Packet) Validate() error {
	b := p
	for len(b) > 0 {
		l := int(b[0])
		if l == 0 {
			return nil
		}
		if len(b) < 1+l {
			return ErrMalformed
		}
		b = b[1+l:]
	}
	return nil
}

// Field returns the data of the first structure of type typ, without its
// length and type bytes. It returns nil if there is no such structure.
func (p Packet) Field(typ byte) []byte {
	b := p
	for len(b) >= 2 {
		l := int(b[0])
		if l == 0 || len(b) < 1+l {
			return nil
		}
		if b[1] == typ {
			return b[2 : 1+l]
		}
		b = b[1+l:]
	}
	return nil
}

// LocalName returns the complete local name, or the shortened one if only
// that is present.
func (p Packet) LocalName() (string, bool) {
	if b := p.Field(CompleteName); b != nil {
		return string(b), true
	}
	if b := p.Field(ShortName); b != nil {
		return string(b), true
	}
	return "", false
}

// TxPower returns the advertised TX power level in dBm.
func (p Packet) TxPower() (int8, bool) {
	b := p.Field(TxPower)
	if len(b) < 1 {
		return 0, false
	}
	return int8(b[0]), true
}

// ManufacturerData returns the manufacturer specific data, company
// identifier included.
func (p Packet) ManufacturerData() []byte {
	return p.Field(ManufacturerData)
}

// AppendField appends an AD structure to the packet.
func (p Packet) AppendField(typ byte, b []byte) Packet {
	p = append(p, byte(len(b)+1), typ)
	return append(p, b...)
}

// AppendFlags appends a flags structure.
func (p Packet) AppendFlags(f byte) Packet {
	return p.AppendField(Flags, []byte{f})
}

// AppendCompleteName appends a complete local name structure.
func (p Packet) AppendCompleteName(n string) Packet {
	return p.AppendField(CompleteName, []byte(n))
}

// AppendShortName appends a shortened local name structure.
func (p Packet) AppendShortName(n string) Packet {
	return p.AppendField(ShortName, []byte(n))
}

// AppendTxPower appends a TX power level structure.
func (p Packet) AppendTxPower(dbm int8) Packet {
	return p.AppendField(TxPower, []byte{byte(dbm)})
}

// AppendManufacturerData appends manufacturer specific data for company id.
func (p Packet) AppendManufacturerData(id uint16, b []byte) Packet {
	d := binary.LittleEndian.AppendUint16(nil, id)
	return p.AppendField(ManufacturerData, append(d, b...))
}

// Report decodes the advertising data of one packet received from addr into
// an advertising report.
func Report(addr ble.Address, kind ble.AddressKind, scanResponse bool, data []byte) (ble.AdvertisingReport, error) {
	p := Packet(data)
	if err := p.Validate(); err != nil {
		return ble.AdvertisingReport{}, err
	}
	r := ble.AdvertisingReport{
		Address:      addr,
		AddressKind:  kind,
		ScanResponse: scanResponse,
	}
	if name, ok := p.LocalName(); ok {
		r.LocalName = &name
	}
	if tx, ok := p.TxPower(); ok {
		r.TxPower = &tx
	}
	if md := p.ManufacturerData(); md != nil {
		r.ManufacturerData = append([]byte{}, md...)
	}
	return r, nil
}
