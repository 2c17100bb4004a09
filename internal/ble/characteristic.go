package ble

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// CharPropFlags is the set of operations a characteristic supports, as
// carried in the properties byte of its declaration.
type CharPropFlags uint8

const (
	PropBroadcast                 CharPropFlags = 0x01
	PropRead                      CharPropFlags = 0x02
	PropWriteWithoutResponse      CharPropFlags = 0x04
	PropWrite                     CharPropFlags = 0x08
	PropNotify                    CharPropFlags = 0x10
	PropIndicate                  CharPropFlags = 0x20
	PropAuthenticatedSignedWrites CharPropFlags = 0x40
	PropExtendedProperties        CharPropFlags = 0x80
)

// propNames maps each bit to its name, in bit order.
var propNames = []struct {
	flag CharPropFlags
	name string
}{
	{PropBroadcast, "BROADCAST"},
	{PropRead, "READ"},
	{PropWriteWithoutResponse, "WRITE_WITHOUT_RESPONSE"},
	{PropWrite, "WRITE"},
	{PropNotify, "NOTIFY"},
	{PropIndicate, "INDICATE"},
	{PropAuthenticatedSignedWrites, "AUTHENTICATED_SIGNED_WRITES"},
	{PropExtendedProperties, "EXTENDED_PROPERTIES"},
}

// Has reports whether every bit of want is set in f.
func (f CharPropFlags) Has(want CharPropFlags) bool {
	return f&want == want
}

// Union returns the flags set in either f or g.
func (f CharPropFlags) Union(g CharPropFlags) CharPropFlags {
	return f | g
}

// Intersect returns the flags set in both f and g.
func (f CharPropFlags) Intersect(g CharPropFlags) CharPropFlags {
	return f & g
}

// String lists the set flags separated by '|', or "NONE".
func (f CharPropFlags) String() string {
	var names []string
	for _, p := range propNames {
		if f.Has(p.flag) {
			names = append(names, p.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// Characteristic is one GATT characteristic of a remote device. Handles are
// server assigned and are not validated by this package.
type Characteristic struct {
	// StartHandle is the handle of the characteristic declaration.
	StartHandle uint16
	// EndHandle is the last handle belonging to this characteristic,
	// descriptors included.
	EndHandle   uint16
	ValueHandle uint16
	UUID        UUID
	// Properties tells which operations the characteristic supports. An
	// operation attempted without the matching flag fails before any I/O.
	Properties CharPropFlags
}

// Compare orders characteristics lexicographically over start handle, end
// handle, value handle, UUID and properties.
func (c Characteristic) Compare(d Characteristic) int {
	if r := cmp.Compare(c.StartHandle, d.StartHandle); r != 0 {
		return r
	}
	if r := cmp.Compare(c.EndHandle, d.EndHandle); r != 0 {
		return r
	}
	if r := cmp.Compare(c.ValueHandle, d.ValueHandle); r != 0 {
		return r
	}
	if r := c.UUID.Compare(d.UUID); r != 0 {
		return r
	}
	return cmp.Compare(c.Properties, d.Properties)
}

// Less reports whether c sorts before d.
func (c Characteristic) Less(d Characteristic) bool {
	return c.Compare(d) < 0
}

func (c Characteristic) String() string {
	return fmt.Sprintf("handle: 0x%04X, char properties: 0x%02X, char value handle: 0x%04X, end handle: 0x%04X, uuid: %s",
		c.StartHandle, uint8(c.Properties), c.ValueHandle, c.EndHandle, c.UUID)
}

// SortCharacteristics sorts cs in Compare order.
func SortCharacteristics(cs []Characteristic) {
	slices.SortFunc(cs, Characteristic.Compare)
}
