package main

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Moret84/rumble/internal/ble"
)

func describeEvent(ev ble.CentralEvent, props ble.PeripheralProperties) string {
	return fmt.Sprintf("%-12s %s", ev.Kind, describeProperties(props))
}

func describeProperties(p ble.PeripheralProperties) string {
	var b strings.Builder
	b.WriteString(p.Address.String())
	if p.AddressKind == ble.AddressRandom {
		b.WriteString(" (random)")
	}
	if name := p.Name(); name != "" {
		fmt.Fprintf(&b, " name=%q", name)
	}
	if p.TxPower != nil {
		fmt.Fprintf(&b, " tx=%ddBm", *p.TxPower)
	}
	if len(p.ManufacturerData) > 0 {
		fmt.Fprintf(&b, " mfr=%x", p.ManufacturerData)
	}
	if p.HasScanResponse {
		b.WriteString(" scan-response")
	}
	fmt.Fprintf(&b, " seen=%d", p.DiscoveryCount)
	return b.String()
}

func describeCharacteristic(c ble.Characteristic) string {
	return fmt.Sprintf("  %s [0x%04X-0x%04X] value 0x%04X %s", c.UUID, c.StartHandle, c.EndHandle, c.ValueHandle, c.Properties)
}

// describeValue prints v as hex, followed by its text when all of it is
// printable.
func describeValue(v []byte) string {
	if len(v) == 0 {
		return "(empty)"
	}
	s := fmt.Sprintf("%x", v)
	if strings.IndexFunc(string(v), func(r rune) bool { return !unicode.IsPrint(r) }) < 0 {
		s += fmt.Sprintf(" %q", v)
	}
	return s
}
