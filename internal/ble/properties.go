package ble

import (
	"bytes"
	"math"
)

// AdvertisingReport is one advertising (or scan response) packet as handed up
// by the host stack. Nil fields were not present in the packet.
type AdvertisingReport struct {
	Address          Address
	AddressKind      AddressKind
	LocalName        *string
	TxPower          *int8
	ManufacturerData []byte
	ScanResponse     bool
}

// PeripheralProperties is what is known about a peripheral from the
// advertising reports received for it.
type PeripheralProperties struct {
	Address     Address
	AddressKind AddressKind
	// LocalName is the human readable name advertised by the device.
	LocalName *string
	// TxPower is the advertised transmission power level in dBm.
	TxPower *int8
	// ManufacturerData is the raw manufacturer specific payload, company
	// identifier included.
	ManufacturerData []byte
	// DiscoveryCount is the number of reports received for the device.
	DiscoveryCount uint32
	// HasScanResponse is true once a scan response has been received.
	HasScanResponse bool
}

// NewPeripheralProperties builds the snapshot for a device seen for the
// first time.
func NewPeripheralProperties(r AdvertisingReport) PeripheralProperties {
	p := PeripheralProperties{
		Address:     r.Address,
		AddressKind: r.AddressKind,
	}
	p.Merge(r)
	return p
}

// Merge folds a newer report into p. Fields present in r overwrite the
// previous values and absent fields are kept. The discovery count grows by
// one on every merge.
func (p *PeripheralProperties) Merge(r AdvertisingReport) {
	p.AddressKind = r.AddressKind
	if r.LocalName != nil {
		name := *r.LocalName
		p.LocalName = &name
	}
	if r.TxPower != nil {
		tx := *r.TxPower
		p.TxPower = &tx
	}
	if r.ManufacturerData != nil {
		p.ManufacturerData = bytes.Clone(r.ManufacturerData)
	}
	if r.ScanResponse {
		p.HasScanResponse = true
	}
	if p.DiscoveryCount < math.MaxUint32 {
		p.DiscoveryCount++
	}
}

// Clone returns a deep copy of p that shares no memory with it.
func (p PeripheralProperties) Clone() PeripheralProperties {
	c := p
	if p.LocalName != nil {
		name := *p.LocalName
		c.LocalName = &name
	}
	if p.TxPower != nil {
		tx := *p.TxPower
		c.TxPower = &tx
	}
	if p.ManufacturerData != nil {
		c.ManufacturerData = bytes.Clone(p.ManufacturerData)
	}
	return c
}

// Name returns the local name, or "" if none was advertised.
func (p PeripheralProperties) Name() string {
	if p.LocalName == nil {
		return ""
	}
	return *p.LocalName
}
