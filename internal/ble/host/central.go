// Package host implements ble.Central and ble.Peripheral on top of a
// ble.Transport. It owns the peripheral registry, the connection state
// machines, and the matching of request completions to callers.
//
// Event and notification handlers run one at a time on a single dispatch
// goroutine, in the order the transport reported them. Completions of
// blocking operations are delivered directly to the waiting caller, so a
// handler may itself call blocking operations.
package host

import (
	"bytes"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Moret84/rumble/internal/ble"
	"github.com/Moret84/rumble/internal/ble/adv"
)

// Option configures a Central.
type Option func(*Central)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Central) { c.log = l }
}

// WithActiveScan sets the initial scan mode. Scans are active by default.
func WithActiveScan(enabled bool) Option {
	return func(c *Central) { c.active.Store(enabled) }
}

// WithFilterDuplicates sets the initial duplicate filter. It is on by
// default.
func WithFilterDuplicates(enabled bool) Option {
	return func(c *Central) { c.filterDuplicates.Store(enabled) }
}

// Central is the ble.Central of one transport. It also implements
// ble.TransportHandler and installs itself on the transport.
type Central struct {
	transport ble.Transport
	log       *slog.Logger

	// events runs event and notification handlers; completions runs the
	// callbacks of asynchronous operations.
	events      *dispatcher
	completions *dispatcher

	active           atomic.Bool
	filterDuplicates atomic.Bool
	closed           atomic.Bool

	mu          sync.RWMutex
	peripherals map[ble.Address]*Peripheral

	hmu      sync.Mutex
	handlers []ble.EventHandler

	scanMu   sync.Mutex
	scanning bool
}

var (
	_ ble.Central          = (*Central)(nil)
	_ ble.TransportHandler = (*Central)(nil)
)

// NewCentral returns a Central driving t.
func NewCentral(t ble.Transport, opts ...Option) *Central {
	c := &Central{
		transport:   t,
		log:         slog.Default(),
		peripherals: make(map[ble.Address]*Peripheral),
	}
	c.active.Store(true)
	c.filterDuplicates.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	c.events = newDispatcher("events", c.log)
	c.completions = newDispatcher("completions", c.log)
	t.SetHandler(c)
	return c
}

// OnEvent registers h for every event emitted from now on.
func (c *Central) OnEvent(h ble.EventHandler) {
	if h == nil {
		return
	}
	c.hmu.Lock()
	c.handlers = append(c.handlers, h)
	c.hmu.Unlock()
}

// emit queues ev for the handlers registered right now.
func (c *Central) emit(ev ble.CentralEvent) {
	c.hmu.Lock()
	hs := slices.Clone(c.handlers)
	c.hmu.Unlock()
	if len(hs) == 0 {
		return
	}
	c.events.post(func() {
		for _, h := range hs {
			c.events.call(func() { h(ev) })
		}
	})
}

// StartScan starts scanning with the current active setting. It is a no-op
// while a scan is running and fails with ble.ErrClosed after Close.
func (c *Central) StartScan() error {
	if c.closed.Load() {
		return ble.ErrClosed
	}
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	if c.scanning {
		return nil
	}
	params := ble.ScanParams{Active: c.active.Load()}
	if err := c.transport.StartScan(params); err != nil {
		return &ble.TransportError{Op: "start scan", Err: err}
	}
	c.scanning = true
	c.log.Debug("[BLE] scan started", "active", params.Active, "filter_duplicates", c.filterDuplicates.Load())
	return nil
}

// StopScan stops a running scan.
func (c *Central) StopScan() error {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	if !c.scanning {
		return nil
	}
	if err := c.transport.StopScan(); err != nil {
		return &ble.TransportError{Op: "stop scan", Err: err}
	}
	c.scanning = false
	c.log.Debug("[BLE] scan stopped")
	return nil
}

// Scanning reports whether a scan is in progress.
func (c *Central) Scanning() bool {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	return c.scanning
}

// SetActive selects active or passive scanning for the next StartScan.
func (c *Central) SetActive(enabled bool) {
	c.active.Store(enabled)
}

// SetFilterDuplicates selects whether repeated advertisements emit
// DeviceUpdated or DeviceDiscovered.
func (c *Central) SetFilterDuplicates(enabled bool) {
	c.filterDuplicates.Store(enabled)
}

// Peripherals returns the known peripherals ordered by address.
func (c *Central) Peripherals() []ble.Peripheral {
	c.mu.RLock()
	ps := make([]*Peripheral, 0, len(c.peripherals))
	for _, p := range c.peripherals {
		ps = append(ps, p)
	}
	c.mu.RUnlock()

	slices.SortFunc(ps, func(a, b *Peripheral) int {
		return bytes.Compare(a.addr[:], b.addr[:])
	})
	out := make([]ble.Peripheral, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

// Peripheral returns the peripheral with address addr, if it has been seen.
func (c *Central) Peripheral(addr ble.Address) (ble.Peripheral, bool) {
	p := c.lookup(addr)
	if p == nil {
		return nil, false
	}
	return p, true
}

func (c *Central) lookup(addr ble.Address) *Peripheral {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peripherals[addr]
}

// Close stops scanning and fails every outstanding operation with
// ble.ErrClosed. Handlers already queued still run. Links are left as they
// are; disconnect peripherals before closing to tear them down.
func (c *Central) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.StopScan()

	c.mu.RLock()
	for _, p := range c.peripherals {
		p.close()
	}
	c.mu.RUnlock()

	c.events.close()
	c.completions.close()
	return err
}

// HandleAdvertisement records r in the registry and emits DeviceDiscovered
// for a new device. For a known device it emits DeviceUpdated when
// duplicates are filtered and DeviceDiscovered otherwise.
func (c *Central) HandleAdvertisement(r ble.AdvertisingReport) {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.peripherals[r.Address]
	if !ok {
		c.peripherals[r.Address] = newPeripheral(c, ble.NewPeripheralProperties(r))
		c.log.Debug("[BLE] discovered", "address", r.Address, "name", nameOf(r))
		c.emit(ble.CentralEvent{Kind: ble.DeviceDiscovered, Address: r.Address})
		return
	}

	p.mu.Lock()
	p.props.Merge(r)
	p.mu.Unlock()
	kind := ble.DeviceDiscovered
	if c.filterDuplicates.Load() {
		kind = ble.DeviceUpdated
	}
	c.emit(ble.CentralEvent{Kind: kind, Address: r.Address})
}

// HandleRawAdvertisement decodes an advertising or scan response payload
// and records it like HandleAdvertisement. Malformed payloads are dropped.
func (c *Central) HandleRawAdvertisement(addr ble.Address, kind ble.AddressKind, scanResponse bool, data []byte) {
	r, err := adv.Report(addr, kind, scanResponse, data)
	if err != nil {
		c.log.Warn("[BLE] dropping malformed advertisement", "address", addr, "error", err)
		return
	}
	c.HandleAdvertisement(r)
}

// HandleDeviceLost emits DeviceLost for a known device. The device stays in
// the registry.
func (c *Central) HandleDeviceLost(addr ble.Address) {
	if c.lookup(addr) == nil {
		return
	}
	c.log.Debug("[BLE] lost", "address", addr)
	c.emit(ble.CentralEvent{Kind: ble.DeviceLost, Address: addr})
}

func (c *Central) HandleConnected(addr ble.Address, err error) {
	p := c.lookup(addr)
	if p == nil {
		c.log.Warn("[BLE] connection event for unknown device", "address", addr)
		return
	}
	p.linkUp(err)
}

func (c *Central) HandleDisconnected(addr ble.Address, reason error) {
	p := c.lookup(addr)
	if p == nil {
		return
	}
	p.linkDown(reason)
}

func (c *Central) HandleResponse(addr ble.Address, value []byte, err error) {
	p := c.lookup(addr)
	if p == nil {
		c.log.Warn("[BLE] response for unknown device", "address", addr)
		return
	}
	p.complete(value, err)
}

func (c *Central) HandleNotification(addr ble.Address, n ble.ValueNotification) {
	p := c.lookup(addr)
	if p == nil {
		return
	}
	p.notify(n)
}

func nameOf(r ble.AdvertisingReport) string {
	if r.LocalName == nil {
		return ""
	}
	return *r.LocalName
}
