// Package native implements ble.Transport on the host's Bluetooth stack
// through tinygo.org/x/bluetooth (BlueZ over D-Bus on Linux, CoreBluetooth
// on macOS).
//
// Those stacks keep the GATT database to themselves, so the transport
// presents each connected device as a synthetic attribute table built from
// service discovery. Requests are answered from that table and executed one
// at a time per link.
package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"

	"github.com/Moret84/rumble/internal/ble"
	"github.com/Moret84/rumble/internal/ble/att"
)

// queueSize bounds the requests waiting on one link.
const queueSize = 64

var (
	errUnknownLink = errors.New("native: no link to device")
	errQueueFull   = errors.New("native: request queue full")
	errLinkLost    = errors.New("native: link lost")
)

// adapter is the part of *bluetooth.Adapter the transport uses.
type adapter interface {
	Enable() error
	SetConnectHandler(c func(device bluetooth.Device, connected bool))
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
	Connect(address bluetooth.Address, params bluetooth.ConnectionParams) (bluetooth.Device, error)
}

var (
	_ adapter            = (*bluetooth.Adapter)(nil)
	_ gattCharacteristic = (*bluetooth.DeviceCharacteristic)(nil)
)

// Transport wraps a tinygo Bluetooth adapter.
type Transport struct {
	adapter adapter
	log     *slog.Logger

	mu    sync.Mutex
	h     ble.TransportHandler
	peers map[ble.Address]bluetooth.Address
	links map[ble.Address]*link
	// scan numbers the scans started. Only the latest one clears scanning.
	scanning bool
	scan     uint64
	scanDone chan struct{} // closed when the latest adapter scan returns
	bus      *dbus.Conn
}

var _ ble.Transport = (*Transport)(nil)

// New returns a transport on the default adapter. Call Enable before use.
func New(log *slog.Logger) *Transport {
	return newTransport(bluetooth.DefaultAdapter, log)
}

func newTransport(a adapter, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		adapter: a,
		log:     log,
		peers:   make(map[ble.Address]bluetooth.Address),
		links:   make(map[ble.Address]*link),
	}
}

// Enable powers on the adapter and starts watching link state.
func (t *Transport) Enable() error {
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("native: enable adapter: %w", err)
	}
	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr, _ := addressOf(device.Address.String())
		t.teardown(addr, errLinkLost)
	})

	if runtime.GOOS == "linux" {
		bus, err := dbus.ConnectSystemBus()
		if err != nil {
			t.log.Warn("[BLE] no system bus, lost devices will not be reported", "error", err)
			return nil
		}
		t.mu.Lock()
		t.bus = bus
		t.mu.Unlock()
		go t.watchBlueZ(bus)
	}
	return nil
}

// Close stops scanning and the BlueZ watcher. Links are left up.
func (t *Transport) Close() error {
	err := t.StopScan()
	t.mu.Lock()
	bus := t.bus
	t.bus = nil
	t.mu.Unlock()
	if bus != nil {
		bus.Close()
	}
	return err
}

func (t *Transport) SetHandler(h ble.TransportHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.h = h
}

func (t *Transport) handler() ble.TransportHandler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h
}

// StartScan scans until StopScan. The adapter decides between active and
// passive scanning on its own, so params.Active is only logged.
func (t *Transport) StartScan(params ble.ScanParams) error {
	t.mu.Lock()
	if t.scanning {
		t.mu.Unlock()
		return nil
	}
	t.scanning = true
	t.scan++
	scan := t.scan
	prev, done := t.scanDone, make(chan struct{})
	t.scanDone = done
	t.mu.Unlock()

	t.log.Debug("[BLE] adapter scan", "active", params.Active)
	go func() {
		defer close(done)
		// The adapter runs one scan at a time.
		if prev != nil {
			<-prev
		}
		t.mu.Lock()
		stopped := t.scan != scan || !t.scanning
		t.mu.Unlock()
		if stopped {
			return
		}
		err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			t.advertisement(result)
		})
		t.mu.Lock()
		if t.scan == scan {
			t.scanning = false
		}
		t.mu.Unlock()
		if err != nil {
			t.log.Error("[BLE] scan failed", "error", err)
		}
	}()
	return nil
}

// StopScan stops the running scan. The scan is over for StartScan as soon
// as StopScan returns, even if the adapter's Scan has not returned yet.
func (t *Transport) StopScan() error {
	t.mu.Lock()
	scanning, scan := t.scanning, t.scan
	t.mu.Unlock()
	if !scanning {
		return nil
	}
	if err := t.adapter.StopScan(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.scan == scan {
		t.scanning = false
	}
	t.mu.Unlock()
	return nil
}

func (t *Transport) advertisement(result bluetooth.ScanResult) {
	addr, ok := addressOf(result.Address.String())
	if !ok {
		t.log.Warn("[BLE] unrecognized device address", "address", result.Address.String())
		return
	}
	t.mu.Lock()
	t.peers[addr] = result.Address
	h := t.h
	t.mu.Unlock()

	r := ble.AdvertisingReport{Address: addr, AddressKind: ble.AddressPublic}
	if name := result.LocalName(); name != "" {
		r.LocalName = &name
	}
	if md := result.ManufacturerData(); len(md) > 0 {
		r.ManufacturerData = binary.LittleEndian.AppendUint16(nil, md[0].CompanyID)
		r.ManufacturerData = append(r.ManufacturerData, md[0].Data...)
	}
	if h != nil {
		h.HandleAdvertisement(r)
	}
}

// Connect connects in the background; tinygo's Connect blocks until the link
// is up or its own timeout expires.
func (t *Transport) Connect(addr ble.Address) error {
	t.mu.Lock()
	peer, ok := t.peers[addr]
	t.mu.Unlock()
	if !ok {
		peer.Set(addr.String())
	}

	go func() {
		device, err := t.adapter.Connect(peer, bluetooth.ConnectionParams{})
		if err == nil {
			var l *link
			l, err = t.open(addr, device)
			if err == nil {
				t.mu.Lock()
				t.links[addr] = l
				t.mu.Unlock()
				go l.run(t)
			} else {
				device.Disconnect()
			}
		}
		if h := t.handler(); h != nil {
			h.HandleConnected(addr, err)
		}
	}()
	return nil
}

func (t *Transport) Disconnect(addr ble.Address) error {
	t.mu.Lock()
	l, ok := t.links[addr]
	t.mu.Unlock()
	if !ok {
		return errUnknownLink
	}
	if err := l.device.Disconnect(); err != nil {
		return err
	}
	go t.teardown(addr, nil)
	return nil
}

// teardown forgets the link to addr and reports it down. It runs once per
// link, whichever of a local disconnect and the stack's notice comes first.
func (t *Transport) teardown(addr ble.Address, reason error) {
	t.mu.Lock()
	l, ok := t.links[addr]
	delete(t.links, addr)
	h := t.h
	t.mu.Unlock()
	if !ok {
		return
	}
	l.close()
	if h != nil {
		h.HandleDisconnected(addr, reason)
	}
}

func (t *Transport) Send(addr ble.Address, req ble.Request) error {
	t.mu.Lock()
	l, ok := t.links[addr]
	t.mu.Unlock()
	if !ok {
		return errUnknownLink
	}
	return l.enqueue(req)
}

// link is one connected device and its attribute table.
type link struct {
	addr   ble.Address
	device bluetooth.Device
	table  table

	mu     sync.Mutex
	closed bool
	queue  chan ble.Request
	done   chan struct{}
}

// open discovers every characteristic of device and lays out its table.
func (t *Transport) open(addr ble.Address, device bluetooth.Device) (*link, error) {
	services, err := device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("native: discover services: %w", err)
	}
	l := newLink(addr, device)
	for i := range services {
		chars, err := services[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("native: discover characteristics of %s: %w", services[i].UUID(), err)
		}
		for j := range chars {
			c := &chars[j]
			id, err := uuidOf(c.UUID())
			if err != nil {
				return nil, err
			}
			l.table.add(id, c)
			if mtu, err := c.GetMTU(); err == nil && int(mtu) > l.table.mtu {
				l.table.mtu = int(mtu)
			}
		}
	}
	t.log.Debug("[BLE] attribute table ready", "address", addr, "characteristics", len(l.table.entries), "mtu", l.table.mtu)
	return l, nil
}

func newLink(addr ble.Address, device bluetooth.Device) *link {
	return &link{
		addr:   addr,
		device: device,
		table:  table{mtu: att.DefaultMTU},
		queue:  make(chan ble.Request, queueSize),
		done:   make(chan struct{}),
	}
}

func (l *link) enqueue(req ble.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errUnknownLink
	}
	select {
	case l.queue <- req:
		return nil
	default:
		return errQueueFull
	}
}

func (l *link) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
}

// run executes queued requests in order until the link closes. Requests
// still queued at that point are dropped; the handler fails them on
// HandleDisconnected.
func (l *link) run(t *Transport) {
	for {
		select {
		case <-l.done:
			return
		case req := <-l.queue:
			value, err := l.table.serve(req, func(n ble.ValueNotification) {
				if h := t.handler(); h != nil {
					h.HandleNotification(l.addr, n)
				}
			})
			select {
			case <-l.done:
				return
			default:
			}
			if h := t.handler(); h != nil {
				h.HandleResponse(l.addr, value, err)
			}
		}
	}
}

// addressOf maps the adapter's address string to a ble.Address. BlueZ
// reports MAC addresses. CoreBluetooth reports a per-host UUID instead; its
// last six bytes stand in for the address.
func addressOf(s string) (ble.Address, bool) {
	if a, err := ble.ParseAddress(s); err == nil {
		return a, true
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ble.Address{}, false
	}
	var a ble.Address
	for i := range a {
		a[i] = u[15-i]
	}
	return a, true
}

// uuidOf keeps 16-bit UUIDs short so that they compare equal to the
// assigned numbers.
func uuidOf(u bluetooth.UUID) (ble.UUID, error) {
	s := u.String()
	if u.Is16Bit() {
		s = s[4:8]
	}
	return ble.ParseUUID(s)
}
