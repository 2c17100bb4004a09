package host

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/Moret84/rumble/internal/ble"
	"github.com/Moret84/rumble/internal/ble/att"
)

// completion is the slot of one request sent to the peer. Requests for a
// peripheral complete in the order they were sent, so slots are kept in a
// FIFO and the transport's responses are matched to its head.
type completion struct {
	op string
	// cb is set for asynchronous operations; ch receives the result
	// otherwise.
	cb ble.RequestCallback
	ch chan result
}

type result struct {
	value []byte
	err   error
}

// Peripheral is the ble.Peripheral of one device known to a Central.
type Peripheral struct {
	central *Central
	addr    ble.Address

	// sendMu keeps the FIFO order of pending equal to the order in which
	// requests reach the transport.
	sendMu sync.Mutex

	mu       sync.Mutex
	props    ble.PeripheralProperties
	chars    map[uint16]ble.Characteristic
	state    ble.ConnState
	changed  chan struct{} // closed and replaced on every state change
	linkErr  error         // why the last attempt failed or the link dropped
	pending  []*completion
	handlers []ble.NotificationHandler
}

var _ ble.Peripheral = (*Peripheral)(nil)

func newPeripheral(c *Central, props ble.PeripheralProperties) *Peripheral {
	return &Peripheral{
		central: c,
		addr:    props.Address,
		props:   props,
		chars:   make(map[uint16]ble.Characteristic),
		changed: make(chan struct{}),
	}
}

// Address returns the device address.
func (p *Peripheral) Address() ble.Address {
	return p.addr
}

// Properties returns a copy of the latest advertising snapshot.
func (p *Peripheral) Properties() ble.PeripheralProperties {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props.Clone()
}

// Characteristics returns the cached characteristics in handle order.
func (p *Peripheral) Characteristics() []ble.Characteristic {
	p.mu.Lock()
	cs := make([]ble.Characteristic, 0, len(p.chars))
	for _, c := range p.chars {
		cs = append(cs, c)
	}
	p.mu.Unlock()
	ble.SortCharacteristics(cs)
	return cs
}

// State returns the connection state.
func (p *Peripheral) State() ble.ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsConnected reports whether the link is up.
func (p *Peripheral) IsConnected() bool {
	return p.State() == ble.Connected
}

// setState must be called with mu held.
func (p *Peripheral) setState(s ble.ConnState) {
	if p.state == s {
		return
	}
	p.central.log.Debug("[BLE] state change", "address", p.addr, "from", p.state, "to", s)
	p.state = s
	close(p.changed)
	p.changed = make(chan struct{})
}

// Connect starts a connection attempt, or joins the one in progress, and
// waits for its outcome. A Disconnect in progress is waited out first.
func (p *Peripheral) Connect(ctx context.Context) error {
	joined := false
	for {
		p.mu.Lock()
		switch p.state {
		case ble.Connected:
			p.mu.Unlock()
			return nil

		case ble.Disconnected:
			if joined {
				err := p.linkErr
				p.mu.Unlock()
				if err == nil {
					err = ble.ErrDisconnected
				}
				return err
			}
			if p.central.closed.Load() {
				p.mu.Unlock()
				return ble.ErrClosed
			}
			p.linkErr = nil
			p.setState(ble.Connecting)
			p.mu.Unlock()

			p.central.log.Info("[BLE] connecting", "address", p.addr)
			if err := p.central.transport.Connect(p.addr); err != nil {
				terr := &ble.TransportError{Op: "connect", Address: p.addr, Err: err}
				p.mu.Lock()
				if p.state == ble.Connecting {
					p.linkErr = terr
					p.setState(ble.Disconnected)
				}
				p.mu.Unlock()
				return terr
			}
			joined = true
			continue

		case ble.Connecting:
			joined = true
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Disconnect tears the link down and waits until it is down. A connection
// attempt in progress is waited out first.
func (p *Peripheral) Disconnect(ctx context.Context) error {
	requested := false
	for {
		p.mu.Lock()
		switch p.state {
		case ble.Disconnected:
			p.mu.Unlock()
			return nil

		case ble.Connected:
			if requested {
				p.mu.Unlock()
				return nil
			}
			p.setState(ble.Disconnecting)
			p.mu.Unlock()

			p.central.log.Info("[BLE] disconnecting", "address", p.addr)
			if err := p.central.transport.Disconnect(p.addr); err != nil {
				p.mu.Lock()
				if p.state == ble.Disconnecting {
					p.setState(ble.Connected)
				}
				p.mu.Unlock()
				return &ble.TransportError{Op: "disconnect", Address: p.addr, Err: err}
			}
			requested = true
			continue
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// linkUp records the outcome of a connection attempt.
func (p *Peripheral) linkUp(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != ble.Connecting {
		p.central.log.Warn("[BLE] unexpected connection event", "address", p.addr, "state", p.state, "error", err)
		return
	}
	if err != nil {
		p.linkErr = &ble.TransportError{Op: "connect", Address: p.addr, Err: err}
		p.setState(ble.Disconnected)
		p.central.log.Warn("[BLE] connection failed", "address", p.addr, "error", err)
		return
	}
	p.setState(ble.Connected)
	p.central.log.Info("[BLE] connected", "address", p.addr)
	p.central.emit(ble.CentralEvent{Kind: ble.DeviceConnected, Address: p.addr})
}

// linkDown records that the link is gone and fails every pending request.
func (p *Peripheral) linkDown(reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.state
	if prev == ble.Disconnected {
		return
	}
	if reason != nil {
		p.linkErr = &ble.TransportError{Op: "link", Address: p.addr, Err: reason}
	} else {
		p.linkErr = ble.ErrDisconnected
	}
	p.setState(ble.Disconnected)
	p.failPending(ble.ErrDisconnected)

	if prev == ble.Connecting {
		p.central.log.Warn("[BLE] connection failed", "address", p.addr, "error", reason)
		return
	}
	p.central.log.Info("[BLE] disconnected", "address", p.addr, "reason", reason)
	p.central.emit(ble.CentralEvent{Kind: ble.DeviceDisconnected, Address: p.addr})
}

// close fails what is pending once the central is closed.
func (p *Peripheral) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failPending(ble.ErrClosed)
}

// failPending must be called with mu held.
func (p *Peripheral) failPending(err error) {
	for _, c := range p.pending {
		p.deliver(c, result{err: err})
	}
	clear(p.pending)
	p.pending = p.pending[:0]
}

// complete matches a response from the transport to the oldest pending
// request.
func (p *Peripheral) complete(value []byte, err error) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		p.central.log.Warn("[BLE] response without a pending request", "address", p.addr)
		return
	}
	c := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	p.mu.Unlock()

	if err != nil {
		err = &ble.TransportError{Op: c.op, Address: p.addr, Err: err}
	}
	p.deliver(c, result{value: value, err: err})
}

func (p *Peripheral) deliver(c *completion, r result) {
	if c.cb != nil {
		p.callback(c.cb, r)
		return
	}
	c.ch <- r
}

// callback runs cb on the completion dispatcher, or on its own goroutine
// once the dispatcher is closed.
func (p *Peripheral) callback(cb ble.RequestCallback, r result) {
	if !p.central.completions.post(func() { cb(r.value, r.err) }) {
		go cb(r.value, r.err)
	}
}

// start checks that the link is up and that c supports the operation, then
// sends req. need is the property the operation requires; 0 means none.
func (p *Peripheral) start(op string, c ble.Characteristic, need ble.CharPropFlags, req ble.Request, cb ble.RequestCallback) (*completion, error) {
	if !p.IsConnected() {
		return nil, ble.ErrNotConnected
	}
	if need != 0 && !c.Properties.Has(need) {
		return nil, &ble.UnsupportedError{Op: op, Characteristic: c, Required: need}
	}
	return p.send(op, req, cb)
}

func (p *Peripheral) send(op string, req ble.Request, cb ble.RequestCallback) (*completion, error) {
	if p.central.closed.Load() {
		return nil, ble.ErrClosed
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	c := &completion{op: op, cb: cb}
	if cb == nil {
		c.ch = make(chan result, 1)
	}
	p.mu.Lock()
	if p.state != ble.Connected {
		p.mu.Unlock()
		return nil, ble.ErrNotConnected
	}
	p.pending = append(p.pending, c)
	p.mu.Unlock()

	if err := p.central.transport.Send(p.addr, req); err != nil {
		p.mu.Lock()
		if i := slices.Index(p.pending, c); i >= 0 {
			p.pending = slices.Delete(p.pending, i, i+1)
		}
		p.mu.Unlock()
		return nil, &ble.TransportError{Op: op, Address: p.addr, Err: err}
	}
	return c, nil
}

// wait blocks until c completes. If ctx ends first the slot stays queued so
// that later responses still line up, and its result is dropped.
func (p *Peripheral) wait(ctx context.Context, c *completion, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	select {
	case r := <-c.ch:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fail reports an error that happened before anything was sent.
func (p *Peripheral) fail(err error, cb ble.RequestCallback) {
	if err == nil || cb == nil {
		return
	}
	p.callback(cb, result{err: err})
}

// Command sends a write without response to c and waits until the
// transport has taken it.
func (p *Peripheral) Command(ctx context.Context, c ble.Characteristic, data []byte) error {
	cmd, err := p.command(c, data, nil)
	_, err = p.wait(ctx, cmd, err)
	return err
}

// CommandAsync is Command with the outcome delivered to cb.
func (p *Peripheral) CommandAsync(c ble.Characteristic, data []byte, cb ble.CommandCallback) {
	var rcb ble.RequestCallback
	if cb != nil {
		rcb = func(_ []byte, err error) { cb(err) }
	}
	_, err := p.command(c, data, rcb)
	p.fail(err, rcb)
}

func (p *Peripheral) command(c ble.Characteristic, data []byte, cb ble.RequestCallback) (*completion, error) {
	req := ble.WriteCommand{Handle: c.ValueHandle, Value: bytes.Clone(data)}
	return p.start("command", c, ble.PropWriteWithoutResponse, req, cb)
}

// Request writes data to c and returns the peer's response.
func (p *Peripheral) Request(ctx context.Context, c ble.Characteristic, data []byte) ([]byte, error) {
	req, err := p.request(c, data, nil)
	return p.wait(ctx, req, err)
}

// RequestAsync is Request with the outcome delivered to cb.
func (p *Peripheral) RequestAsync(c ble.Characteristic, data []byte, cb ble.RequestCallback) {
	_, err := p.request(c, data, cb)
	p.fail(err, cb)
}

func (p *Peripheral) request(c ble.Characteristic, data []byte, cb ble.RequestCallback) (*completion, error) {
	req := ble.WriteRequest{Handle: c.ValueHandle, Value: bytes.Clone(data)}
	return p.start("request", c, ble.PropWrite, req, cb)
}

// Read returns the value of c.
func (p *Peripheral) Read(ctx context.Context, c ble.Characteristic) ([]byte, error) {
	req, err := p.start("read", c, ble.PropRead, ble.ReadRequest{Handle: c.ValueHandle}, nil)
	return p.wait(ctx, req, err)
}

// ReadAsync is Read with the value delivered to cb.
func (p *Peripheral) ReadAsync(c ble.Characteristic, cb ble.RequestCallback) {
	_, err := p.start("read", c, ble.PropRead, ble.ReadRequest{Handle: c.ValueHandle}, cb)
	p.fail(err, cb)
}

// ReadByType reads the attributes of type typ within the handle range of c.
// It is not gated by any property flag.
func (p *Peripheral) ReadByType(ctx context.Context, c ble.Characteristic, typ ble.UUID) ([]byte, error) {
	req, err := p.start("read by type", c, 0, readByType(c, typ), nil)
	return p.wait(ctx, req, err)
}

// ReadByTypeAsync is ReadByType with the response delivered to cb.
func (p *Peripheral) ReadByTypeAsync(c ble.Characteristic, typ ble.UUID, cb ble.RequestCallback) {
	_, err := p.start("read by type", c, 0, readByType(c, typ), cb)
	p.fail(err, cb)
}

func readByType(c ble.Characteristic, typ ble.UUID) ble.ReadByTypeRequest {
	return ble.ReadByTypeRequest{Start: c.StartHandle, End: c.EndHandle, Type: typ}
}

// Subscribe writes the Client Characteristic Configuration descriptor,
// which sits right after the value handle.
func (p *Peripheral) Subscribe(ctx context.Context, c ble.Characteristic) error {
	return p.configure(ctx, "subscribe", c, true)
}

// Unsubscribe clears the Client Characteristic Configuration descriptor.
func (p *Peripheral) Unsubscribe(ctx context.Context, c ble.Characteristic) error {
	return p.configure(ctx, "unsubscribe", c, false)
}

func (p *Peripheral) configure(ctx context.Context, op string, c ble.Characteristic, enable bool) error {
	if !p.IsConnected() {
		return ble.ErrNotConnected
	}
	var v uint16
	switch {
	case c.Properties.Has(ble.PropNotify):
		v = att.CCCNotify
	case c.Properties.Has(ble.PropIndicate):
		v = att.CCCIndicate
	default:
		return &ble.UnsupportedError{Op: op, Characteristic: c, Required: ble.PropNotify | ble.PropIndicate}
	}
	if !enable {
		v = att.CCCDisabled
	}
	w, err := p.send(op, ble.WriteRequest{Handle: c.ValueHandle + 1, Value: att.EncodeCCC(v)}, nil)
	_, err = p.wait(ctx, w, err)
	return err
}

// OnNotification registers h for every value notification received from
// now on.
func (p *Peripheral) OnNotification(h ble.NotificationHandler) {
	if h == nil {
		return
	}
	p.mu.Lock()
	p.handlers = append(p.handlers, h)
	p.mu.Unlock()
}

func (p *Peripheral) notify(n ble.ValueNotification) {
	p.mu.Lock()
	hs := slices.Clone(p.handlers)
	p.mu.Unlock()
	if len(hs) == 0 {
		return
	}
	p.central.events.post(func() {
		for _, h := range hs {
			p.central.events.call(func() { h(n) })
		}
	})
}

// DiscoverCharacteristics discovers every characteristic of the device.
func (p *Peripheral) DiscoverCharacteristics(ctx context.Context) ([]ble.Characteristic, error) {
	return p.DiscoverCharacteristicsInRange(ctx, att.MinHandle, att.MaxHandle)
}

// DiscoverCharacteristicsInRange pages through the characteristic
// declarations in [start, end] with Read By Type requests until the peer
// answers "attribute not found" or the range is exhausted.
func (p *Peripheral) DiscoverCharacteristicsInRange(ctx context.Context, start, end uint16) ([]ble.Characteristic, error) {
	if !p.IsConnected() {
		return nil, ble.ErrNotConnected
	}
	if start == 0 || start > end {
		return nil, ble.ErrInvalidRange
	}

	var decls []att.Declaration
	for next := start; next <= end; {
		req := ble.ReadByTypeRequest{Start: next, End: end, Type: ble.UUID16(att.CharacteristicUUID)}
		pending, err := p.send("discover characteristics", req, nil)
		value, err := p.wait(ctx, pending, err)
		if errors.Is(err, att.ErrAttrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		page, err := att.DecodeDeclarations(value)
		if err != nil {
			return nil, &ble.TransportError{Op: "discover characteristics", Address: p.addr, Err: err}
		}
		if len(page) == 0 {
			break
		}
		for _, d := range page {
			if d.Handle >= next && d.Handle <= end {
				decls = append(decls, d)
			}
		}
		last := page[len(page)-1].ValueHandle
		if last < next || last == att.MaxHandle {
			break
		}
		next = last + 1
	}

	chars := att.Characteristics(decls, end)
	p.mu.Lock()
	for _, c := range chars {
		p.chars[c.StartHandle] = c
	}
	p.mu.Unlock()
	ble.SortCharacteristics(chars)

	p.central.log.Debug("[BLE] discovered characteristics", "address", p.addr, "count", len(chars))
	return chars, nil
}
