package host

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Moret84/rumble/internal/ble"
)

// sentRequest is one request handed to the mock transport.
type sentRequest struct {
	addr ble.Address
	req  ble.Request
}

// mockTransport records every call. Links come up and go down as soon as
// they are requested unless manualLink is set. Requests are answered
// synchronously by respond when it is set; otherwise the test answers them
// through the central's HandleResponse.
type mockTransport struct {
	mu          sync.Mutex
	h           ble.TransportHandler
	scans       []ble.ScanParams
	stops       int
	connects    int
	disconnects int
	sent        []sentRequest

	manualLink bool
	connectErr error
	sendErr    error
	respond    func(req ble.Request) ([]byte, error)
}

func (m *mockTransport) SetHandler(h ble.TransportHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.h = h
}

func (m *mockTransport) StartScan(params ble.ScanParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = append(m.scans, params)
	return nil
}

func (m *mockTransport) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func (m *mockTransport) Connect(addr ble.Address) error {
	m.mu.Lock()
	m.connects++
	h, manual, err := m.h, m.manualLink, m.connectErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if !manual {
		h.HandleConnected(addr, nil)
	}
	return nil
}

func (m *mockTransport) Disconnect(addr ble.Address) error {
	m.mu.Lock()
	m.disconnects++
	h, manual := m.h, m.manualLink
	m.mu.Unlock()
	if !manual {
		h.HandleDisconnected(addr, nil)
	}
	return nil
}

func (m *mockTransport) Send(addr ble.Address, req ble.Request) error {
	m.mu.Lock()
	if m.sendErr != nil {
		err := m.sendErr
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, sentRequest{addr: addr, req: req})
	h, respond := m.h, m.respond
	m.mu.Unlock()
	if respond != nil {
		value, err := respond(req)
		h.HandleResponse(addr, value, err)
	}
	return nil
}

func (m *mockTransport) requests() []sentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockTransport) counts() (connects, disconnects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects
}

func (m *mockTransport) setRespond(f func(req ble.Request) ([]byte, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = f
}

var testAddr = ble.MustParseAddress("11:22:33:44:55:66")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestCentral returns a central over a fresh mock transport that already
// knows testAddr.
func newTestCentral(t *testing.T, opts ...Option) (*Central, *mockTransport, *Peripheral) {
	t.Helper()
	m := &mockTransport{}
	c := NewCentral(m, append([]Option{WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(func() { c.Close() })
	c.HandleAdvertisement(ble.AdvertisingReport{Address: testAddr})
	return c, m, c.lookup(testAddr)
}

// connected is newTestCentral with the peripheral already connected.
func connected(t *testing.T) (*Central, *mockTransport, *Peripheral) {
	t.Helper()
	c, m, p := newTestCentral(t)
	if err := p.Connect(testContext(t)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c, m, p
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// recv reads one value from ch or fails the test after a second.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a value")
	}
	var zero T
	return zero
}
