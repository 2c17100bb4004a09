package native

import (
	"bytes"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/Moret84/rumble/internal/ble"
	"github.com/Moret84/rumble/internal/ble/att"
)

// fakeCharacteristic records writes and keeps the notification callback.
type fakeCharacteristic struct {
	value    []byte
	writes   [][]byte
	commands [][]byte
	callback func([]byte)
	enabled  int
	disabled int
}

func (c *fakeCharacteristic) Read(data []byte) (int, error) {
	return copy(data, c.value), nil
}

func (c *fakeCharacteristic) Write(p []byte) (int, error) {
	c.writes = append(c.writes, bytes.Clone(p))
	return len(p), nil
}

func (c *fakeCharacteristic) WriteWithoutResponse(p []byte) (int, error) {
	c.commands = append(c.commands, bytes.Clone(p))
	return len(p), nil
}

func (c *fakeCharacteristic) EnableNotifications(cb func([]byte)) error {
	c.callback = cb
	if cb == nil {
		c.disabled++
	} else {
		c.enabled++
	}
	return nil
}

func newTable(n int) (*table, []*fakeCharacteristic) {
	t := &table{mtu: att.DefaultMTU}
	var chars []*fakeCharacteristic
	for i := range n {
		c := &fakeCharacteristic{value: []byte{byte(i)}}
		t.add(ble.UUID16(0x2a00+uint16(i)), c)
		chars = append(chars, c)
	}
	return t, chars
}

func noNotify(ble.ValueNotification) {}

func TestTableLayout(t *testing.T) {
	tbl, _ := newTable(3)
	for i, e := range tbl.entries {
		wantDecl := uint16(1 + 3*i)
		if e.decl.Handle != wantDecl || e.decl.ValueHandle != wantDecl+1 {
			t.Errorf("entry %d handles = %d/%d, want %d/%d", i, e.decl.Handle, e.decl.ValueHandle, wantDecl, wantDecl+1)
		}
	}
}

func TestTableReadByTypePages(t *testing.T) {
	tbl, _ := newTable(5)
	req := ble.ReadByTypeRequest{Start: 1, End: att.MaxHandle, Type: ble.UUID16(att.CharacteristicUUID)}

	value, err := tbl.serve(req, noNotify)
	if err != nil {
		t.Fatalf("serve() error = %v", err)
	}
	decls, err := att.DecodeDeclarations(value)
	if err != nil {
		t.Fatalf("DecodeDeclarations() error = %v", err)
	}
	// Three 7 byte records fit in a 23 byte MTU.
	if len(decls) != 3 || decls[2].Handle != 7 {
		t.Fatalf("first page = %+v", decls)
	}

	req.Start = decls[2].ValueHandle + 1
	value, _ = tbl.serve(req, noNotify)
	decls, _ = att.DecodeDeclarations(value)
	if len(decls) != 2 || decls[0].Handle != 10 {
		t.Fatalf("second page = %+v", decls)
	}

	req.Start = decls[1].ValueHandle + 1
	if _, err := tbl.serve(req, noNotify); !errors.Is(err, att.ErrAttrNotFound) {
		t.Errorf("past the end: error = %v, want ErrAttrNotFound", err)
	}

	req.Type = ble.UUID16(att.PrimaryServiceUUID)
	if _, err := tbl.serve(req, noNotify); !errors.Is(err, att.ErrReqNotSupp) {
		t.Errorf("other type: error = %v, want ErrReqNotSupp", err)
	}
}

func TestTableReadAndWrite(t *testing.T) {
	tbl, chars := newTable(2)

	v, err := tbl.serve(ble.ReadRequest{Handle: 5}, noNotify)
	if err != nil || !bytes.Equal(v, []byte{1}) {
		t.Errorf("read = %x, %v", v, err)
	}
	if _, err := tbl.serve(ble.WriteRequest{Handle: 2, Value: []byte("req")}, noNotify); err != nil {
		t.Fatalf("write request error = %v", err)
	}
	if _, err := tbl.serve(ble.WriteCommand{Handle: 2, Value: []byte("cmd")}, noNotify); err != nil {
		t.Fatalf("write command error = %v", err)
	}
	if len(chars[0].writes) != 1 || string(chars[0].writes[0]) != "req" {
		t.Errorf("writes = %q", chars[0].writes)
	}
	if len(chars[0].commands) != 1 || string(chars[0].commands[0]) != "cmd" {
		t.Errorf("commands = %q", chars[0].commands)
	}
	if _, err := tbl.serve(ble.ReadRequest{Handle: 1}, noNotify); !errors.Is(err, att.ErrInvalidHandle) {
		t.Errorf("read of a declaration handle: error = %v, want ErrInvalidHandle", err)
	}
}

// commandOnlyCharacteristic has no acknowledged write, like BlueZ.
type commandOnlyCharacteristic struct {
	c *fakeCharacteristic
}

func (o commandOnlyCharacteristic) Read(data []byte) (int, error) { return o.c.Read(data) }

func (o commandOnlyCharacteristic) WriteWithoutResponse(p []byte) (int, error) {
	return o.c.WriteWithoutResponse(p)
}

func (o commandOnlyCharacteristic) EnableNotifications(cb func([]byte)) error {
	return o.c.EnableNotifications(cb)
}

func TestTableWriteRequestWithoutAcknowledgedWrite(t *testing.T) {
	tbl := &table{mtu: att.DefaultMTU}
	fake := &fakeCharacteristic{}
	h := tbl.add(ble.UUID16(0x2a00), commandOnlyCharacteristic{fake})

	if _, err := tbl.serve(ble.WriteRequest{Handle: h, Value: []byte("req")}, noNotify); err != nil {
		t.Fatalf("write request error = %v", err)
	}
	if len(fake.writes) != 0 || len(fake.commands) != 1 || string(fake.commands[0]) != "req" {
		t.Errorf("writes = %q, commands = %q", fake.writes, fake.commands)
	}
}

func TestTableDescriptorWrites(t *testing.T) {
	tbl, chars := newTable(2)
	var got []ble.ValueNotification
	notify := func(n ble.ValueNotification) { got = append(got, n) }

	if _, err := tbl.serve(ble.WriteRequest{Handle: 6, Value: att.EncodeCCC(att.CCCNotify)}, notify); err != nil {
		t.Fatalf("subscribe error = %v", err)
	}
	if chars[1].enabled != 1 {
		t.Fatal("notifications not enabled on the second characteristic")
	}
	buf := []byte{0xaa}
	chars[1].callback(buf)
	buf[0] = 0
	if len(got) != 1 || got[0].Handle != 5 || !bytes.Equal(got[0].Value, []byte{0xaa}) {
		t.Errorf("notifications = %+v", got)
	}

	if _, err := tbl.serve(ble.WriteRequest{Handle: 6, Value: att.EncodeCCC(att.CCCDisabled)}, notify); err != nil {
		t.Fatalf("unsubscribe error = %v", err)
	}
	if chars[1].disabled != 1 {
		t.Error("notifications not disabled")
	}
	if _, err := tbl.serve(ble.WriteRequest{Handle: 6, Value: []byte{1}}, notify); !errors.Is(err, att.ErrInvalAttrValueLen) {
		t.Errorf("short descriptor value: error = %v, want ErrInvalAttrValueLen", err)
	}
}

func TestAddressOf(t *testing.T) {
	a, ok := addressOf("AA:BB:CC:DD:EE:FF")
	if !ok || a.String() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("MAC address = %s, %v", a, ok)
	}
	a, ok = addressOf("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	if !ok || a.String() != "E5:0E:24:DC:CA:9E" {
		t.Errorf("UUID address = %s, %v", a, ok)
	}
	if _, ok := addressOf("not an address"); ok {
		t.Error("addressOf accepted garbage")
	}
}

func TestDeviceAddress(t *testing.T) {
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", "AA:BB:CC:DD:EE:FF", true},
		{"/org/bluez/hci1/dev_01_02_03_04_05_06", "01:02:03:04:05:06", true},
		{"/org/bluez/hci0", "", false},
		{"/org/bluez/hci0/dev_AA_BB", "", false},
	}
	for _, tt := range tests {
		a, ok := deviceAddress(dbus.ObjectPath(tt.path))
		if ok != tt.ok || (ok && a.String() != tt.want) {
			t.Errorf("deviceAddress(%q) = %s, %v; want %s, %v", tt.path, a, ok, tt.want, tt.ok)
		}
	}
}

func TestLostDevice(t *testing.T) {
	path := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	sig := &dbus.Signal{
		Name: dbusSignalInterfacesGone,
		Body: []interface{}{path, []string{"org.freedesktop.DBus.Properties", bluezDevice1Interface}},
	}
	if a, ok := lostDevice(sig); !ok || a.String() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("lostDevice() = %s, %v", a, ok)
	}

	sig.Body = []interface{}{path, []string{"org.bluez.MediaControl1"}}
	if _, ok := lostDevice(sig); ok {
		t.Error("lostDevice() matched a removal that keeps the device")
	}
	sig.Name = "org.freedesktop.DBus.Properties.PropertiesChanged"
	if _, ok := lostDevice(sig); ok {
		t.Error("lostDevice() matched another signal")
	}
}
