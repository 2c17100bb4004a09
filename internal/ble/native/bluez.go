package native

import (
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/Moret84/rumble/internal/ble"
)

const (
	bluezDevice1Interface    = "org.bluez.Device1"
	dbusSignalInterfacesGone = "org.freedesktop.DBus.ObjectManager.InterfacesRemoved"
)

var matchInterfacesRemoved = []dbus.MatchOption{
	dbus.WithMatchInterface("org.freedesktop.DBus.ObjectManager"),
	dbus.WithMatchMember("InterfacesRemoved"),
}

// watchBlueZ reports devices that BlueZ drops from its cache as lost. tinygo
// has no such notice of its own. It returns when the connection closes.
func (t *Transport) watchBlueZ(conn *dbus.Conn) {
	if err := conn.AddMatchSignal(matchInterfacesRemoved...); err != nil {
		t.log.Warn("[BLE] cannot watch BlueZ devices", "error", err)
		return
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	for sig := range signals {
		addr, ok := lostDevice(sig)
		if !ok {
			continue
		}
		t.log.Debug("[BLE] BlueZ removed device", "address", addr)
		if h := t.handler(); h != nil {
			h.HandleDeviceLost(addr)
		}
	}
}

// lostDevice extracts the address of a device whose org.bluez.Device1
// interface was removed.
func lostDevice(sig *dbus.Signal) (ble.Address, bool) {
	if sig.Name != dbusSignalInterfacesGone || len(sig.Body) < 2 {
		return ble.Address{}, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return ble.Address{}, false
	}
	ifaces, ok := sig.Body[1].([]string)
	if !ok || !slices.Contains(ifaces, bluezDevice1Interface) {
		return ble.Address{}, false
	}
	return deviceAddress(path)
}

// deviceAddress parses a BlueZ device object path such as
// /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func deviceAddress(path dbus.ObjectPath) (ble.Address, bool) {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return ble.Address{}, false
	}
	a, err := ble.ParseAddress(strings.ReplaceAll(s[i+len("/dev_"):], "_", ":"))
	if err != nil {
		return ble.Address{}, false
	}
	return a, true
}
