package ble

import "fmt"

// EventKind is the kind of a CentralEvent.
type EventKind uint8

const (
	DeviceDiscovered EventKind = iota
	DeviceLost
	DeviceUpdated
	DeviceConnected
	DeviceDisconnected
)

func (k EventKind) String() string {
	switch k {
	case DeviceDiscovered:
		return "discovered"
	case DeviceLost:
		return "lost"
	case DeviceUpdated:
		return "updated"
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// CentralEvent is one occurrence in the discovery and connection lifecycle
// of a peripheral.
type CentralEvent struct {
	Kind    EventKind
	Address Address
}

func (e CentralEvent) String() string {
	return e.Kind.String() + " " + e.Address.String()
}

// ValueNotification is a value pushed by a connected peripheral through a
// notification or an indication.
type ValueNotification struct {
	// Handle is the value handle that changed.
	Handle uint16
	Value  []byte
}

// EventHandler receives central events. It runs on the shared dispatch
// goroutine and must not block.
type EventHandler func(CentralEvent)

// NotificationHandler receives value notifications. It runs on the shared
// dispatch goroutine and must not block.
type NotificationHandler func(ValueNotification)

// CommandCallback is told whether a write command was accepted.
type CommandCallback func(err error)

// RequestCallback receives the outcome of a read or write request.
type RequestCallback func(value []byte, err error)
