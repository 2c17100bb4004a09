package ble

import "fmt"

// ConnState is the connection state of a peripheral. A peripheral moves
// Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected.
type ConnState uint8

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	}
	return fmt.Sprintf("ConnState(%d)", uint8(s))
}
