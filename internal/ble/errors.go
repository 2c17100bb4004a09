package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by GATT operations attempted while the
	// peripheral is not connected. No I/O is performed.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrDisconnected is returned by operations that were pending when the
	// link went down.
	ErrDisconnected = errors.New("ble: disconnected")
	// ErrUnsupported is matched by every *UnsupportedError.
	ErrUnsupported = errors.New("ble: operation not supported by characteristic")
	// ErrClosed is returned once the central has been closed.
	ErrClosed = errors.New("ble: central closed")
	// ErrInvalidRange is returned for a discovery range that is empty or
	// starts at the reserved handle 0.
	ErrInvalidRange = errors.New("ble: invalid handle range")
)

// UnsupportedError reports an operation attempted on a characteristic that
// lacks the required property flag.
type UnsupportedError struct {
	Op             string
	Characteristic Characteristic
	Required       CharPropFlags
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("ble: %s: characteristic %s (0x%04X) has %s, needs %s",
		e.Op, e.Characteristic.UUID, e.Characteristic.ValueHandle, e.Characteristic.Properties, e.Required)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// TransportError carries a failure reported by the host stack. The
// underlying error is kept intact and reachable through errors.Is/As.
type TransportError struct {
	Op      string
	Address Address
	Err     error
}

func (e *TransportError) Error() string {
	if e.Address.IsZero() {
		return fmt.Sprintf("ble: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ble: %s %s: %v", e.Op, e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
