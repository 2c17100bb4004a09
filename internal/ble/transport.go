// Package ble defines the client side Bluetooth Low Energy model: device
// addresses, attribute UUIDs, characteristics, advertising snapshots, and the
// Central and Peripheral contracts applications program against. The host
// stack underneath is abstracted by Transport so that the contracts can be
// driven by a real radio or by a test double.
package ble

// ATT opcodes of the requests a Transport carries.
const (
	opReadByTypeReq = 0x08
	opReadReq       = 0x0a
	opWriteReq      = 0x12
	opWriteCmd      = 0x52
)

// Request is one ATT operation sent to a connected peripheral.
type Request interface {
	// Opcode returns the ATT request opcode.
	Opcode() uint8
}

// ReadRequest reads the value of one attribute.
type ReadRequest struct {
	Handle uint16
}

// ReadByTypeRequest reads the attributes of the given type within a handle
// range.
type ReadByTypeRequest struct {
	Start, End uint16
	Type       UUID
}

// WriteRequest writes a value and expects the peer to acknowledge it.
type WriteRequest struct {
	Handle uint16
	Value  []byte
}

// WriteCommand writes a value without any acknowledgement from the peer.
// Its completion only tells whether the host stack accepted it.
type WriteCommand struct {
	Handle uint16
	Value  []byte
}

func (ReadRequest) Opcode() uint8       { return opReadReq }
func (ReadByTypeRequest) Opcode() uint8 { return opReadByTypeReq }
func (WriteRequest) Opcode() uint8      { return opWriteReq }
func (WriteCommand) Opcode() uint8      { return opWriteCmd }

// ScanParams configures a scan.
type ScanParams struct {
	// Active makes the scanner request scan responses.
	Active bool
}

// Transport is the host Bluetooth stack as seen by this package. All
// operations that reach the radio are asynchronous: they return once the
// stack has accepted them, and their outcome arrives later through the
// TransportHandler installed with SetHandler.
type Transport interface {
	// SetHandler installs the sink for upstream events. It is called once,
	// before any other method.
	SetHandler(h TransportHandler)
	StartScan(params ScanParams) error
	StopScan() error
	// Connect starts establishing a link. Completion is reported through
	// HandleConnected.
	Connect(addr Address) error
	// Disconnect starts tearing down a link. Completion is reported through
	// HandleDisconnected.
	Disconnect(addr Address) error
	// Send issues a request on an established link. Every accepted request
	// yields exactly one HandleResponse call, and responses for one address
	// come back in the order the requests were accepted.
	Send(addr Address, req Request) error
}

// TransportHandler receives what the host stack pushes up. Calls for a given
// address must be made in the order the stack produced them.
type TransportHandler interface {
	HandleAdvertisement(r AdvertisingReport)
	HandleDeviceLost(addr Address)
	// HandleConnected reports the end of a connection attempt; err is nil if
	// the link is up.
	HandleConnected(addr Address, err error)
	// HandleDisconnected reports that a link is down, whether requested or
	// not. reason is nil for a local disconnect.
	HandleDisconnected(addr Address, reason error)
	// HandleResponse completes the oldest outstanding request for addr. An
	// ATT error response is passed as err.
	HandleResponse(addr Address, value []byte, err error)
	HandleNotification(addr Address, n ValueNotification)
}
