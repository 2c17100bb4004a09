package ble

import "context"

// Central is the client role of BLE: it scans for peripherals and keeps the
// registry of the ones it has seen.
type Central interface {
	// OnEvent registers a handler called once per CentralEvent. Handlers are
	// additive and only see events emitted after registration. They run on a
	// shared goroutine and must not block.
	OnEvent(h EventHandler)

	// StartScan starts scanning. Starting an active scan is a no-op.
	StartScan() error

	// StopScan stops scanning. Stopping an inactive scan is a no-op.
	StopScan() error

	// SetActive selects active (default) or passive scanning. It takes
	// effect on the next StartScan.
	SetActive(enabled bool)

	// SetFilterDuplicates controls whether repeated advertisements of a known
	// device are reported as DeviceUpdated (default) or as DeviceDiscovered.
	SetFilterDuplicates(enabled bool)

	// Peripherals returns every peripheral discovered so far, including
	// devices that are no longer advertising.
	Peripherals() []Peripheral

	// Peripheral returns the peripheral with the given address, if known.
	Peripheral(addr Address) (Peripheral, bool)
}

// Peripheral is a remote device discovered by a Central. It carries the
// device's current state and the GATT operations performed on it.
//
// Blocking methods wait for the matching completion from the host stack and
// honor ctx; the *Async variants return immediately and invoke their callback
// (which may be nil) once the operation completes.
type Peripheral interface {
	Address() Address

	// Properties returns a copy of the advertising snapshot.
	Properties() PeripheralProperties

	// Characteristics returns the discovered characteristics in Compare
	// order. It is empty until a discovery has run.
	Characteristics() []Characteristic

	IsConnected() bool

	// Connect establishes the link and returns once it is up or has failed.
	// A peripheral has at most one link.
	Connect(ctx context.Context) error

	// Disconnect tears the link down and returns once it is down.
	Disconnect(ctx context.Context) error

	// DiscoverCharacteristics discovers every characteristic of the device.
	DiscoverCharacteristics(ctx context.Context) ([]Characteristic, error)

	// DiscoverCharacteristicsInRange discovers the characteristics declared
	// within [start, end]. Results are merged into the cached set.
	DiscoverCharacteristicsInRange(ctx context.Context, start, end uint16) ([]Characteristic, error)

	// Command sends a write without response.
	Command(ctx context.Context, c Characteristic, data []byte) error
	CommandAsync(c Characteristic, data []byte, cb CommandCallback)

	// Request sends a write request and returns the peer's response.
	Request(ctx context.Context, c Characteristic, data []byte) ([]byte, error)
	RequestAsync(c Characteristic, data []byte, cb RequestCallback)

	// Read reads the characteristic value.
	Read(ctx context.Context, c Characteristic) ([]byte, error)
	ReadAsync(c Characteristic, cb RequestCallback)

	// ReadByType reads the attributes of type typ within the handle range of
	// c and returns the raw response.
	ReadByType(ctx context.Context, c Characteristic, typ UUID) ([]byte, error)
	ReadByTypeAsync(c Characteristic, typ UUID, cb RequestCallback)

	// Subscribe enables notifications, or indications if the characteristic
	// does not support notifications.
	Subscribe(ctx context.Context, c Characteristic) error

	// Unsubscribe disables what Subscribe enabled.
	Unsubscribe(ctx context.Context, c Characteristic) error

	// OnNotification registers a handler for value notifications. It runs on
	// the same shared goroutine as event handlers and must not block.
	OnNotification(h NotificationHandler)
}
