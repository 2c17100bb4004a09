package native

import (
	"bytes"
	"encoding/binary"

	"github.com/Moret84/rumble/internal/ble"
	"github.com/Moret84/rumble/internal/ble/att"
)

// gattCharacteristic is the part of a remote characteristic the table
// drives. *bluetooth.DeviceCharacteristic implements it on every host.
type gattCharacteristic interface {
	Read(data []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

// requestWriter is implemented by backends with an acknowledged write
// (CoreBluetooth, WinRT). tinygo has none on BlueZ, so there a write request
// goes through WriteWithoutResponse and its completion only means the stack
// accepted the write.
type requestWriter interface {
	Write(p []byte) (int, error)
}

// defaultProperties is reported for every characteristic because the host
// stack does not expose the declared properties. Operations the peer does
// not support fail with the stack's error.
const defaultProperties = ble.PropRead | ble.PropWrite | ble.PropWriteWithoutResponse | ble.PropNotify

// maxValueLen is the longest attribute value ATT allows.
const maxValueLen = 512

type entry struct {
	decl att.Declaration
	char gattCharacteristic
}

// table is a synthetic attribute table. The host stack hides real handles,
// so each characteristic gets three consecutive ones: its declaration, its
// value, and its Client Characteristic Configuration descriptor.
type table struct {
	mtu     int
	entries []entry
}

// add appends a characteristic and returns its value handle.
func (t *table) add(uuid ble.UUID, c gattCharacteristic) uint16 {
	h := uint16(att.MinHandle)
	if n := len(t.entries); n > 0 {
		h = t.entries[n-1].decl.ValueHandle + 2
	}
	t.entries = append(t.entries, entry{
		decl: att.Declaration{Handle: h, Properties: defaultProperties, ValueHandle: h + 1, UUID: uuid},
		char: c,
	})
	return h + 1
}

func (t *table) byValueHandle(h uint16) *entry {
	for i := range t.entries {
		if t.entries[i].decl.ValueHandle == h {
			return &t.entries[i]
		}
	}
	return nil
}

// serve answers req the way a GATT server would. notify receives the values
// of characteristics whose notifications req enables.
func (t *table) serve(req ble.Request, notify func(ble.ValueNotification)) ([]byte, error) {
	switch req := req.(type) {
	case ble.ReadByTypeRequest:
		return t.readByType(req)

	case ble.ReadRequest:
		e := t.byValueHandle(req.Handle)
		if e == nil {
			return nil, att.ErrInvalidHandle
		}
		buf := make([]byte, maxValueLen)
		n, err := e.char.Read(buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil

	case ble.WriteRequest:
		if e := t.byValueHandle(req.Handle - 1); e != nil {
			return nil, t.configure(e, req.Value, notify)
		}
		e := t.byValueHandle(req.Handle)
		if e == nil {
			return nil, att.ErrInvalidHandle
		}
		if w, ok := e.char.(requestWriter); ok {
			_, err := w.Write(req.Value)
			return nil, err
		}
		_, err := e.char.WriteWithoutResponse(req.Value)
		return nil, err

	case ble.WriteCommand:
		e := t.byValueHandle(req.Handle)
		if e == nil {
			return nil, att.ErrInvalidHandle
		}
		_, err := e.char.WriteWithoutResponse(req.Value)
		return nil, err
	}
	return nil, att.ErrReqNotSupp
}

func (t *table) readByType(req ble.ReadByTypeRequest) ([]byte, error) {
	if req.Type != ble.UUID16(att.CharacteristicUUID) {
		return nil, att.ErrReqNotSupp
	}
	if req.Start == 0 || req.Start > req.End {
		return nil, att.ErrInvalidHandle
	}
	var decls []att.Declaration
	for _, e := range t.entries {
		if e.decl.Handle >= req.Start && e.decl.Handle <= req.End {
			decls = append(decls, e.decl)
		}
	}
	if len(decls) == 0 {
		return nil, att.ErrAttrNotFound
	}
	value, _ := att.EncodeDeclarations(decls, t.mtu)
	return value, nil
}

// configure applies a Client Characteristic Configuration write.
func (t *table) configure(e *entry, value []byte, notify func(ble.ValueNotification)) error {
	if len(value) != 2 {
		return att.ErrInvalAttrValueLen
	}
	if binary.LittleEndian.Uint16(value) == att.CCCDisabled {
		return e.char.EnableNotifications(nil)
	}
	handle := e.decl.ValueHandle
	return e.char.EnableNotifications(func(buf []byte) {
		notify(ble.ValueNotification{Handle: handle, Value: bytes.Clone(buf)})
	})
}
