// Package att holds the Attribute Protocol constants and the codecs this
// client needs: characteristic declarations carried in Read By Type
// responses, error responses, and Client Characteristic Configuration values.
//
// Values exchanged with a ble.Transport never include the ATT opcode byte:
// a Read By Type response value starts with the record length byte, a Read
// response value is the raw attribute value.
package att

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Opcodes [Vol 3, Part F, 3.4.8].
const (
	OpError               = 0x01
	OpMTUReq              = 0x02
	OpMTUResponse         = 0x03
	OpFindInfoReq         = 0x04
	OpFindInfoResponse    = 0x05
	OpReadByTypeReq       = 0x08
	OpReadByTypeResponse  = 0x09
	OpReadReq             = 0x0a
	OpReadResponse        = 0x0b
	OpReadByGroupReq      = 0x10
	OpReadByGroupResponse = 0x11
	OpWriteReq            = 0x12
	OpWriteResponse       = 0x13
	OpHandleNotify        = 0x1b
	OpHandleInd           = 0x1d
	OpHandleCNF           = 0x1e
	OpWriteCmd            = 0x52
	OpSignedWriteCmd      = 0xd2
)

// GATT declaration and descriptor types.
const (
	PrimaryServiceUUID             = 0x2800
	SecondaryServiceUUID           = 0x2801
	IncludeUUID                    = 0x2802
	CharacteristicUUID             = 0x2803
	ClientCharacteristicConfigUUID = 0x2902
)

const (
	DefaultMTU = 23
	MinHandle  = 0x0001
	MaxHandle  = 0xffff
)

// Client Characteristic Configuration values.
const (
	CCCDisabled uint16 = 0x0000
	CCCNotify   uint16 = 0x0001
	CCCIndicate uint16 = 0x0002
)

// EncodeCCC returns the little endian descriptor value for v.
func EncodeCCC(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// Error is an ATT error code [Vol 3, Part F, 3.4.1.1].
type Error byte

const (
	ErrInvalidHandle     Error = 0x01
	ErrReadNotPerm       Error = 0x02
	ErrWriteNotPerm      Error = 0x03
	ErrInvalidPDU        Error = 0x04
	ErrAuthentication    Error = 0x05
	ErrReqNotSupp        Error = 0x06
	ErrInvalidOffset     Error = 0x07
	ErrAuthorization     Error = 0x08
	ErrPrepQueueFull     Error = 0x09
	ErrAttrNotFound      Error = 0x0a
	ErrAttrNotLong       Error = 0x0b
	ErrInsuffEncrKeySize Error = 0x0c
	ErrInvalAttrValueLen Error = 0x0d
	ErrUnlikely          Error = 0x0e
	ErrInsuffEnc         Error = 0x0f
	ErrUnsuppGrpType     Error = 0x10
	ErrInsuffResources   Error = 0x11
)

var errName = map[Error]string{
	ErrInvalidHandle:     "invalid handle",
	ErrReadNotPerm:       "read not permitted",
	ErrWriteNotPerm:      "write not permitted",
	ErrInvalidPDU:        "invalid PDU",
	ErrAuthentication:    "insufficient authentication",
	ErrReqNotSupp:        "request not supported",
	ErrInvalidOffset:     "invalid offset",
	ErrAuthorization:     "insufficient authorization",
	ErrPrepQueueFull:     "prepare queue full",
	ErrAttrNotFound:      "attribute not found",
	ErrAttrNotLong:       "attribute not long",
	ErrInsuffEncrKeySize: "insufficient encryption key size",
	ErrInvalAttrValueLen: "invalid attribute value length",
	ErrUnlikely:          "unlikely error",
	ErrInsuffEnc:         "insufficient encryption",
	ErrUnsuppGrpType:     "unsupported group type",
	ErrInsuffResources:   "insufficient resources",
}

func (e Error) Error() string {
	if name, ok := errName[e]; ok {
		return "att: " + name
	}
	switch {
	case e >= 0x80 && e <= 0x9f:
		return fmt.Sprintf("att: application error 0x%02x", byte(e))
	case e >= 0xe0:
		return fmt.Sprintf("att: profile or service error 0x%02x", byte(e))
	}
	return fmt.Sprintf("att: reserved error 0x%02x", byte(e))
}

// ErrorResponse is a decoded ATT Error Response. It unwraps to its Code, so
// errors.Is(err, att.ErrAttrNotFound) holds for a matching response.
type ErrorResponse struct {
	RequestOpcode uint8
	Handle        uint16
	Code          Error
}

var errShortPDU = errors.New("att: short PDU")

// ParseErrorResponse decodes an Error Response PDU, opcode byte included.
func ParseErrorResponse(pdu []byte) (*ErrorResponse, error) {
	if len(pdu) < 5 {
		return nil, errShortPDU
	}
	if pdu[0] != OpError {
		return nil, fmt.Errorf("att: opcode 0x%02x is not an error response", pdu[0])
	}
	return &ErrorResponse{
		RequestOpcode: pdu[1],
		Handle:        binary.LittleEndian.Uint16(pdu[2:]),
		Code:          Error(pdu[4]),
	}, nil
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%v (request 0x%02x, handle 0x%04x)", e.Code, e.RequestOpcode, e.Handle)
}

func (e *ErrorResponse) Unwrap() error {
	return e.Code
}
