// Package wire encodes and decodes LD-MRS Ethernet frames.
//
// Every frame starts with a 24-byte big-endian header followed by a
// little-endian payload whose layout depends on the header's data type:
//
//	offset  size  field
//	0       4     magic word AF FE C0 C2
//	4       4     size of the previous message (unused by the host)
//	8       4     payload size
//	12      1     reserved
//	13      1     device id
//	14      2     data type
//	16      8     NTP timestamp (seconds, fractions)
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFraming is wrapped by every decode error caused by malformed bytes.
var ErrFraming = errors.New("ldmrs: framing error")

// HeaderSize is the fixed size of the frame header in bytes.
const HeaderSize = 24

// MaxPayloadSize bounds the declared payload size. The largest scans seen on
// the wire are well under 64 KiB.
const MaxPayloadSize = 1 << 20

// Magic is the frame sentinel.
var Magic = [4]byte{0xAF, 0xFE, 0xC0, 0xC2}

// DataType identifies the payload carried by a frame.
type DataType uint16

const (
	TypeCommand    DataType = 0x2010
	TypeReply      DataType = 0x2020
	TypeFault      DataType = 0x2030
	TypeScan       DataType = 0x2202
	TypeObjectData DataType = 0x2221
)

func (t DataType) String() string {
	switch t {
	case TypeCommand:
		return "command"
	case TypeReply:
		return "reply"
	case TypeFault:
		return "error/warning"
	case TypeScan:
		return "scan"
	case TypeObjectData:
		return "object data"
	}
	return fmt.Sprintf("type 0x%04x", uint16(t))
}

// Header is the decoded frame header.
type Header struct {
	Magic        [4]byte
	PreviousSize uint32
	PayloadSize  uint32
	DeviceID     uint8
	Type         DataType
	Seconds      uint32
	Fractions    uint32
}

// Valid reports whether the header carries the frame sentinel and a payload
// size the decoder is willing to read.
func (h Header) Valid() bool {
	return h.Magic == Magic && h.PayloadSize <= MaxPayloadSize
}

// FrameSize is the number of bytes the whole frame occupies on the wire.
func (h Header) FrameSize() int {
	return HeaderSize + int(h.PayloadSize)
}

// AppendHeader appends the big-endian encoding of h to b.
func AppendHeader(b []byte, h Header) []byte {
	b = append(b, h.Magic[:]...)
	b = binary.BigEndian.AppendUint32(b, h.PreviousSize)
	b = binary.BigEndian.AppendUint32(b, h.PayloadSize)
	b = append(b, 0, h.DeviceID)
	b = binary.BigEndian.AppendUint16(b, uint16(h.Type))
	b = binary.BigEndian.AppendUint32(b, h.Seconds)
	b = binary.BigEndian.AppendUint32(b, h.Fractions)
	return b
}

// ParseHeader decodes the first HeaderSize bytes of b without validating
// them. Callers that need a usable header should call DecodeHeader.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrFraming, HeaderSize, len(b))
	}
	var h Header
	copy(h.Magic[:], b[0:4])
	h.PreviousSize = binary.BigEndian.Uint32(b[4:8])
	h.PayloadSize = binary.BigEndian.Uint32(b[8:12])
	h.DeviceID = b[13]
	h.Type = DataType(binary.BigEndian.Uint16(b[14:16]))
	h.Seconds = binary.BigEndian.Uint32(b[16:20])
	h.Fractions = binary.BigEndian.Uint32(b[20:24])
	return h, nil
}

// DecodeHeader decodes and validates a frame header.
func DecodeHeader(b []byte) (Header, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return h, err
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("%w: bad magic % x", ErrFraming, h.Magic[:])
	}
	if h.PayloadSize > MaxPayloadSize {
		return h, fmt.Errorf("%w: declared payload size %d exceeds %d", ErrFraming, h.PayloadSize, MaxPayloadSize)
	}
	return h, nil
}

// SplitFrame validates a complete frame and returns its header and payload.
// Trailing bytes beyond the declared payload size are rejected.
func SplitFrame(frame []byte) (Header, []byte, error) {
	h, err := DecodeHeader(frame)
	if err != nil {
		return h, nil, err
	}
	switch {
	case len(frame) < h.FrameSize():
		return h, nil, fmt.Errorf("%w: truncated %s payload: have %d of %d bytes",
			ErrFraming, h.Type, len(frame)-HeaderSize, h.PayloadSize)
	case len(frame) > h.FrameSize():
		return h, nil, fmt.Errorf("%w: %d bytes beyond declared payload size %d",
			ErrFraming, len(frame)-h.FrameSize(), h.PayloadSize)
	}
	return h, frame[HeaderSize:], nil
}

// frame wraps payload in a header of the given type.
func frame(t DataType, payload []byte) []byte {
	b := make([]byte, 0, HeaderSize+len(payload))
	b = AppendHeader(b, Header{
		Magic:       Magic,
		PayloadSize: uint32(len(payload)),
		Type:        t,
	})
	return append(b, payload...)
}
