package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// statusBodySize is the size of the get-status reply after the echoed id.
const statusBodySize = 30

// DeviceStatus is the body of a successful get-status reply.
type DeviceStatus struct {
	FirmwareVersion uint16
	FPGAVersion     uint16
	ScannerStatus   uint16
	Temperature     uint16
	SerialNumber0   uint16
	SerialNumber1   uint16
	FPGADate        [3]uint16
	DSPDate         [3]uint16
}

// String renders the status as comma-separated name=value pairs.
func (s DeviceStatus) String() string {
	fields := []string{
		fmt.Sprintf("firmware=0x%04x", s.FirmwareVersion),
		fmt.Sprintf("fpga=0x%04x", s.FPGAVersion),
		fmt.Sprintf("status=0x%04x", s.ScannerStatus),
		fmt.Sprintf("temperature=%d", s.Temperature),
		fmt.Sprintf("serial=%04x-%04x", s.SerialNumber0, s.SerialNumber1),
		fmt.Sprintf("fpga_date=%04x-%04x-%04x", s.FPGADate[0], s.FPGADate[1], s.FPGADate[2]),
		fmt.Sprintf("dsp_date=%04x-%04x-%04x", s.DSPDate[0], s.DSPDate[1], s.DSPDate[2]),
	}
	return strings.Join(fields, ",")
}

// Response is a decoded reply frame.
type Response struct {
	ID     CommandID
	Failed bool

	// Set for successful get-parameter replies.
	Index ParamIndex
	Value [4]byte

	// Set for successful get-status replies.
	Status *DeviceStatus
}

// OK reports whether the device accepted the command.
func (r Response) OK() bool { return !r.Failed }

// Answers reports whether r is the reply to a command with the given id.
func (r Response) Answers(id CommandID) bool { return r.ID == id }

func responseBodySize(r Response) int {
	if r.Failed {
		return 0
	}
	switch r.ID {
	case CmdGetParameter:
		return 6
	case CmdGetStatus:
		return statusBodySize
	}
	return 0
}

// EncodeResponse returns the complete reply frame for r. The host never
// sends replies; this exists for device simulators and tests.
func EncodeResponse(r Response) []byte {
	id := uint16(r.ID)
	if r.Failed {
		id |= failedBit
	}
	p := make([]byte, 0, 2+responseBodySize(r))
	p = binary.LittleEndian.AppendUint16(p, id)
	if !r.Failed {
		switch r.ID {
		case CmdGetParameter:
			p = binary.LittleEndian.AppendUint16(p, uint16(r.Index))
			p = append(p, r.Value[:]...)
		case CmdGetStatus:
			var s DeviceStatus
			if r.Status != nil {
				s = *r.Status
			}
			p = appendStatus(p, s)
		}
	}
	return frame(TypeReply, p)
}

func appendStatus(p []byte, s DeviceStatus) []byte {
	p = binary.LittleEndian.AppendUint16(p, s.FirmwareVersion)
	p = binary.LittleEndian.AppendUint16(p, s.FPGAVersion)
	p = binary.LittleEndian.AppendUint16(p, s.ScannerStatus)
	p = binary.LittleEndian.AppendUint32(p, 0)
	p = binary.LittleEndian.AppendUint16(p, s.Temperature)
	p = binary.LittleEndian.AppendUint16(p, s.SerialNumber0)
	p = binary.LittleEndian.AppendUint16(p, s.SerialNumber1)
	p = binary.LittleEndian.AppendUint16(p, 0)
	for _, v := range s.FPGADate {
		p = binary.LittleEndian.AppendUint16(p, v)
	}
	for _, v := range s.DSPDate {
		p = binary.LittleEndian.AppendUint16(p, v)
	}
	return p
}

func parseStatus(b []byte) *DeviceStatus {
	le := binary.LittleEndian
	s := &DeviceStatus{
		FirmwareVersion: le.Uint16(b[0:2]),
		FPGAVersion:     le.Uint16(b[2:4]),
		ScannerStatus:   le.Uint16(b[4:6]),
		Temperature:     le.Uint16(b[10:12]),
		SerialNumber0:   le.Uint16(b[12:14]),
		SerialNumber1:   le.Uint16(b[14:16]),
	}
	for i := range s.FPGADate {
		s.FPGADate[i] = le.Uint16(b[18+2*i:])
	}
	for i := range s.DSPDate {
		s.DSPDate[i] = le.Uint16(b[24+2*i:])
	}
	return s
}

// DecodeResponse parses a complete reply frame.
func DecodeResponse(b []byte) (Response, error) {
	h, p, err := SplitFrame(b)
	if err != nil {
		return Response{}, err
	}
	if h.Type != TypeReply {
		return Response{}, fmt.Errorf("%w: expected %s frame, got %s", ErrFraming, TypeReply, h.Type)
	}
	return DecodeResponsePayload(p)
}

// DecodeResponsePayload parses the payload of a reply frame.
func DecodeResponsePayload(p []byte) (Response, error) {
	if len(p) < 2 {
		return Response{}, fmt.Errorf("%w: reply payload of %d bytes", ErrFraming, len(p))
	}
	raw := binary.LittleEndian.Uint16(p[0:2])
	r := Response{
		ID:     CommandID(raw &^ failedBit),
		Failed: raw&failedBit != 0,
	}
	body := p[2:]
	want := responseBodySize(r)
	if len(body) < want {
		return Response{}, fmt.Errorf("%w: %s reply body is %d bytes, want %d", ErrFraming, r.ID, len(body), want)
	}
	if r.Failed {
		return r, nil
	}
	switch r.ID {
	case CmdGetParameter:
		r.Index = ParamIndex(binary.LittleEndian.Uint16(body[0:2]))
		copy(r.Value[:], body[2:6])
	case CmdGetStatus:
		r.Status = parseStatus(body)
	}
	return r, nil
}
