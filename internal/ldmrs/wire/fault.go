package wire

import (
	"encoding/binary"
	"fmt"
)

// faultPayloadSize is the size of an error/warning payload: four registers
// and eight reserved bytes.
const faultPayloadSize = 16

// Fault is the content of an error/warning frame. The registers are bit
// masks; any error bit makes the fault fatal, warnings alone are transient.
type Fault struct {
	Error1   uint16
	Error2   uint16
	Warning1 uint16
	Warning2 uint16
}

// Fatal reports whether any error bit is set.
func (f Fault) Fatal() bool {
	return f.Error1 != 0 || f.Error2 != 0
}

// Empty reports whether no bit is set at all.
func (f Fault) Empty() bool {
	return f == Fault{}
}

// Code packs the four registers into one value, error registers first.
func (f Fault) Code() uint64 {
	return uint64(f.Error1)<<48 | uint64(f.Error2)<<32 | uint64(f.Warning1)<<16 | uint64(f.Warning2)
}

// Merge returns the bitwise union of f and other.
func (f Fault) Merge(other Fault) Fault {
	return Fault{
		Error1:   f.Error1 | other.Error1,
		Error2:   f.Error2 | other.Error2,
		Warning1: f.Warning1 | other.Warning1,
		Warning2: f.Warning2 | other.Warning2,
	}
}

func (f Fault) String() string {
	severity := "warning"
	if f.Fatal() {
		severity = "error"
	}
	return fmt.Sprintf("%s: error registers 0x%04x 0x%04x, warning registers 0x%04x 0x%04x",
		severity, f.Error1, f.Error2, f.Warning1, f.Warning2)
}

// EncodeFault returns the complete error/warning frame for f.
func EncodeFault(f Fault) []byte {
	p := make([]byte, 0, faultPayloadSize)
	p = binary.LittleEndian.AppendUint16(p, f.Error1)
	p = binary.LittleEndian.AppendUint16(p, f.Error2)
	p = binary.LittleEndian.AppendUint16(p, f.Warning1)
	p = binary.LittleEndian.AppendUint16(p, f.Warning2)
	p = append(p, make([]byte, 8)...)
	return frame(TypeFault, p)
}

// DecodeFault parses a complete error/warning frame.
func DecodeFault(b []byte) (Fault, error) {
	h, p, err := SplitFrame(b)
	if err != nil {
		return Fault{}, err
	}
	if h.Type != TypeFault {
		return Fault{}, fmt.Errorf("%w: expected %s frame, got %s", ErrFraming, TypeFault, h.Type)
	}
	return DecodeFaultPayload(p)
}

// DecodeFaultPayload parses the payload of an error/warning frame. Only the
// four registers are required; the reserved tail may be absent.
func DecodeFaultPayload(p []byte) (Fault, error) {
	if len(p) < 8 {
		return Fault{}, fmt.Errorf("%w: error/warning payload of %d bytes", ErrFraming, len(p))
	}
	le := binary.LittleEndian
	return Fault{
		Error1:   le.Uint16(p[0:2]),
		Error2:   le.Uint16(p[2:4]),
		Warning1: le.Uint16(p[4:6]),
		Warning2: le.Uint16(p[6:8]),
	}, nil
}
