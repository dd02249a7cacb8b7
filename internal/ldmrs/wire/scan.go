package wire

import (
	"encoding/binary"
	"fmt"
)

// Scan payload layout constants.
const (
	ScanHeaderSize = 44 // fixed part of every scan payload
	ScanPointSize  = 10 // size of one measured point
)

// NTPStamp is a 64-bit NTP timestamp as carried inside scan payloads.
type NTPStamp struct {
	Seconds   uint32
	Fractions uint32
}

func appendNTP(b []byte, t NTPStamp) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(t.Seconds)<<32|uint64(t.Fractions))
}

func parseNTP(b []byte) NTPStamp {
	v := binary.LittleEndian.Uint64(b)
	return NTPStamp{Seconds: uint32(v >> 32), Fractions: uint32(v)}
}

// ScanHeader is the fixed part of a scan payload.
type ScanHeader struct {
	MeasurementNumber uint16
	ScannerStatus     uint16
	SyncPhaseOffset   uint16
	StartTime         NTPStamp
	EndTime           NTPStamp
	TicksPerRotation  uint16
	StartAngle        int16
	EndAngle          int16
	Points            uint16
	MountingYaw       int16
	MountingPitch     int16
	MountingRoll      int16
	MountingX         int16
	MountingY         int16
	MountingZ         int16
	Flags             uint16
}

// PayloadSize is the payload size a scan with this header must declare.
func (s ScanHeader) PayloadSize() int {
	return ScanHeaderSize + int(s.Points)*ScanPointSize
}

// ScanPoint is one measured point.
type ScanPoint struct {
	Layer     uint8 // 0..3, low nibble of the first byte
	Echo      uint8 // 0..3, high nibble of the first byte
	Flags     uint8
	Angle     int16  // in angle ticks, see ScanHeader.TicksPerRotation
	Distance  uint16 // centimetres
	EchoWidth uint16 // centimetres
}

// AppendScanHeader appends the little-endian encoding of s to b.
func AppendScanHeader(b []byte, s ScanHeader) []byte {
	le := binary.LittleEndian
	b = le.AppendUint16(b, s.MeasurementNumber)
	b = le.AppendUint16(b, s.ScannerStatus)
	b = le.AppendUint16(b, s.SyncPhaseOffset)
	b = appendNTP(b, s.StartTime)
	b = appendNTP(b, s.EndTime)
	b = le.AppendUint16(b, s.TicksPerRotation)
	b = le.AppendUint16(b, uint16(s.StartAngle))
	b = le.AppendUint16(b, uint16(s.EndAngle))
	b = le.AppendUint16(b, s.Points)
	for _, v := range []int16{s.MountingYaw, s.MountingPitch, s.MountingRoll, s.MountingX, s.MountingY, s.MountingZ} {
		b = le.AppendUint16(b, uint16(v))
	}
	return le.AppendUint16(b, s.Flags)
}

// DecodeScanHeader parses the scan header at the start of a scan payload.
// It only checks that enough bytes are present; use CheckScanPayload to
// verify the declared point count against the payload size.
func DecodeScanHeader(p []byte) (ScanHeader, error) {
	if len(p) < ScanHeaderSize {
		return ScanHeader{}, fmt.Errorf("%w: scan header needs %d bytes, got %d", ErrFraming, ScanHeaderSize, len(p))
	}
	le := binary.LittleEndian
	s := ScanHeader{
		MeasurementNumber: le.Uint16(p[0:2]),
		ScannerStatus:     le.Uint16(p[2:4]),
		SyncPhaseOffset:   le.Uint16(p[4:6]),
		StartTime:         parseNTP(p[6:14]),
		EndTime:           parseNTP(p[14:22]),
		TicksPerRotation:  le.Uint16(p[22:24]),
		StartAngle:        int16(le.Uint16(p[24:26])),
		EndAngle:          int16(le.Uint16(p[26:28])),
		Points:            le.Uint16(p[28:30]),
		MountingYaw:       int16(le.Uint16(p[30:32])),
		MountingPitch:     int16(le.Uint16(p[32:34])),
		MountingRoll:      int16(le.Uint16(p[34:36])),
		MountingX:         int16(le.Uint16(p[36:38])),
		MountingY:         int16(le.Uint16(p[38:40])),
		MountingZ:         int16(le.Uint16(p[40:42])),
		Flags:             le.Uint16(p[42:44]),
	}
	return s, nil
}

// CheckScanPayload decodes the scan header of p and verifies that the
// payload holds exactly the declared number of points.
func CheckScanPayload(p []byte) (ScanHeader, error) {
	s, err := DecodeScanHeader(p)
	if err != nil {
		return s, err
	}
	if want := s.PayloadSize(); len(p) != want {
		return s, fmt.Errorf("%w: scan %d declares %d points (%d bytes) in a %d-byte payload",
			ErrFraming, s.MeasurementNumber, s.Points, want, len(p))
	}
	return s, nil
}

// DecodeScanPoints parses the points following the scan header of p.
func DecodeScanPoints(p []byte) ([]ScanPoint, error) {
	s, err := CheckScanPayload(p)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	points := make([]ScanPoint, 0, s.Points)
	for off := ScanHeaderSize; off < len(p); off += ScanPointSize {
		b := p[off : off+ScanPointSize]
		points = append(points, ScanPoint{
			Layer:     b[0] & 0x0F,
			Echo:      b[0] >> 4,
			Flags:     b[1],
			Angle:     int16(le.Uint16(b[2:4])),
			Distance:  le.Uint16(b[4:6]),
			EchoWidth: le.Uint16(b[6:8]),
		})
	}
	return points, nil
}

// EncodeScan returns a complete scan frame. The header's point count is
// taken from len(points).
func EncodeScan(s ScanHeader, points []ScanPoint) []byte {
	s.Points = uint16(len(points))
	p := make([]byte, 0, s.PayloadSize())
	p = AppendScanHeader(p, s)
	le := binary.LittleEndian
	for _, pt := range points {
		p = append(p, pt.Layer&0x0F|pt.Echo<<4, pt.Flags)
		p = le.AppendUint16(p, uint16(pt.Angle))
		p = le.AppendUint16(p, pt.Distance)
		p = le.AppendUint16(p, pt.EchoWidth)
		p = le.AppendUint16(p, 0)
	}
	return frame(TypeScan, p)
}
