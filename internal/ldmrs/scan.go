package ldmrs

import (
	"errors"
	"io"
	"time"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
)

// ScanStatus classifies the outcome of one ReadScan call.
type ScanStatus int

const (
	// ScanOK means Packet holds a valid scan.
	ScanOK ScanStatus = iota
	// ScanTransientFault means the device reported a fault instead of a
	// scan. The fault is latched; drain it and read again.
	ScanTransientFault
	// ScanFatal means Err holds a *ProtocolError or *ConnectionError and
	// streaming must stop.
	ScanFatal
	// ScanEndOfStream means the connection closed cleanly between frames.
	ScanEndOfStream
)

func (s ScanStatus) String() string {
	switch s {
	case ScanOK:
		return "ok"
	case ScanTransientFault:
		return "transient fault"
	case ScanFatal:
		return "fatal"
	case ScanEndOfStream:
		return "end of stream"
	}
	return "unknown"
}

// ScanResult is returned by ReadScan.
type ScanResult struct {
	Status ScanStatus
	Packet *ScanPacket
	Err    error
}

// ScanPacket is the most recently read scan. Its storage belongs to the
// Protocol and is overwritten by the next read of any kind.
type ScanPacket struct {
	Header wire.Header
	Scan   wire.ScanHeader
	frame  []byte
}

// Bytes returns the complete frame: the 24-byte header followed by exactly
// Header.PayloadSize payload bytes.
func (s *ScanPacket) Bytes() []byte { return s.frame }

// Payload returns the scan payload without the frame header.
func (s *ScanPacket) Payload() []byte { return s.frame[wire.HeaderSize:] }

// Points decodes the measured points.
func (s *ScanPacket) Points() ([]wire.ScanPoint, error) {
	return wire.DecodeScanPoints(s.Payload())
}

// ReadScan blocks for the next scan frame. Replies and object data are
// skipped; an error/warning frame is latched and reported as
// ScanTransientFault so the caller can drain it before retrying.
func (p *Protocol) ReadScan() ScanResult {
	const op = "readscan"
	deadline := time.Now().Add(p.opts.ScanTimeout)
	for {
		h, frame, err := p.readFrame(op, deadline)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ScanResult{Status: ScanEndOfStream}
			}
			return ScanResult{Status: ScanFatal, Err: err}
		}

		switch h.Type {
		case wire.TypeScan:
			sh, err := wire.CheckScanPayload(frame[wire.HeaderSize:])
			if err != nil {
				return ScanResult{Status: ScanFatal, Err: &ProtocolError{Op: op, Err: err}}
			}
			p.scan = ScanPacket{Header: h, Scan: sh, frame: frame}
			return ScanResult{Status: ScanOK, Packet: &p.scan}
		case wire.TypeFault:
			if err := p.latch(op, frame); err != nil {
				return ScanResult{Status: ScanFatal, Err: err}
			}
			if p.fault == nil {
				// Empty error/warning frame; nothing to drain.
				continue
			}
			return ScanResult{Status: ScanTransientFault}
		default:
			p.metrics.Skipped(h.Type.String())
		}
	}
}
