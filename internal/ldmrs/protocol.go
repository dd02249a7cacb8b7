// Package ldmrs drives an LD-MRS laser scanner over one connection:
// synchronous command exchanges, fault latching, clock synchronisation and
// scan streaming. A Protocol is not safe for concurrent use; one goroutine
// owns it for the lifetime of the connection.
package ldmrs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/metrics"
	"github.com/banshee-data/ldmrs/internal/transport"
)

// Default timeouts.
const (
	DefaultCommandTimeout = 2 * time.Second
	DefaultScanTimeout    = 5 * time.Second
)

// Options configures a Protocol. Zero values select defaults.
type Options struct {
	// CommandTimeout bounds the wait for the reply to one command.
	CommandTimeout time.Duration
	// ScanTimeout bounds the wait for the next scan frame.
	ScanTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// OnFault, if set, is called with every fault drained from the latch.
	OnFault func(wire.Fault)
}

// Protocol is the client side of one scanner connection.
type Protocol struct {
	conn    transport.Conn
	r       *bufio.Reader
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics

	buf   []byte
	fault *wire.Fault
	scan  ScanPacket
}

// New wraps conn. The caller keeps ownership of conn and closes it.
func New(conn transport.Conn, opts Options) *Protocol {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = DefaultScanTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Protocol{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, 64*1024),
		opts:    opts,
		log:     log,
		metrics: opts.Metrics,
		buf:     make([]byte, wire.HeaderSize, 16*1024),
	}
}

// Write sends cmd and blocks until the device replies to it or the command
// timeout passes. Scan frames that arrive meanwhile are discarded and fault
// frames are latched. A reply with the fail flag is returned without error;
// check Response.OK.
func (p *Protocol) Write(cmd wire.Command) (wire.Response, error) {
	op := cmd.ID.String()
	if err := p.send(op, wire.EncodeCommand(cmd)); err != nil {
		p.metrics.Exchange(op, "error")
		return wire.Response{}, err
	}

	deadline := time.Now().Add(p.opts.CommandTimeout)
	for {
		h, frame, err := p.readFrame(op, deadline)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = &ConnectionError{Op: op, Err: fmt.Errorf("connection closed before reply: %w", io.ErrUnexpectedEOF)}
			}
			p.metrics.Exchange(op, "error")
			return wire.Response{}, err
		}

		switch h.Type {
		case wire.TypeReply:
			r, err := wire.DecodeResponsePayload(frame[wire.HeaderSize:])
			if err != nil {
				p.metrics.Exchange(op, "error")
				return wire.Response{}, &ProtocolError{Op: op, Err: err}
			}
			if !r.Answers(cmd.ID) {
				// Reply to an earlier command whose wait timed out.
				p.log.Warn("discarding stale reply", zap.Stringer("command", cmd.ID), zap.Stringer("reply", r.ID))
				p.metrics.Skipped("stale reply")
				continue
			}
			result := "ok"
			if !r.OK() {
				result = "fail"
			}
			p.metrics.Exchange(op, result)
			p.log.Debug("exchange", zap.Stringer("command", cmd), zap.String("result", result))
			return r, nil
		case wire.TypeFault:
			if err := p.latch(op, frame); err != nil {
				p.metrics.Exchange(op, "error")
				return wire.Response{}, err
			}
		default:
			p.metrics.Skipped(h.Type.String())
		}
	}
}

// ResetDSP restarts the scanner's signal processor. The device reboots
// instead of replying, so nothing is read back.
func (p *Protocol) ResetDSP() error {
	cmd := wire.NewResetDSP()
	if err := p.send(cmd.ID.String(), wire.EncodeCommand(cmd)); err != nil {
		p.metrics.Exchange(cmd.ID.String(), "error")
		return err
	}
	p.metrics.Exchange(cmd.ID.String(), "sent")
	return nil
}

func (p *Protocol) send(op string, frame []byte) error {
	n, err := p.conn.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &ConnectionError{Op: op, Err: err}
	}
	return nil
}

// readFrame reads one complete frame into p.buf. It returns io.EOF, unwrapped,
// only when the stream ends cleanly on a frame boundary. The returned slice
// is valid until the next read.
func (p *Protocol) readFrame(op string, deadline time.Time) (wire.Header, []byte, error) {
	if !time.Now().Before(deadline) {
		return wire.Header{}, nil, &ConnectionError{Op: op, Err: ErrTimeout}
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return wire.Header{}, nil, &ConnectionError{Op: op, Err: err}
	}

	p.buf = p.buf[:wire.HeaderSize]
	if _, err := io.ReadFull(p.r, p.buf); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return wire.Header{}, nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return wire.Header{}, nil, &ProtocolError{Op: op, Err: fmt.Errorf("%w: truncated header", wire.ErrFraming)}
		}
		return wire.Header{}, nil, p.readError(op, err)
	}

	h, err := wire.DecodeHeader(p.buf)
	if err != nil {
		return h, nil, &ProtocolError{Op: op, Err: err}
	}

	size := h.FrameSize()
	if cap(p.buf) < size {
		grown := make([]byte, size)
		copy(grown, p.buf)
		p.buf = grown
	}
	p.buf = p.buf[:size]
	if _, err := io.ReadFull(p.r, p.buf[wire.HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return h, nil, &ProtocolError{Op: op, Err: fmt.Errorf("%w: truncated %s payload, expected %d bytes", wire.ErrFraming, h.Type, h.PayloadSize)}
		}
		return h, nil, p.readError(op, err)
	}
	return h, p.buf, nil
}

func (p *Protocol) readError(op string, err error) error {
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &ConnectionError{Op: op, Err: err}
}
