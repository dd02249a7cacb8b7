// Package replay reads a captured scanner session from a pcap or pcapng file
// and presents the device-to-host byte stream as a read-only connection, so
// captured data can be streamed without a device.
package replay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/monitoring"
)

// DefaultPort is the scanner's TCP port.
const DefaultPort = 12002

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// packetSource is satisfied by both pcapgo readers.
type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Stats summarises what the reassembler saw.
type Stats struct {
	Packets         int // packets read from the capture
	Segments        int // payload-carrying segments from the device flow
	Retransmissions int // segments fully covered by earlier data
	Gaps            int // segments that started beyond the expected sequence
	Skipped         int // bytes dropped before the first frame magic
	Bytes           int64
}

// Conn replays the payload a device sent from Port. Writes are discarded and
// deadlines are ignored; Read returns io.EOF at the end of the capture.
type Conn struct {
	f    *os.File
	src  packetSource
	port layers.TCPPort

	flow    gopacket.Flow // device endpoint, fixed by the first matching segment
	started bool
	next    uint32
	pending bytes.Buffer
	aligned bool
	stats   Stats
	closed  bool
}

// Open opens path, detecting pcap or pcapng from the file magic. A zero port
// means DefaultPort.
func Open(path string, port uint16) (*Conn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c, err := newConn(f, port)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	c.f = f
	return c, nil
}

func newConn(r io.Reader, port uint16) (*Conn, error) {
	if port == 0 {
		port = DefaultPort
	}
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, err
	}

	var src packetSource
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, err
	}
	return &Conn{src: src, port: layers.TCPPort(port)}, nil
}

// Read returns reassembled device payload. A capture that starts mid-frame
// is skipped up to the first frame magic.
func (c *Conn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, os.ErrClosed
	}
	for c.pending.Len() == 0 || !c.aligned {
		if c.pending.Len() > 0 && c.align() {
			break
		}
		if err := c.fill(); err != nil {
			return 0, err
		}
	}
	return c.pending.Read(p)
}

// align discards pending bytes before the first frame magic. It keeps a
// possible partial magic at the tail and reports whether alignment is done.
func (c *Conn) align() bool {
	b := c.pending.Bytes()
	if i := bytes.Index(b, wire.Magic[:]); i >= 0 {
		c.pending.Next(i)
		c.stats.Skipped += i
		c.aligned = true
		return true
	}
	if drop := len(b) - (len(wire.Magic) - 1); drop > 0 {
		c.pending.Next(drop)
		c.stats.Skipped += drop
	}
	return false
}

// fill reads packets until one contributes new bytes to pending.
func (c *Conn) fill() error {
	for {
		data, _, err := c.src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("replay: end of capture: %d packets, %d segments, %d bytes, %d retransmissions, %d gaps",
				c.stats.Packets, c.stats.Segments, c.stats.Bytes, c.stats.Retransmissions, c.stats.Gaps)
			return io.EOF
		}
		if err != nil {
			return fmt.Errorf("replay: read packet %d: %w", c.stats.Packets+1, err)
		}
		c.stats.Packets++

		pkt := gopacket.NewPacket(data, c.src.LinkType(), gopacket.NoCopy)
		tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok || tcp.SrcPort != c.port {
			continue
		}
		nl := pkt.NetworkLayer()
		if nl == nil {
			continue
		}

		if !c.started {
			c.flow = nl.NetworkFlow()
			c.next = tcp.Seq
			if tcp.SYN {
				c.next++
			}
			c.started = true
		} else if nl.NetworkFlow() != c.flow {
			continue
		}

		if c.accept(tcp.Seq, tcp.Payload) {
			return nil
		}
	}
}

// accept appends the part of a segment not yet seen and reports whether it
// added anything. Sequence comparisons use serial arithmetic so wraparound
// is handled.
func (c *Conn) accept(seq uint32, payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	c.stats.Segments++
	end := seq + uint32(len(payload))

	switch {
	case int32(end-c.next) <= 0:
		c.stats.Retransmissions++
		return false
	case int32(seq-c.next) < 0:
		payload = payload[c.next-seq:]
	case seq != c.next:
		// Capture dropped bytes; resynchronise on what we have.
		c.stats.Gaps++
		monitoring.Logf("replay: %d bytes missing before sequence %d", seq-c.next, seq)
	}

	c.pending.Write(payload)
	c.stats.Bytes += int64(len(payload))
	c.next = end
	return true
}

// Write discards p.
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, os.ErrClosed
	}
	return len(p), nil
}

// SetReadDeadline is a no-op; a capture never blocks.
func (c *Conn) SetReadDeadline(time.Time) error { return nil }

// Close releases the capture file.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.f != nil {
		return c.f.Close()
	}
	return nil
}

// Stats returns the reassembly counters so far.
func (c *Conn) Stats() Stats { return c.stats }
