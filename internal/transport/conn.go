// Package transport provides the byte stream a scanner client talks over:
// a TCP connection in production and scripted fakes in tests.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// DefaultAddress is the factory address of an LD-MRS.
const DefaultAddress = "192.168.0.1:12002"

// Conn defines the minimal interface needed for a scanner connection.
// This abstraction enables unit testing without real hardware.
type Conn interface {
	io.ReadWriter
	io.Closer
	// SetReadDeadline bounds the next reads; the zero time disables it.
	SetReadDeadline(t time.Time) error
}

// Dialer opens connections to a scanner.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// TCPDialer dials real TCP connections.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means no limit beyond
	// the context's.
	Timeout time.Duration
	// KeepAlive is passed through to net.Dialer.
	KeepAlive time.Duration
}

// Dial connects to address, which must be host:port.
func (d TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if _, _, err := SplitAddress(address); err != nil {
		return nil, err
	}
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	c, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return c, nil
}

// SplitAddress splits host:port and validates the port number.
func SplitAddress(address string) (host string, port uint16, err error) {
	h, p, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("expected <address>:<port>, got %q: %w", address, err)
	}
	if h == "" {
		return "", 0, fmt.Errorf("expected <address>:<port>, got %q: empty host", address)
	}
	n, err := strconv.ParseUint(p, 10, 16)
	if err != nil || n == 0 {
		return "", 0, fmt.Errorf("invalid port %q in %q", p, address)
	}
	return h, uint16(n), nil
}
