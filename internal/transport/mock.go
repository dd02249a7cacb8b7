package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by TestableConn after Close.
var ErrClosed = errors.New("connection closed")

// TestableConn implements Conn with configurable behaviour for testing.
// Reads drain ReadBuffer and report io.EOF once it is empty, unless
// BlockReads is set. Frames queued with QueueReply are released into the
// read buffer one per Write, which mimics a device answering commands.
type TestableConn struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the connection
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// Writes records each Write payload separately
	Writes [][]byte

	// Deadlines records every SetReadDeadline call
	Deadlines []time.Time

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	replies  [][]byte
	readCond *sync.Cond
}

// NewTestableConn creates a new TestableConn for testing.
func NewTestableConn() *TestableConn {
	c := &TestableConn{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	c.readCond = sync.NewCond(&c.mu)
	return c
}

// Read reads from the read buffer, optionally simulating errors.
func (c *TestableConn) Read(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ReadCalls++

	if c.Closed {
		return 0, ErrClosed
	}

	if c.ReadError != nil && c.ReadBuffer.Len() == 0 {
		err := c.ReadError
		c.ReadError = nil
		return 0, err
	}

	if c.BlockReads && c.ReadBuffer.Len() == 0 {
		for !c.Closed && c.ReadBuffer.Len() == 0 {
			c.readCond.Wait()
		}
		if c.Closed {
			return 0, ErrClosed
		}
	}

	return c.ReadBuffer.Read(p)
}

// Write writes to the write buffer and releases the next queued reply.
func (c *TestableConn) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.WriteCalls++

	if c.Closed {
		return 0, ErrClosed
	}

	if c.WriteError != nil {
		err := c.WriteError
		c.WriteError = nil
		return 0, err
	}

	c.Writes = append(c.Writes, append([]byte(nil), p...))
	if len(c.replies) > 0 {
		c.ReadBuffer.Write(c.replies[0])
		c.replies = c.replies[1:]
		c.readCond.Broadcast()
	}
	return c.WriteBuffer.Write(p)
}

// Close marks the connection as closed.
func (c *TestableConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Closed = true
	c.readCond.Broadcast() // Wake up any blocked readers

	return c.CloseError
}

// SetReadDeadline records the deadline. Deadlines are not enforced.
func (c *TestableConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Deadlines = append(c.Deadlines, t)
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (c *TestableConn) AddReadData(data ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range data {
		c.ReadBuffer.Write(d)
	}
	c.readCond.Broadcast()
}

// QueueReply queues frames that become readable one per Write call.
func (c *TestableConn) QueueReply(frames ...[]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range frames {
		c.replies = append(c.replies, append([]byte(nil), f...))
	}
}

// WrittenFrames returns a copy of every Write payload in order.
func (c *TestableConn) WrittenFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.Writes))
	copy(out, c.Writes)
	return out
}

// MockDialer implements Dialer for testing.
type MockDialer struct {
	mu sync.Mutex

	// Conn is the connection returned from Dial
	Conn Conn

	// Error is returned by Dial if set
	Error error

	// Addresses records every dialled address
	Addresses []string
}

// Dial returns the configured connection or error.
func (d *MockDialer) Dial(ctx context.Context, address string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Addresses = append(d.Addresses, address)
	if d.Error != nil {
		return nil, d.Error
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Conn, nil
}
