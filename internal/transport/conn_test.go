package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		in      string
		host    string
		port    uint16
		wantErr bool
	}{
		{in: DefaultAddress, host: "192.168.0.1", port: 12002},
		{in: "ldmrs.local:2111", host: "ldmrs.local", port: 2111},
		{in: "[::1]:12002", host: "::1", port: 12002},
		{in: "192.168.0.1", wantErr: true},
		{in: ":12002", wantErr: true},
		{in: "192.168.0.1:0", wantErr: true},
		{in: "192.168.0.1:70000", wantErr: true},
		{in: "192.168.0.1:port", wantErr: true},
	}
	for _, tt := range tests {
		host, port, err := SplitAddress(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SplitAddress(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitAddress(%q) error: %v", tt.in, err)
			continue
		}
		if host != tt.host || port != tt.port {
			t.Errorf("SplitAddress(%q) = %q, %d; want %q, %d", tt.in, host, port, tt.host, tt.port)
		}
	}
}

func TestTCPDialer_Dial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := TCPDialer{Timeout: time.Second}.Dial(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	server := <-accepted
	defer server.Close()

	if _, err := server.Write([]byte{0xAF, 0xFE}); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf[0] != 0xAF || buf[1] != 0xFE {
		t.Errorf("read % x, want af fe", buf)
	}
}

func TestTCPDialer_BadAddress(t *testing.T) {
	if _, err := (TCPDialer{}).Dial(context.Background(), "no-port"); err == nil {
		t.Fatal("expected error for address without port")
	}
}

func TestTestableConn_QueueReply(t *testing.T) {
	c := NewTestableConn()
	c.QueueReply([]byte("first"), []byte("second"))

	buf := make([]byte, 16)
	if _, err := c.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("read before any write: err = %v, want EOF", err)
	}

	c.Write([]byte("cmd1"))
	n, _ := c.Read(buf)
	if got := string(buf[:n]); got != "first" {
		t.Errorf("after first write read %q, want %q", got, "first")
	}

	c.Write([]byte("cmd2"))
	n, _ = c.Read(buf)
	if got := string(buf[:n]); got != "second" {
		t.Errorf("after second write read %q, want %q", got, "second")
	}

	if frames := c.WrittenFrames(); len(frames) != 2 || string(frames[1]) != "cmd2" {
		t.Errorf("WrittenFrames() = %q", frames)
	}
}

func TestTestableConn_ReadErrorAfterData(t *testing.T) {
	c := NewTestableConn()
	boom := errors.New("reset by peer")
	c.AddReadData([]byte{1, 2})
	c.ReadError = boom

	buf := make([]byte, 4)
	if n, err := c.Read(buf); err != nil || n != 2 {
		t.Fatalf("first read = %d, %v; want 2, nil", n, err)
	}
	if _, err := c.Read(buf); !errors.Is(err, boom) {
		t.Fatalf("second read err = %v, want %v", err, boom)
	}
}

func TestTestableConn_BlockedReadWakesOnClose(t *testing.T) {
	c := NewTestableConn()
	c.BlockReads = true

	done := make(chan error, 1)
	go func() {
		_, err := c.Read(make([]byte, 1))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked read did not return after Close")
	}
}

func TestMockDialer(t *testing.T) {
	conn := NewTestableConn()
	d := &MockDialer{Conn: conn}

	got, err := d.Dial(context.Background(), DefaultAddress)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if got != conn {
		t.Error("Dial returned a different connection")
	}
	if len(d.Addresses) != 1 || d.Addresses[0] != DefaultAddress {
		t.Errorf("Addresses = %v", d.Addresses)
	}

	d.Error = errors.New("unreachable")
	if _, err := d.Dial(context.Background(), DefaultAddress); err == nil {
		t.Error("expected configured error")
	}
}
