// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files: canned device frames, a scripted device built on
// transport.TestableConn, and small assertion helpers.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/transport"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// OK returns a successful reply frame for id.
func OK(id wire.CommandID) []byte {
	return wire.EncodeResponse(wire.Response{ID: id})
}

// Fail returns a rejected reply frame for id.
func Fail(id wire.CommandID) []byte {
	return wire.EncodeResponse(wire.Response{ID: id, Failed: true})
}

// ParamReply returns a get-parameter reply carrying value.
func ParamReply(index wire.ParamIndex, value [4]byte) []byte {
	return wire.EncodeResponse(wire.Response{ID: wire.CmdGetParameter, Index: index, Value: value})
}

// Scan returns a scan frame with the given measurement number and points
// zero-valued points.
func Scan(measurement uint16, points int) []byte {
	return wire.EncodeScan(wire.ScanHeader{
		MeasurementNumber: measurement,
		TicksPerRotation:  11520,
		StartAngle:        1600,
		EndAngle:          -1920,
	}, make([]wire.ScanPoint, points))
}

// Concat joins frames into one chunk so they arrive together.
func Concat(frames ...[]byte) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// StreamingDevice returns a connection scripted like a device that accepts
// start and one clock sync, then sends scans.
func StreamingDevice(scans ...[]byte) *transport.TestableConn {
	conn := transport.NewTestableConn()
	conn.QueueReply(
		OK(wire.CmdStartMeasure),
		OK(wire.CmdSetNTPSeconds),
		Concat(append([][]byte{OK(wire.CmdSetNTPFractions)}, scans...)...),
	)
	return conn
}
