package ldmrs

import (
	"errors"
	"fmt"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
)

var (
	// ErrTimeout is wrapped when the device does not answer in time.
	ErrTimeout = errors.New("ldmrs: timed out waiting for device")
	// ErrRejected is wrapped when the device answers a command with fail.
	ErrRejected = errors.New("ldmrs: command rejected by device")
)

// ConnectionError reports a lost or unusable transport. It is always fatal.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ldmrs: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed, truncated or unexpected frame. It is
// fatal for the operation that read it.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ldmrs: protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DeviceFaultError carries a fatal fault drained from the device.
type DeviceFaultError struct {
	Fault wire.Fault
}

func (e *DeviceFaultError) Error() string {
	return fmt.Sprintf("ldmrs: device fault %s", e.Fault)
}

// ValidationError rejects caller input before anything is sent.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ldmrs: invalid input %q: %s", e.Input, e.Reason)
}

// rejected wraps ErrRejected for cmd.
func rejected(cmd wire.Command) error {
	return fmt.Errorf("%s: %w", cmd, ErrRejected)
}
