package ldmrs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/timeutil"
)

// Action selects what RunOneShot does.
type Action int

const (
	ActionReset Action = iota + 1
	ActionResetDSP
	ActionGet
	ActionSet
	ActionGetStatus
	ActionStart
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionReset:
		return "reset"
	case ActionResetDSP:
		return "reset-dsp"
	case ActionGet:
		return "get"
	case ActionSet:
		return "set"
	case ActionGetStatus:
		return "get-status"
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// OneShot is a single configuration action. Commands carries the parsed
// get or set commands and is ignored by the other actions.
type OneShot struct {
	Action   Action
	Commands []wire.Command
}

// RunOneShot performs shot and drains faults after every exchange. Get and
// get-status results are written to out. A rejected command returns an
// error wrapping ErrRejected; a fatal drained fault returns a
// *DeviceFaultError.
func RunOneShot(p *Protocol, shot OneShot, out io.Writer) error {
	switch shot.Action {
	case ActionResetDSP:
		if err := p.ResetDSP(); err != nil {
			return err
		}
		return p.DrainFault()

	case ActionReset:
		if err := exchange(p, wire.NewResetFactoryDefaults()); err != nil {
			return err
		}
		p.log.Info("reset to factory settings; next time connect to the default address")
		return nil

	case ActionStart:
		return exchange(p, wire.NewStart())

	case ActionStop:
		return exchange(p, wire.NewStop())

	case ActionGetStatus:
		cmd := wire.NewGetStatus()
		resp, err := p.Write(cmd)
		if err != nil {
			return err
		}
		if !resp.OK() || resp.Status == nil {
			return firstErr(rejected(cmd), p.DrainFault())
		}
		if _, err := fmt.Fprintln(out, resp.Status); err != nil {
			return fmt.Errorf("write status: %w", err)
		}
		return p.DrainFault()

	case ActionGet:
		return runGet(p, shot.Commands, out)

	case ActionSet:
		return runSet(p, shot.Commands)
	}
	return &ValidationError{Input: shot.Action.String(), Reason: "unknown action"}
}

// exchange writes cmd, drains faults and maps a fail reply to ErrRejected.
func exchange(p *Protocol, cmd wire.Command) error {
	resp, err := p.Write(cmd)
	if err != nil {
		return err
	}
	ferr := p.DrainFault()
	if !resp.OK() {
		return firstErr(rejected(cmd), ferr)
	}
	return ferr
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runGet prints the values of successful reads comma-joined on one line and
// stops at the first rejected read.
func runGet(p *Protocol, cmds []wire.Command, out io.Writer) error {
	if len(cmds) == 0 {
		return &ValidationError{Input: "get", Reason: "no parameters"}
	}
	var values []string
	var failure error
	for _, cmd := range cmds {
		resp, err := p.Write(cmd)
		if err != nil {
			failure = err
			break
		}
		if !resp.OK() {
			failure = rejected(cmd)
			p.DrainFault()
			break
		}
		values = append(values, FormatParameter(resp))
		if err := p.DrainFault(); err != nil {
			failure = err
			break
		}
	}
	if len(values) > 0 {
		if _, err := fmt.Fprintln(out, strings.Join(values, ",")); err != nil {
			return fmt.Errorf("write parameters: %w", err)
		}
	}
	return failure
}

// runSet applies each assignment in order and saves the configuration once
// all of them were accepted.
func runSet(p *Protocol, cmds []wire.Command) error {
	if len(cmds) == 0 {
		return &ValidationError{Input: "set", Reason: "no assignments"}
	}
	for _, cmd := range cmds {
		if err := exchange(p, cmd); err != nil {
			p.log.Error("failed to set parameter", zap.Stringer("command", cmd), zap.Error(err))
			return err
		}
	}
	if err := exchange(p, wire.NewSaveConfiguration()); err != nil {
		p.log.Error("failed to save configuration", zap.Error(err))
		return err
	}
	p.log.Info("saved configuration", zap.Int("parameters", len(cmds)))
	return nil
}

// Recorder receives every scan that Stream emits. Errors are logged and do
// not stop streaming.
type Recorder interface {
	RecordScan(*ScanPacket) error
}

// StreamOptions configures Stream.
type StreamOptions struct {
	// Clock drives clock synchronisation; nil means the wall clock.
	Clock             timeutil.Clock
	ClockSyncInterval time.Duration
	// Passive streams frames already flowing, e.g. from a capture, and
	// sends no commands at all.
	Passive bool
	// StopOnExit sends stop when ctx is cancelled.
	StopOnExit bool
	// ProgressEvery logs the measurement number on every n-th scan; zero
	// disables progress logs.
	ProgressEvery int
	Recorder      Recorder
}

// Stream starts measuring and copies every valid scan frame, header and
// payload, to out until ctx is cancelled or the device closes the
// connection; both end with a nil error. Cancellation is checked once per
// scan. The device clock is set on the first iteration and then whenever
// the sync interval has passed.
func Stream(ctx context.Context, p *Protocol, out io.Writer, opts StreamOptions) error {
	if !opts.Passive {
		p.log.Info("starting scanning")
		if err := exchange(p, wire.NewStart()); err != nil {
			return fmt.Errorf("start scanning: %w", err)
		}
		p.log.Info("started scanning")
	}

	sync := NewClockSync(p, opts.Clock, opts.ClockSyncInterval)
	var progress *rate.Sometimes
	if opts.ProgressEvery > 0 {
		progress = &rate.Sometimes{Every: opts.ProgressEvery}
	}

	first := true
	for {
		if ctx.Err() != nil {
			p.log.Info("caught signal")
			return stopOnExit(p, opts)
		}
		if !opts.Passive {
			if err := sync.Sync(false); err != nil {
				return fmt.Errorf("clock sync: %w", err)
			}
		}
		if err := p.DrainFault(); err != nil {
			return err
		}

		res := p.ReadScan()
		switch res.Status {
		case ScanTransientFault:
			continue
		case ScanEndOfStream:
			p.log.Info("end of stream")
			return nil
		case ScanFatal:
			if ctx.Err() != nil {
				// The connection was torn down to interrupt a blocked read.
				p.log.Info("caught signal", zap.NamedError("read", res.Err))
				return nil
			}
			return res.Err
		}

		pkt := res.Packet
		if !pkt.Header.Valid() {
			return &ProtocolError{Op: "stream", Err: fmt.Errorf("%w: invalid scan", wire.ErrFraming)}
		}
		if _, err := out.Write(pkt.Bytes()); err != nil {
			return fmt.Errorf("write scan: %w", err)
		}
		p.metrics.Scan(pkt.Scan.MeasurementNumber, len(pkt.Bytes()))
		if opts.Recorder != nil {
			if err := opts.Recorder.RecordScan(pkt); err != nil {
				p.log.Warn("record scan", zap.Error(err))
			}
		}

		if first {
			p.log.Info("got first scan", zap.Uint16("measurement", pkt.Scan.MeasurementNumber))
			first = false
		}
		if progress != nil {
			progress.Do(func() {
				p.log.Debug("scanning", zap.Uint16("measurement", pkt.Scan.MeasurementNumber), zap.Uint16("points", pkt.Scan.Points))
			})
		}
	}
}

func stopOnExit(p *Protocol, opts StreamOptions) error {
	if !opts.StopOnExit || opts.Passive {
		return nil
	}
	if err := exchange(p, wire.NewStop()); err != nil {
		return fmt.Errorf("stop scanning: %w", err)
	}
	p.log.Info("stopped scanning")
	return nil
}
