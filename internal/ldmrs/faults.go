package ldmrs

import (
	"go.uber.org/zap"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
)

// latch records the fault carried by an error/warning frame. A fault that
// arrives while another is still latched is merged into it, so an error bit
// survives until drained.
func (p *Protocol) latch(op string, frame []byte) error {
	f, err := wire.DecodeFaultPayload(frame[wire.HeaderSize:])
	if err != nil {
		return &ProtocolError{Op: op, Err: err}
	}
	if f.Empty() {
		return nil
	}
	if p.fault != nil {
		f = p.fault.Merge(f)
	}
	p.fault = &f
	p.log.Debug("fault latched", zap.String("during", op), zap.Stringer("fault", f))
	return nil
}

// LastFault returns the latched fault, or nil, and clears the latch.
func (p *Protocol) LastFault() *wire.Fault {
	f := p.fault
	p.fault = nil
	return f
}

// DrainFault clears the latch and logs what it held. It returns a
// *DeviceFaultError if the fault was fatal and nil otherwise.
func (p *Protocol) DrainFault() error {
	f := p.LastFault()
	if f == nil {
		return nil
	}
	p.metrics.Fault(f.Fatal())
	if p.opts.OnFault != nil {
		p.opts.OnFault(*f)
	}
	if f.Fatal() {
		p.log.Error("device fault", zap.Stringer("fault", f), zap.Uint64("code", f.Code()))
		return &DeviceFaultError{Fault: *f}
	}
	p.log.Warn("device warning", zap.Stringer("fault", f), zap.Uint64("code", f.Code()))
	return nil
}

// ClearFault drains the latch and reports whether the caller may carry on:
// false means the fault was fatal and the current operation must abort.
// Call it after every exchange so faults do not pile up.
func (p *Protocol) ClearFault() bool {
	return p.DrainFault() == nil
}
