package ldmrs

import (
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/timeutil"
)

// DefaultClockSyncInterval is how often a streaming device clock is reset.
const DefaultClockSyncInterval = 60 * time.Second

// ClockSync keeps the scanner's clock aligned with the host by writing the
// host time as an NTP seconds/fractions pair. The first Sync always runs.
type ClockSync struct {
	p        *Protocol
	clock    timeutil.Clock
	interval time.Duration

	last   time.Time
	synced bool
}

// NewClockSync returns a scheduler for p. A nil clock means the wall clock
// and a non-positive interval means DefaultClockSyncInterval.
func NewClockSync(p *Protocol, clock timeutil.Clock, interval time.Duration) *ClockSync {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultClockSyncInterval
	}
	return &ClockSync{p: p, clock: clock, interval: interval}
}

// Due reports whether the device clock has never been set or was last set
// at least one interval ago.
func (c *ClockSync) Due() bool {
	return !c.synced || c.clock.Since(c.last) >= c.interval
}

// Sync writes the host time to the device if forced or due. Faults are
// drained before each write and after the last one; a fatal fault or a
// rejected command aborts the sync with an error.
func (c *ClockSync) Sync(force bool) error {
	if !force && !c.Due() {
		return nil
	}

	now := c.clock.Now()
	seconds, fractions := timeutil.NTPTime(now)
	for _, cmd := range []wire.Command{
		wire.NewSetNTPSeconds(seconds),
		wire.NewSetNTPFractions(fractions),
	} {
		if err := c.p.DrainFault(); err != nil {
			return err
		}
		resp, err := c.p.Write(cmd)
		if err != nil {
			return err
		}
		if !resp.OK() {
			return rejected(cmd)
		}
	}
	if err := c.p.DrainFault(); err != nil {
		return err
	}

	c.last = now
	c.synced = true
	c.p.metrics.ClockSync()
	c.p.log.Debug("device clock set", zap.Time("host_time", now), zap.Uint32("ntp_seconds", seconds), zap.Uint32("ntp_fractions", fractions))
	return nil
}
