package ldmrs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/timeutil"
)

func queueSyncReplies(conn interface{ QueueReply(...[]byte) }, n int) {
	for i := 0; i < n; i++ {
		conn.QueueReply(ok(wire.CmdSetNTPSeconds), ok(wire.CmdSetNTPFractions))
	}
}

func TestClockSyncInterval(t *testing.T) {
	start := time.Date(2026, 10, 17, 0, 0, 0, 250_000_000, time.UTC)
	clock := timeutil.NewMockClock(start)
	p, conn := newTestProtocol(t, Options{})
	queueSyncReplies(conn, 3)

	cs := NewClockSync(p, clock, time.Minute)
	require.True(t, cs.Due(), "first sync is always due")
	require.NoError(t, cs.Sync(false))
	assert.Len(t, conn.WrittenFrames(), 2)

	require.NoError(t, cs.Sync(false))
	assert.Len(t, conn.WrittenFrames(), 2, "not due yet")

	clock.Advance(59 * time.Second)
	require.NoError(t, cs.Sync(false))
	assert.Len(t, conn.WrittenFrames(), 2)

	clock.Advance(time.Second)
	require.NoError(t, cs.Sync(false))
	assert.Len(t, conn.WrittenFrames(), 4)

	require.NoError(t, cs.Sync(true))
	assert.Len(t, conn.WrittenFrames(), 6, "forced sync ignores the interval")
}

func TestClockSyncWritesNTPPair(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 250_000_000, time.UTC)
	p, conn := newTestProtocol(t, Options{})
	queueSyncReplies(conn, 1)

	require.NoError(t, NewClockSync(p, timeutil.NewMockClock(now), 0).Sync(false))

	frames := conn.WrittenFrames()
	require.Len(t, frames, 2)
	secs, err := wire.DecodeCommand(frames[0])
	require.NoError(t, err)
	fracs, err := wire.DecodeCommand(frames[1])
	require.NoError(t, err)

	assert.Equal(t, wire.CmdSetNTPSeconds, secs.ID)
	assert.Equal(t, uint32(4001184000), secs.NTPValue())
	assert.Equal(t, wire.CmdSetNTPFractions, fracs.ID)
	assert.Equal(t, uint32(0x40000000), fracs.NTPValue())
}

func TestClockSyncFailures(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	t.Run("rejected seconds", func(t *testing.T) {
		p, conn := newTestProtocol(t, Options{})
		conn.QueueReply(fail(wire.CmdSetNTPSeconds))

		cs := NewClockSync(p, timeutil.NewMockClock(now), time.Minute)
		err := cs.Sync(false)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Len(t, conn.WrittenFrames(), 1, "fractions not sent after a rejected seconds write")
		assert.True(t, cs.Due(), "a failed sync stays due")
	})

	t.Run("fatal fault between writes", func(t *testing.T) {
		p, conn := newTestProtocol(t, Options{})
		conn.QueueReply(concat(wire.EncodeFault(wire.Fault{Error1: 1}), ok(wire.CmdSetNTPSeconds)))

		err := NewClockSync(p, timeutil.NewMockClock(now), time.Minute).Sync(false)
		var de *DeviceFaultError
		assert.ErrorAs(t, err, &de)
		assert.Len(t, conn.WrittenFrames(), 1)
	})

	t.Run("warning does not abort", func(t *testing.T) {
		p, conn := newTestProtocol(t, Options{})
		conn.QueueReply(
			concat(wire.EncodeFault(wire.Fault{Warning1: 1}), ok(wire.CmdSetNTPSeconds)),
			ok(wire.CmdSetNTPFractions),
		)

		require.NoError(t, NewClockSync(p, timeutil.NewMockClock(now), time.Minute).Sync(false))
		assert.Len(t, conn.WrittenFrames(), 2)
	})
}
