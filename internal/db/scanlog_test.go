package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ldmrs/internal/ldmrs"
	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/timeutil"
	"github.com/banshee-data/ldmrs/internal/transport"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "scans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// readPackets streams frames through a real Protocol so the recorder sees
// the packets Stream would hand it.
func readPackets(t *testing.T, frames ...[]byte) []*ldmrs.ScanPacket {
	t.Helper()
	conn := transport.NewTestableConn()
	conn.AddReadData(frames...)
	p := ldmrs.New(conn, ldmrs.Options{})

	var out []*ldmrs.ScanPacket
	for {
		res := p.ReadScan()
		if res.Status == ldmrs.ScanEndOfStream {
			return out
		}
		require.Equal(t, ldmrs.ScanOK, res.Status, "err: %v", res.Err)
		pkt := *res.Packet
		out = append(out, &pkt)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestRunRecordsScansAndFaults(t *testing.T) {
	db := setupTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))

	run, err := db.StartRun("192.168.0.1:12002", "stream", clock)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	header := wire.ScanHeader{
		StartTime: wire.NTPStamp{Seconds: 4001216400, Fractions: 1},
		EndTime:   wire.NTPStamp{Seconds: 4001216400, Fractions: 2},
	}
	var frames [][]byte
	for _, n := range []uint16{7, 8, 9} {
		header.MeasurementNumber = n
		frames = append(frames, wire.EncodeScan(header, make([]wire.ScanPoint, int(n))))
	}
	for _, pkt := range readPackets(t, frames...) {
		clock.Advance(80 * time.Millisecond)
		require.NoError(t, run.RecordScan(pkt))
	}
	require.NoError(t, run.RecordFault(wire.Fault{Warning1: 0x0001}))
	require.NoError(t, run.RecordFault(wire.Fault{Error1: 0x0002}))
	require.NoError(t, run.Finish(errors.New("device fault")))

	got, err := db.MeasurementNumbers(run.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint16{7, 8, 9}, got)

	var start int64
	require.NoError(t, db.QueryRow(`SELECT start_ntp FROM scans WHERE measurement_number = 7`).Scan(&start))
	assert.Equal(t, uint64(4001216400)<<32|1, uint64(start))

	var fatal int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM faults WHERE fatal = 1`).Scan(&fatal))
	assert.Equal(t, 1, fatal)

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunSummary{
		ID:            run.ID,
		DeviceAddress: "192.168.0.1:12002",
		Mode:          "stream",
		StartedUnixNs: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC).UnixNano(),
		Finished:      true,
		ExitError:     "device fault",
		Scans:         3,
		Faults:        2,
	}, runs[0])
}

func TestRunsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	clock := timeutil.NewMockClock(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))

	first, err := db.StartRun("a:1", "stream", clock)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := db.StartRun("b:2", "replay", clock)
	require.NoError(t, err)
	require.NoError(t, second.Finish(nil))

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.True(t, runs[0].Finished)
	assert.Empty(t, runs[0].ExitError)
	assert.Equal(t, first.ID, runs[1].ID)
	assert.False(t, runs[1].Finished)
}
