package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/ldmrs/internal/ldmrs"
	"github.com/banshee-data/ldmrs/internal/ldmrs/wire"
	"github.com/banshee-data/ldmrs/internal/timeutil"
)

// Run records one streaming session. It implements ldmrs.Recorder.
type Run struct {
	db    *DB
	ID    string
	clock timeutil.Clock
}

// RunSummary is one row of the runs table with its scan and fault counts.
type RunSummary struct {
	ID            string
	DeviceAddress string
	Mode          string
	StartedUnixNs int64
	Finished      bool
	ExitError     string
	Scans         int
	Faults        int
}

// StartRun inserts a new run and returns its recorder. A nil clock means the
// wall clock.
func (db *DB) StartRun(address, mode string, clock timeutil.Clock) (*Run, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r := &Run{db: db, ID: uuid.NewString(), clock: clock}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, device_address, mode, started_unix_ns) VALUES (?, ?, ?, ?)`,
		r.ID, address, mode, clock.Now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return r, nil
}

// ntpColumn packs a stamp the way it travels in the scan header. Values
// past 2^63 come back negative from SQLite; read them with uint64().
func ntpColumn(t wire.NTPStamp) int64 {
	return int64(uint64(t.Seconds)<<32 | uint64(t.Fractions))
}

// RecordScan stores the header fields of one emitted scan.
func (r *Run) RecordScan(pkt *ldmrs.ScanPacket) error {
	s := pkt.Scan
	_, err := r.db.Exec(
		`INSERT INTO scans (
			run_id, measurement_number, scanner_status, start_ntp, end_ntp,
			points, frame_bytes, received_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, s.MeasurementNumber, s.ScannerStatus, ntpColumn(s.StartTime), ntpColumn(s.EndTime),
		s.Points, len(pkt.Bytes()), r.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scan %d: %w", s.MeasurementNumber, err)
	}
	return nil
}

// RecordFault stores one drained fault.
func (r *Run) RecordFault(f wire.Fault) error {
	_, err := r.db.Exec(
		`INSERT INTO faults (
			run_id, error1, error2, warning1, warning2, fatal, received_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, f.Error1, f.Error2, f.Warning1, f.Warning2, f.Fatal(), r.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fault: %w", err)
	}
	return nil
}

// Finish marks the run complete, keeping runErr's message if there was one.
func (r *Run) Finish(runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := r.db.Exec(
		`UPDATE runs SET finished_unix_ns = ?, exit_error = ? WHERE run_id = ?`,
		r.clock.Now().UnixNano(), msg, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (db *DB) Runs() ([]RunSummary, error) {
	rows, err := db.Query(`
		SELECT r.run_id, r.device_address, r.mode, r.started_unix_ns,
		       r.finished_unix_ns IS NOT NULL, COALESCE(r.exit_error, ''),
		       (SELECT COUNT(*) FROM scans s WHERE s.run_id = r.run_id),
		       (SELECT COUNT(*) FROM faults f WHERE f.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_unix_ns DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.DeviceAddress, &s.Mode, &s.StartedUnixNs,
			&s.Finished, &s.ExitError, &s.Scans, &s.Faults); err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// MeasurementNumbers returns the measurement numbers recorded for runID in
// arrival order.
func (db *DB) MeasurementNumbers(runID string) ([]uint16, error) {
	rows, err := db.Query(
		`SELECT measurement_number FROM scans WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uint16
	for rows.Next() {
		var n uint16
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
