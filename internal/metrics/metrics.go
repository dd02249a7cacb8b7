// Package metrics exposes scanner client counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics holds the client's counters. A nil *Metrics is valid and records
// nothing, so library code never has to check.
type Metrics struct {
	Exchanges       *prometheus.CounterVec // labels: command, result=ok|fail|error
	Faults          *prometheus.CounterVec // labels: severity=fatal|transient
	Scans           prometheus.Counter
	ScanBytes       prometheus.Counter
	SkippedFrames   *prometheus.CounterVec // labels: type
	ClockSyncs      prometheus.Counter
	LastMeasurement prometheus.Gauge
}

// New registers and returns the client metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ldmrs_exchanges_total",
			Help: "Command/reply exchanges by command and result.",
		}, []string{"command", "result"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ldmrs_faults_total",
			Help: "Device faults drained, by severity.",
		}, []string{"severity"}),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldmrs_scans_total",
			Help: "Valid scan frames read.",
		}),
		ScanBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldmrs_scan_bytes_total",
			Help: "Bytes of scan frames emitted, headers included.",
		}),
		SkippedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ldmrs_skipped_frames_total",
			Help: "Frames read but not consumed by the current operation, by data type.",
		}, []string{"type"}),
		ClockSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ldmrs_clock_syncs_total",
			Help: "Successful device clock synchronisations.",
		}),
		LastMeasurement: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ldmrs_last_measurement_number",
			Help: "Measurement counter of the most recent scan.",
		}),
	}
	reg.MustRegister(m.Exchanges, m.Faults, m.Scans, m.ScanBytes, m.SkippedFrames, m.ClockSyncs, m.LastMeasurement)
	return m
}

// Exchange records one command exchange.
func (m *Metrics) Exchange(command, result string) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(command, result).Inc()
}

// Fault records one drained fault.
func (m *Metrics) Fault(fatal bool) {
	if m == nil {
		return
	}
	severity := "transient"
	if fatal {
		severity = "fatal"
	}
	m.Faults.WithLabelValues(severity).Inc()
}

// Scan records one emitted scan frame.
func (m *Metrics) Scan(measurement uint16, frameBytes int) {
	if m == nil {
		return
	}
	m.Scans.Inc()
	m.ScanBytes.Add(float64(frameBytes))
	m.LastMeasurement.Set(float64(measurement))
}

// Skipped records a frame discarded while waiting for something else.
func (m *Metrics) Skipped(dataType string) {
	if m == nil {
		return
	}
	m.SkippedFrames.WithLabelValues(dataType).Inc()
}

// ClockSync records one successful clock synchronisation.
func (m *Metrics) ClockSync() {
	if m == nil {
		return
	}
	m.ClockSyncs.Inc()
}
