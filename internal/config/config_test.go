package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "192.168.0.1:12002", cfg.Device.Address)
	assert.Equal(t, 2*time.Second, cfg.Device.CommandTimeout)
	assert.Equal(t, 5*time.Second, cfg.Device.ScanTimeout)
	assert.Equal(t, 60*time.Second, cfg.Stream.ClockSyncInterval)
	assert.Equal(t, 10, cfg.Stream.ProgressEvery)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Empty(t, cfg.Recorder.Path)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ldmrs.yaml")
	content := `
device:
  address: 10.0.0.7:12002
  scanTimeout: 750ms
stream:
  clockSyncInterval: 30s
  stopOnExit: true
logging:
  level: debug
  format: json
recorder:
  path: scans.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7:12002", cfg.Device.Address)
	assert.Equal(t, 750*time.Millisecond, cfg.Device.ScanTimeout)
	assert.Equal(t, 2*time.Second, cfg.Device.CommandTimeout, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Stream.ClockSyncInterval)
	assert.True(t, cfg.Stream.StopOnExit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "scans.db", cfg.Recorder.Path)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LDMRS_DEVICE_ADDRESS", "172.16.1.2:2112")
	t.Setenv("LDMRS_METRICS_LISTEN", ":9102")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "172.16.1.2:2112", cfg.Device.Address)
	assert.Equal(t, ":9102", cfg.Metrics.Listen)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"address without port", func(c *Config) { c.Device.Address = "192.168.0.1" }},
		{"port zero", func(c *Config) { c.Device.Address = "192.168.0.1:0" }},
		{"zero command timeout", func(c *Config) { c.Device.CommandTimeout = 0 }},
		{"negative scan timeout", func(c *Config) { c.Device.ScanTimeout = -time.Second }},
		{"zero sync interval", func(c *Config) { c.Stream.ClockSyncInterval = 0 }},
		{"negative progress", func(c *Config) { c.Stream.ProgressEvery = -1 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad metrics path", func(c *Config) { c.Metrics.Listen = ":9100"; c.Metrics.Path = "metrics" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
