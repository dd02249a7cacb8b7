// Package config loads ldmrs-stream settings from an optional YAML/JSON file
// and LDMRS_* environment variables on top of built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LDMRS_DEVICE_ADDRESS.
const EnvPrefix = "LDMRS"

// DeviceConfig describes how to reach the scanner and how long to wait for it.
type DeviceConfig struct {
	Address        string        `mapstructure:"address"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	CommandTimeout time.Duration `mapstructure:"commandTimeout"`
	ScanTimeout    time.Duration `mapstructure:"scanTimeout"`
}

// StreamConfig tunes the streaming loop.
type StreamConfig struct {
	ClockSyncInterval time.Duration `mapstructure:"clockSyncInterval"`
	StopOnExit        bool          `mapstructure:"stopOnExit"`
	ProgressEvery     int           `mapstructure:"progressEvery"`
}

// LumberjackConfig configures rotating file output.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig selects log level, encoding and optional file output.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"` // console or json
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// RecorderConfig enables the SQLite scan log when Path is set.
type RecorderConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the root configuration.
type Config struct {
	Device   DeviceConfig   `mapstructure:"device"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Recorder RecorderConfig `mapstructure:"recorder"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.address", "192.168.0.1:12002")
	v.SetDefault("device.connectTimeout", "5s")
	v.SetDefault("device.commandTimeout", "2s")
	v.SetDefault("device.scanTimeout", "5s")

	v.SetDefault("stream.clockSyncInterval", "60s")
	v.SetDefault("stream.stopOnExit", false)
	v.SetDefault("stream.progressEvery", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 5)
	v.SetDefault("logging.file.maxAge", 14)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("recorder.path", "")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults alone always decode.
		panic(err)
	}
	return cfg
}

// Load reads path (YAML, JSON or TOML by extension) if given, applies
// LDMRS_* environment overrides and validates the result. An empty path
// means defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	host, port, err := net.SplitHostPort(c.Device.Address)
	if err != nil || host == "" {
		return fmt.Errorf("device.address must be <address>:<port>, got %q", c.Device.Address)
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return fmt.Errorf("device.address has invalid port %q", port)
	}

	for name, d := range map[string]time.Duration{
		"device.connectTimeout": c.Device.ConnectTimeout,
		"device.commandTimeout": c.Device.CommandTimeout,
		"device.scanTimeout":    c.Device.ScanTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Stream.ClockSyncInterval <= 0 {
		return fmt.Errorf("stream.clockSyncInterval must be positive, got %v", c.Stream.ClockSyncInterval)
	}
	if c.Stream.ProgressEvery < 0 {
		return fmt.Errorf("stream.progressEvery must be non-negative, got %d", c.Stream.ProgressEvery)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Listen != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}
