// Package config provides configuration structs and utilities for the chainrules application.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the root configuration for the chainrules application.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Integrity  IntegrityConfig  `yaml:"integrity"`
	Watcher    WatcherConfig    `yaml:"watcher"`
}

// DatabaseConfig holds configuration for the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"` // empty means ~/.chainrules/chainrules.db
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// ReconcilerConfig holds configuration for temporary-ID state reconciliation.
type ReconcilerConfig struct {
	StateTTL      time.Duration `yaml:"state_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// IntegrityConfig holds configuration for background integrity scans.
type IntegrityConfig struct {
	ScanOnStartup bool `yaml:"scan_on_startup"`
	AutoFix       bool `yaml:"auto_fix"` // apply safe fixes automatically after a scan
}

// WatcherConfig holds configuration for watching the database file for
// external modification.
type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Default configuration values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "chainrules"

	DefaultStateTTL      = 10 * time.Minute
	DefaultSweepInterval = 1 * time.Minute

	DefaultScanOnStartup = true
	DefaultAutoFix       = false

	DefaultWatcherEnabled  = false
	DefaultWatcherDebounce = 500 * time.Millisecond
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Tracing: TracingConfig{
			Enabled:      DefaultTracingEnabled,
			ExporterType: DefaultTracingExporterType,
			SampleRate:   DefaultTracingSampleRate,
			ServiceName:  DefaultTracingServiceName,
		},
		Reconciler: ReconcilerConfig{
			StateTTL:      DefaultStateTTL,
			SweepInterval: DefaultSweepInterval,
		},
		Integrity: IntegrityConfig{
			ScanOnStartup: DefaultScanOnStartup,
			AutoFix:       DefaultAutoFix,
		},
		Watcher: WatcherConfig{
			Enabled:  DefaultWatcherEnabled,
			Debounce: DefaultWatcherDebounce,
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	if err := c.Reconciler.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("reconciler: %w", err))
	}

	if err := c.Watcher.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("watcher: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ReconcilerConfig is valid.
func (r *ReconcilerConfig) Validate() error {
	var errs []error

	if r.StateTTL <= 0 {
		errs = append(errs, errors.New("state_ttl must be positive"))
	}
	if r.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the WatcherConfig is valid.
func (w *WatcherConfig) Validate() error {
	if w.Enabled && w.Debounce <= 0 {
		return errors.New("debounce must be positive when watcher is enabled")
	}
	return nil
}
