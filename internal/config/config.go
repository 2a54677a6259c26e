// Package config loads the terenec YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/terenec/internal/attendance"
	"github.com/erazemk/terenec/internal/geo"
	"github.com/erazemk/terenec/internal/imaging"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "terenec.yaml"

// Config is the full server configuration.
type Config struct {
	Addr       string           `yaml:"addr"`
	DBPath     string           `yaml:"db_path"`
	LogLevel   string           `yaml:"log_level"`
	LogFile    string           `yaml:"log_file"`
	Drafts     DraftsConfig     `yaml:"drafts"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Geofence   GeofenceConfig   `yaml:"geofence"`
	Media      MediaConfig      `yaml:"media"`
}

// DraftsConfig selects the draft backend.
type DraftsConfig struct {
	// Durable keeps drafts in the database instead of memory.
	Durable bool `yaml:"durable"`
}

// AttendanceConfig controls attendance polling.
type AttendanceConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// GeofenceConfig controls arrival detection.
type GeofenceConfig struct {
	RadiusMeters float64 `yaml:"radius_meters"`
}

// MediaConfig controls media uploads.
type MediaConfig struct {
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	MaxDimension   int    `yaml:"max_dimension"`
	Dir            string `yaml:"dir"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		DBPath:   "terenec.db",
		LogLevel: "info",
		Attendance: AttendanceConfig{
			PollInterval: attendance.DefaultInterval,
		},
		Geofence: GeofenceConfig{
			RadiusMeters: geo.DefaultRadius,
		},
		Media: MediaConfig{
			MaxUploadBytes: 50 << 20,
			MaxDimension:   imaging.DefaultMaxDimension,
			Dir:            "media",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Attendance.PollInterval == 0 {
		c.Attendance.PollInterval = d.Attendance.PollInterval
	}
	if c.Geofence.RadiusMeters == 0 {
		c.Geofence.RadiusMeters = d.Geofence.RadiusMeters
	}
	if c.Media.MaxUploadBytes == 0 {
		c.Media.MaxUploadBytes = d.Media.MaxUploadBytes
	}
	if c.Media.MaxDimension == 0 {
		c.Media.MaxDimension = d.Media.MaxDimension
	}
	if c.Media.Dir == "" {
		c.Media.Dir = d.Media.Dir
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if err := validLogLevel(c.LogLevel); err != nil {
		errs = errs.Append("log_level", err)
	}
	if c.Attendance.PollInterval <= 0 {
		errs = errs.Append("attendance.poll_interval", errNotPositive)
	}
	if c.Geofence.RadiusMeters <= 0 {
		errs = errs.Append("geofence.radius_meters", errNotPositive)
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = errs.Append("media.max_upload_bytes", errNotPositive)
	}
	if c.Media.MaxDimension <= 0 {
		errs = errs.Append("media.max_dimension", errNotPositive)
	}
	return errs.ToError()
}

var errNotPositive = errors.New("must be positive")

func validLogLevel(s string) error {
	switch s {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
		return nil
	}
	return fmt.Errorf("unknown level %q", s)
}
