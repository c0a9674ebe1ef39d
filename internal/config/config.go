package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type ServerConfig struct {
	Port string `yaml:"port"`
}

type CompanyConfig struct {
	// IANA timezone the attendance day is keyed on.
	Timezone string `yaml:"timezone"`
	// LateThreshold is the "HH:MM" wall-clock cutoff for on-time check-in.
	LateThreshold string `yaml:"late_threshold"`
}

type BufferConfig struct {
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
	MaxAttempts   int      `yaml:"max_attempts"`
	BackoffStep   Duration `yaml:"backoff_step"`
}

type RetentionConfig struct {
	MaxSampleAge Duration `yaml:"max_sample_age"`
	// PruneSpec is a cron spec for the retention sweep.
	PruneSpec string `yaml:"prune_spec"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Company   CompanyConfig   `yaml:"company"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Retention RetentionConfig `yaml:"retention"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: "5050"},
		Company: CompanyConfig{
			Timezone:      "UTC",
			LateThreshold: "09:15",
		},
		Buffer: BufferConfig{
			BatchSize:     10,
			FlushInterval: Duration(5 * time.Minute),
			MaxAttempts:   5,
			BackoffStep:   Duration(2 * time.Second),
		},
		Retention: RetentionConfig{
			MaxSampleAge: Duration(30 * 24 * time.Hour),
			PruneSpec:    "@daily",
		},
	}
}

// Load builds the config from defaults, then the YAML file at path (if it
// exists), then environment overrides.
//
// Environment variables:
//   - PORT
//   - COMPANY_TIMEZONE
//   - COMPANY_LATE_THRESHOLD ("HH:MM")
//   - BUFFER_BATCH_SIZE
//   - BUFFER_FLUSH_INTERVAL (Go duration, e.g. "5m")
//   - SAMPLE_MAX_AGE (Go duration, e.g. "720h")
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("COMPANY_TIMEZONE"); v != "" {
		cfg.Company.Timezone = v
	}
	if v := os.Getenv("COMPANY_LATE_THRESHOLD"); v != "" {
		cfg.Company.LateThreshold = v
	}
	if v := os.Getenv("BUFFER_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("BUFFER_BATCH_SIZE: %w", err)
		}
		cfg.Buffer.BatchSize = n
	}
	if v := os.Getenv("BUFFER_FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("BUFFER_FLUSH_INTERVAL: %w", err)
		}
		cfg.Buffer.FlushInterval = Duration(d)
	}
	if v := os.Getenv("SAMPLE_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("SAMPLE_MAX_AGE: %w", err)
		}
		cfg.Retention.MaxSampleAge = Duration(d)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Buffer.BatchSize <= 0 {
		return fmt.Errorf("buffer batch_size must be positive, got %d", c.Buffer.BatchSize)
	}
	if c.Buffer.FlushInterval <= 0 {
		return fmt.Errorf("buffer flush_interval must be positive")
	}
	if c.Buffer.MaxAttempts <= 0 {
		return fmt.Errorf("buffer max_attempts must be positive, got %d", c.Buffer.MaxAttempts)
	}
	if _, err := c.Company.Location(); err != nil {
		return err
	}
	if _, _, err := c.Company.LateClock(); err != nil {
		return err
	}
	return nil
}

// Location resolves the company timezone.
func (c CompanyConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("company timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LateClock parses the "HH:MM" late threshold.
func (c CompanyConfig) LateClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.LateThreshold)
	if err != nil {
		return 0, 0, fmt.Errorf("company late_threshold %q: %w", c.LateThreshold, err)
	}
	return t.Hour(), t.Minute(), nil
}
