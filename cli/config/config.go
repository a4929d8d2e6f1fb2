package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/xrayview/formatting"
)

// Config represents an xrayview.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags and XRAYVIEW_* environment variables always override config values.
type Config struct {
	Origin          string        `yaml:"origin"`
	ImageFetchLimit ByteSize      `yaml:"image_fetch_limit"`
	Log             LogConfig     `yaml:"log"`
	Archive         ArchiveConfig `yaml:"archive"`
	Notify          NotifyConfig  `yaml:"notify"`
	Journal         JournalConfig `yaml:"journal"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ArchiveConfig holds archive defaults from the config file.
type ArchiveConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	Images      bool   `yaml:"images"`
}

// NotifyConfig holds notifier defaults from the config file.
type NotifyConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
}

// JournalConfig holds journal defaults.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Validate checks enumerated values. Empty values are allowed.
func (c *Config) Validate() error {
	var errs []error
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("archive.backend: unknown backend %q (want fs or s3)", c.Archive.Backend))
	}
	if c.Archive.Backend != "" && c.Archive.Path == "" {
		errs = append(errs, errors.New("archive.path is required when archive.backend is set"))
	}
	switch c.Notify.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("notify.type: unknown type %q (want webhook or redis)", c.Notify.Type))
	}
	if c.Notify.Type != "" && c.Notify.URL == "" {
		errs = append(errs, errors.New("notify.url is required when notify.type is set"))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ByteSize is a byte count written as "32MB", "512KB" or a plain integer.
type ByteSize int64

// UnmarshalYAML parses a human-readable byte size.
func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := formatting.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	*b = ByteSize(n)
	return nil
}
