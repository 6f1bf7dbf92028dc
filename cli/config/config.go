package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/concierge/log"
	"github.com/pithecene-io/concierge/transport"
)

// Config represents a concierge.yaml configuration file.
// All values are optional; CLI flags always override config values.
type Config struct {
	Backend  BackendConfig `yaml:"backend"`
	Archive  ArchiveConfig `yaml:"archive"`
	Adapter  AdapterConfig `yaml:"adapter"`
	LogLevel string        `yaml:"log_level"`
}

// BackendConfig locates the shopping agent.
type BackendConfig struct {
	BaseURL           string   `yaml:"base_url"`
	Token             string   `yaml:"token"`
	Timeout           Duration `yaml:"timeout"`
	StreamIdleTimeout Duration `yaml:"stream_idle_timeout"`
	// Transport is the preferred stream framing: sse, msgpack or jsonl.
	Transport string `yaml:"transport"`
}

// ArchiveConfig selects where transcripts are archived.
type ArchiveConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Enabled reports whether an archive is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Backend != "" || a.Path != ""
}

// AdapterConfig configures turn-completed notifications.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Mode    string            `yaml:"mode,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values. Missing values are not errors;
// commands decide which settings they require.
func (c *Config) Validate() error {
	var errs []error
	if _, err := transport.ParseFormat(c.Backend.Transport); err != nil {
		errs = append(errs, fmt.Errorf("backend.transport: %w", err))
	}
	switch c.Archive.Backend {
	case "", "fs", "s3", "memory":
	default:
		errs = append(errs, fmt.Errorf("archive.backend: unknown backend %q", c.Archive.Backend))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown adapter %q", c.Adapter.Type))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url: required when adapter.type is set"))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries: must be >= 0, got %d", *c.Adapter.Retries))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}
