// ABOUTME: Configuration loading and parsing for docs-copilot
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a section leaves a value unset.
const (
	DefaultAgentTimeout = 60 * time.Second
	DefaultResetTimeout = 5 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultHostname     = "docs-copilot"
)

// Config represents the complete docs-copilot configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Reset     ResetConfig     `yaml:"reset" toml:"reset"`
	Widget    WidgetConfig    `yaml:"widget" toml:"widget"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel, implies HTTPS on :443
}

// AgentConfig points at the remote agent runtime
type AgentConfig struct {
	Endpoint string        `yaml:"endpoint" toml:"endpoint"`
	APIKey   string        `yaml:"api_key" toml:"api_key"`
	Timeout  time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// ResetConfig configures the optional remote thread invalidation endpoint.
// An empty URL disables remote invalidation.
type ResetConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// WidgetConfig is passed through to the popup widget unchanged
type WidgetConfig struct {
	DefaultOpen bool         `yaml:"default_open" toml:"default_open" json:"default_open"`
	Labels      WidgetLabels `yaml:"labels" toml:"labels" json:"labels"`
}

// WidgetLabels are the user-facing strings of the widget
type WidgetLabels struct {
	Title       string `yaml:"title" toml:"title" json:"title,omitempty"`
	Placeholder string `yaml:"placeholder" toml:"placeholder" json:"placeholder,omitempty"`
	Initial     string `yaml:"initial" toml:"initial" json:"initial,omitempty"`
}

// DatabaseConfig holds transcript archive configuration. An empty path
// disables the archive.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	// The agent endpoint and key are opaque; only presence is checked.
	if c.Agent.Endpoint == "" {
		return fmt.Errorf("agent.endpoint is required")
	}
	if c.Agent.APIKey == "" {
		return fmt.Errorf("agent.api_key is required")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Agent.Timeout == 0 {
		c.Agent.Timeout = DefaultAgentTimeout
	}
	if c.Reset.Timeout == 0 {
		c.Reset.Timeout = DefaultResetTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = DefaultHostname
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.TimeoutRaw != "" {
		cfg.Agent.Timeout, err = time.ParseDuration(cfg.Agent.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agent.timeout %q: %w", cfg.Agent.TimeoutRaw, err)
		}
	}

	if cfg.Reset.TimeoutRaw != "" {
		cfg.Reset.Timeout, err = time.ParseDuration(cfg.Reset.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing reset.timeout %q: %w", cfg.Reset.TimeoutRaw, err)
		}
	}

	return nil
}
