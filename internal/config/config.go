// Package config defines the client configuration file and its parsing.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up under the user config directory when no
// explicit path is given.
const DefaultFileName = "mediactl.yaml"

// Config is the client configuration.
type Config struct {
	// Host is the target machine (hostname or address). Required unless
	// given on the command line.
	Host string `yaml:"host"`

	// Port is the SSH port (default 22).
	Port int `yaml:"port"`

	// User is the login name.
	User string `yaml:"user"`

	// Password is the login password. Leaving it empty prompts at the
	// terminal, which is the recommended setup.
	Password string `yaml:"password"`

	// PoolSize is the shared application channel count (default 1).
	PoolSize int `yaml:"pool_size"`

	// CommandTimeout bounds each command round trip.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// ConnectTimeout bounds connection establishment end to end.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// HeartbeatInterval is the liveness probe period. Negative disables the
	// heartbeat.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Interpreter overrides the remote scripting interpreter.
	Interpreter string `yaml:"interpreter"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port: 22,
	}
}

// Load reads a configuration file. An empty path falls back to
// DefaultFileName under the user config directory; a missing default file is
// not an error and yields the built-in configuration.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Default(), nil
		}
		path = filepath.Join(dir, "mediactl", DefaultFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses configuration from YAML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must not be negative")
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must not be negative")
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative")
	}
	return nil
}
