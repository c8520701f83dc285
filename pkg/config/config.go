// Package config loads and validates the hostpulse configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values, applied before any file is read.
const (
	DefaultAddress         = "localhost:4500"
	DefaultTokenTTL        = time.Minute
	DefaultWorkerGrace     = 5 * time.Second
	DefaultSweepInterval   = time.Second
	DefaultPublishInterval = time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultMaxConnections  = 20
)

// Config holds the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Workers WorkersConfig `yaml:"workers"`
	Stream  StreamConfig  `yaml:"stream"`
	Pool    PoolConfig    `yaml:"pool"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP listener and local state directory.
type ServerConfig struct {
	// Address is the listen address, host:port.
	Address string `yaml:"address"`

	// DataDir is the directory for the credential store. Defaults to
	// ~/.hostpulse.
	DataDir string `yaml:"data_dir"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// WorkersConfig configures the session registry.
type WorkersConfig struct {
	// Grace is how long an unclaimed worker survives before the sweeper
	// destroys it.
	Grace time.Duration `yaml:"grace"`

	// SweepInterval is how often the sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StreamConfig configures the websocket publisher.
type StreamConfig struct {
	// PublishInterval is the delay between snapshot pushes.
	PublishInterval time.Duration `yaml:"publish_interval"`

	// WriteTimeout bounds each websocket write. A consumer slower than
	// this is treated as gone and its worker is released.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxConnections caps concurrent streaming connections.
	MaxConnections int `yaml:"max_connections"`
}

// PoolConfig configures the blocking-call offload pool.
type PoolConfig struct {
	// Workers is the pool size. Zero means min(2*GOMAXPROCS, 16).
	Workers int `yaml:"workers"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Server: ServerConfig{
			Address: DefaultAddress,
			DataDir: filepath.Join(home, ".hostpulse"),
		},
		Auth: AuthConfig{
			TokenTTL: DefaultTokenTTL,
		},
		Workers: WorkersConfig{
			Grace:         DefaultWorkerGrace,
			SweepInterval: DefaultSweepInterval,
		},
		Stream: StreamConfig{
			PublishInterval: DefaultPublishInterval,
			WriteTimeout:    DefaultWriteTimeout,
			MaxConnections:  DefaultMaxConnections,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's -config flag
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Workers.Grace <= 0 {
		return fmt.Errorf("workers.grace must be positive")
	}
	if c.Workers.SweepInterval <= 0 {
		return fmt.Errorf("workers.sweep_interval must be positive")
	}
	if c.Stream.PublishInterval <= 0 {
		return fmt.Errorf("stream.publish_interval must be positive")
	}
	if c.Stream.MaxConnections <= 0 {
		return fmt.Errorf("stream.max_connections must be positive")
	}
	if c.Pool.Workers < 0 {
		return fmt.Errorf("pool.workers must not be negative")
	}
	return nil
}
