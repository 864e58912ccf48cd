package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Engine  EngineConfig  `yaml:"engine" envconfig:"ENGINE"`
	DNS     DNSConfig     `yaml:"dns" envconfig:"DNS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"9000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"console"`
}

// EngineConfig contains task engine configuration
type EngineConfig struct {
	// Number of workers executing tasks. Each running task occupies one
	// worker for its whole lifetime.
	Workers int `yaml:"workers" envconfig:"WORKERS" default:"8"`

	// Maximum number of admitted-but-unfinished tasks. Submissions beyond
	// this are rejected with a queue saturated error.
	QueueDepth int `yaml:"queue_depth" envconfig:"QUEUE_DEPTH" default:"32"`

	// Retry policy used by step executors that wait on external systems.
	Retry RetryConfig `yaml:"retry" envconfig:"RETRY"`

	// Upper bound on how long a single step group may run.
	GroupTimeout time.Duration `yaml:"group_timeout" envconfig:"GROUP_TIMEOUT" default:"30m"`
}

// RetryConfig defines bounded exponential backoff for executors
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" default:"5"`
	InitialDelay time.Duration `yaml:"initial_delay" envconfig:"INITIAL_DELAY" default:"500ms"`
	MaxDelay     time.Duration `yaml:"max_delay" envconfig:"MAX_DELAY" default:"30s"`
	Multiplier   float64       `yaml:"multiplier" envconfig:"MULTIPLIER" default:"2.0"`
}

// DNSConfig contains settings for the DNS collaborator
type DNSConfig struct {
	Zone    string        `yaml:"zone" envconfig:"ZONE" default:"universe.local"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" default:"10s"`
}

// Load loads configuration from environment variables and an optional
// YAML file pointed to by UNIVERSED_CONFIG_FILE.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("UNIVERSED", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path := os.Getenv("UNIVERSED_CONFIG_FILE"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile overlays configuration from a YAML file
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate checks configuration values
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine workers must be positive, got %d", c.Engine.Workers)
	}
	if c.Engine.QueueDepth < c.Engine.Workers {
		return fmt.Errorf("engine queue depth %d must be at least the worker count %d",
			c.Engine.QueueDepth, c.Engine.Workers)
	}
	if c.Engine.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be positive, got %d", c.Engine.Retry.MaxAttempts)
	}
	if c.Engine.Retry.Multiplier < 1.0 {
		return fmt.Errorf("retry multiplier must be >= 1.0, got %f", c.Engine.Retry.Multiplier)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}
