// ABOUTME: Configuration loading and parsing for sigv4gate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sigv4gate configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gate     GateConfig     `yaml:"gate"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds listener and TLS configuration
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	HandshakeTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	HandshakeTimeoutRaw string `yaml:"handshake_timeout"`
}

// GateConfig holds the authentication gate configuration
type GateConfig struct {
	Region         string `yaml:"region"`
	Service        string `yaml:"service"`
	Partition      string `yaml:"partition"`
	ErrorNamespace string `yaml:"error_namespace"`

	AllowedMethods        []string `yaml:"allowed_methods"`
	AllowedContentTypes   []string `yaml:"allowed_content_types"`
	RequiredSignedHeaders []string `yaml:"required_signed_headers"`

	AllowUnsignedPayload bool `yaml:"allow_unsigned_payload"`

	ClockSkew time.Duration `yaml:"-"`

	ClockSkewRaw string `yaml:"clock_skew"`
}

// DatabaseConfig holds credential database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
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

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in the optional fields that have sensible defaults.
func (c *Config) applyDefaults() {
	if c.Gate.Partition == "" {
		c.Gate.Partition = "aws"
	}
	if c.Gate.ErrorNamespace == "" {
		c.Gate.ErrorNamespace = "https://sts.amazonaws.com/doc/2011-06-15/"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// TLS material is all-or-nothing: a cert without a key (or vice versa)
	// is a deployment mistake, not a plaintext deployment.
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}

	if c.Gate.Region == "" {
		return fmt.Errorf("gate.region is required")
	}
	if c.Gate.Service == "" {
		return fmt.Errorf("gate.service is required")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.HandshakeTimeoutRaw != "" {
		cfg.Server.HandshakeTimeout, err = time.ParseDuration(cfg.Server.HandshakeTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing handshake_timeout %q: %w", cfg.Server.HandshakeTimeoutRaw, err)
		}
	}

	if cfg.Gate.ClockSkewRaw != "" {
		cfg.Gate.ClockSkew, err = time.ParseDuration(cfg.Gate.ClockSkewRaw)
		if err != nil {
			return fmt.Errorf("parsing clock_skew %q: %w", cfg.Gate.ClockSkewRaw, err)
		}
	}

	return nil
}
