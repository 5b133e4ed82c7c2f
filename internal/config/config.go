// Package config loads aitable-mcp settings from an optional YAML or TOML
// file and the environment.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete aitable-mcp configuration.
type Config struct {
	AITable AITableConfig `yaml:"aitable" toml:"aitable"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// AITableConfig holds the remote API settings.
type AITableConfig struct {
	Token   string        `yaml:"token" toml:"token"`
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// ServerConfig holds the HTTP transport settings.
type ServerConfig struct {
	Port           string        `yaml:"port" toml:"port"`
	Token          string        `yaml:"token" toml:"token"`
	SessionTTL     time.Duration `yaml:"-" toml:"-"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	SessionTTLRaw     string `yaml:"session_ttl" toml:"session_ttl"`
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		AITable: AITableConfig{TimeoutRaw: "30s"},
		Server: ServerConfig{
			Port:              "3000",
			SessionTTLRaw:     "30m",
			RequestTimeoutRaw: "60s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load builds a Config from defaults, the file at path (skipped when path is
// empty) and environment overrides, in that order. ${VAR} references in the
// file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := parseDurations(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing durations")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading config file")
	}
	expanded := expandEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return errors.Wrap(err, "parsing config file")
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return errors.Wrap(err, "parsing config file")
		}
	default:
		return errors.Newf("unsupported config file extension %q", filepath.Ext(path))
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or the empty
// string when it is unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.AITable.Token, "AITABLE_API_TOKEN")
	override(&cfg.AITable.BaseURL, "AITABLE_BASE_URL")
	override(&cfg.Server.Token, "MCP_TOKEN")
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Logging.Level, "LOG_LEVEL")
	override(&cfg.Logging.Format, "LOG_FORMAT")
}

// Validate checks that all required configuration fields are present and valid.
func (c *Config) Validate() error {
	if c.AITable.Token == "" {
		return errors.New("aitable.token is required (or set AITABLE_API_TOKEN)")
	}
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return errors.Newf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

func parseDurations(cfg *Config) error {
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"aitable.timeout", cfg.AITable.TimeoutRaw, &cfg.AITable.Timeout},
		{"server.session_ttl", cfg.Server.SessionTTLRaw, &cfg.Server.SessionTTL},
		{"server.request_timeout", cfg.Server.RequestTimeoutRaw, &cfg.Server.RequestTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return errors.Wrapf(err, "parsing %s %q", d.name, d.raw)
		}
		if v <= 0 {
			return errors.Newf("%s must be positive, got %q", d.name, d.raw)
		}
		*d.dst = v
	}
	return nil
}
