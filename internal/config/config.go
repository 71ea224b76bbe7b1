package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v3"
)

const (
	DefaultPath = "/etc/picodisks/config.yaml"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the runtime configuration
type Config struct {
	Bind         string
	Port         int
	PollInterval time.Duration
	LogLevel     zerolog.Level
	LogFormat    string
	Metrics      bool
	Source       string
}

type rawConfig struct {
	HTTP struct {
		Bind string `yaml:"bind"`
		Port int    `yaml:"port"`
	} `yaml:"http"`
	Watch struct {
		Interval string `yaml:"interval"`
	} `yaml:"watch"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Bind:         "0.0.0.0",
		Port:         8080,
		PollInterval: time.Second,
		LogLevel:     zerolog.InfoLevel,
		LogFormat:    FormatConsole,
		Metrics:      true,
	}
}

// Addr is the listen address
func (c Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Load applies the YAML file at path and then PICODISKS_* environment
// variables on top of the defaults. An empty path reads DefaultPath when it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Defaults()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultPath
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.applyYAML(b); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
		cfg.Source = path
	case explicit || !os.IsNotExist(err):
		return cfg, errors.Wrap(err, "read config")
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyYAML(b []byte) error {
	var raw rawConfig
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.HTTP.Bind != "" {
		c.Bind = raw.HTTP.Bind
	}
	if raw.HTTP.Port != 0 {
		c.Port = raw.HTTP.Port
	}
	if raw.Watch.Interval != "" {
		d, err := time.ParseDuration(raw.Watch.Interval)
		if err != nil {
			return errors.Wrap(err, "watch.interval")
		}
		c.PollInterval = d
	}
	if raw.Logging.Level != "" {
		l, err := zerolog.ParseLevel(raw.Logging.Level)
		if err != nil {
			return errors.Wrap(err, "logging.level")
		}
		c.LogLevel = l
	}
	if raw.Logging.Format != "" {
		c.LogFormat = raw.Logging.Format
	}
	if raw.Metrics.Enabled != nil {
		c.Metrics = *raw.Metrics.Enabled
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PICODISKS_BIND"); v != "" {
		c.Bind = v
	}
	if v := os.Getenv("PICODISKS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "PICODISKS_PORT")
		}
		c.Port = p
	}
	if v := os.Getenv("PICODISKS_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "PICODISKS_POLL_INTERVAL")
		}
		c.PollInterval = d
	}
	if v := os.Getenv("PICODISKS_LOG_LEVEL"); v != "" {
		l, err := zerolog.ParseLevel(v)
		if err != nil {
			return errors.Wrap(err, "PICODISKS_LOG_LEVEL")
		}
		c.LogLevel = l
	}
	if v := os.Getenv("PICODISKS_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("PICODISKS_METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "PICODISKS_METRICS")
		}
		c.Metrics = b
	}
	return nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.PollInterval <= 0 {
		return errors.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.LogFormat != FormatConsole && c.LogFormat != FormatJSON {
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
