package tftp

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the highest port the server refuses; ports must be above it.
	MinPort = 1024
	MaxPort = 65535

	DefaultTimeout = 10 * time.Second
)

var ErrInvalidPort = errors.New("tftp: invalid port")

// Config holds the tftpd configuration.
type Config struct {
	Port            int           `yaml:"port"`
	Root            string        `yaml:"root"`
	Timeout         time.Duration `yaml:"timeout"`
	ContinueOnError bool          `yaml:"continue_on_error"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

func DefaultConfig() *Config {
	return &Config{
		Root:      ".",
		Timeout:   DefaultTimeout,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig reads the configuration from the given YAML file path on top
// of DefaultConfig. An empty path or a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// ValidatePort accepts ports in (MinPort, MaxPort].
func ValidatePort(port int) error {
	if port <= MinPort || port > MaxPort {
		return fmt.Errorf("%w: %d not in (%d, %d]", ErrInvalidPort, port, MinPort, MaxPort)
	}
	return nil
}

// ParsePort parses and validates a port argument.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	if err := ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}

func (c *Config) Validate() error {
	if err := ValidatePort(c.Port); err != nil {
		return err
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %q", c.LogFormat)
	}

	return nil
}

// Addr returns the IPv4 wildcard listen address for c.Port.
func (c *Config) Addr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.Port))
}

// ConfigureLogging applies the log level and format of c to the standard
// logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch c.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
