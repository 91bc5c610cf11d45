package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/matrix-org/peercall/pkg/media"
	"github.com/matrix-org/peercall/pkg/relay"
	"github.com/matrix-org/peercall/pkg/session"
	"github.com/matrix-org/peercall/pkg/signaling"
	"github.com/matrix-org/peercall/pkg/telemetry"
	"github.com/matrix-org/peercall/pkg/webrtc_ext"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Configuration of both binaries. The client uses everything but `Server`,
// the relay uses `Server` and `LogLevel`.
type Config struct {
	// Relay connection.
	Relay signaling.Config `yaml:"relay"`
	// The relay server itself.
	Server relay.Config `yaml:"server"`
	// Session controller configuration.
	Session session.Config `yaml:"session"`
	// WebRTC configuration (ICE servers etc).
	WebRTC webrtc_ext.Config `yaml:"webrtc"`
	// Local media and recording.
	Media media.Config `yaml:"media"`
	// Telemetry configuration.
	Telemetry telemetry.Config `yaml:"telemetry"`
	// Starting from which level to log stuff.
	LogLevel string `yaml:"log"`
}

var (
	// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
	ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")
	ErrInvalidConfig  = errors.New("invalid config values")
)

// Tries to load a client config from the `CONFIG` environment variable.
// If the environment variable is not set, tries to load a config from the
// provided path to the config file (YAML). Returns an error if the config could
// not be loaded. A `.env` file in the working directory is loaded first, if present.
func LoadConfig(path string) (*Config, error) {
	return load(path, LoadConfigFromString)
}

// Same as `LoadConfig`, but for the relay server, which needs no relay URL.
func LoadServerConfig(path string) (*Config, error) {
	return load(path, LoadServerConfigFromString)
}

func load(path string, fromString func(string) (*Config, error)) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	configEnv := os.Getenv("CONFIG")
	if configEnv != "" {
		return fromString(configEnv)
	}

	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return fromString(string(file))
}

// Tries to load the client config from environment variable (`CONFIG`).
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// Tries to load a client config from the provided path.
func LoadConfigFromPath(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// Load the client config from the provided string.
// Returns an error if the string is not a valid YAML or the values don't make sense.
func LoadConfigFromString(configString string) (*Config, error) {
	config, err := parse(configString)
	if err != nil {
		return nil, err
	}

	if config.Relay.URL == "" {
		return nil, fmt.Errorf("%w: relay URL is missing", ErrInvalidConfig)
	}

	return config, nil
}

// Load the relay server config from the provided string.
func LoadServerConfigFromString(configString string) (*Config, error) {
	config, err := parse(configString)
	if err != nil {
		return nil, err
	}

	if config.Server.PingInterval < 0 || config.Server.PongTimeout < 0 ||
		config.Server.QueueSize < 0 || config.Server.MaxMessageSize < 0 {
		return nil, fmt.Errorf("%w: server intervals and sizes must not be negative", ErrInvalidConfig)
	}

	return config, nil
}

func parse(configString string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(configString), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	if config.Relay.PingInterval < 0 || config.Relay.PongTimeout < 0 || config.Relay.QueueSize < 0 {
		return nil, fmt.Errorf("%w: relay intervals and sizes must not be negative", ErrInvalidConfig)
	}

	sessionConfig, err := config.Session.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	config.Session = sessionConfig

	if _, err := logrus.ParseLevel(config.logLevel()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// Log level to use, `info` if not configured.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.logLevel())
	if err != nil {
		return logrus.InfoLevel
	}

	return level
}

func (c *Config) logLevel() string {
	if c.LogLevel == "" {
		return "info"
	}

	return c.LogLevel
}
