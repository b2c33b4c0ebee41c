// Package config provides configuration helpers for go-asl commands.
//
// Settings come from, in increasing precedence: defaults, an optional YAML
// file, environment variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-asl/pkg/motion"
)

// Default server configuration.
const (
	DefaultPort     = "8090"
	DefaultTickRate = 30.0
	DefaultLogLevel = "info"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds everything cmd/asl needs to start.
type Config struct {
	// Port is the HTTP/websocket listen port.
	Port string `yaml:"port"`

	// TickRate is the animation loop frequency in Hz.
	TickRate float64 `yaml:"tick_rate"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Debug enables debug logging regardless of LogLevel.
	Debug bool `yaml:"debug"`

	// RejectWhilePlaying makes play requests fail while a clip runs,
	// instead of restarting with the newest clip.
	RejectWhilePlaying bool `yaml:"reject_while_playing"`

	// Procedural tunes breathing and head motion.
	Procedural motion.ProceduralParams `yaml:"procedural"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:       DefaultPort,
		TickRate:   DefaultTickRate,
		LogLevel:   DefaultLogLevel,
		Procedural: motion.DefaultProceduralParams(),
	}
}

// Load builds a Config from defaults, the YAML file at path (if path is not
// empty), and environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FilePath returns the config file named by ASL_CONFIG, or "".
func FilePath() string {
	return os.Getenv("ASL_CONFIG")
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("ASL_PORT"); port != "" {
		c.Port = port
	}
	if level := os.Getenv("ASL_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if hz := os.Getenv("ASL_TICK_HZ"); hz != "" {
		v, err := strconv.ParseFloat(hz, 64)
		if err != nil {
			return fmt.Errorf("%w: ASL_TICK_HZ=%q: %v", ErrInvalidConfig, hz, err)
		}
		c.TickRate = v
	}
	if reject := os.Getenv("ASL_REJECT_WHILE_PLAYING"); reject != "" {
		v, err := strconv.ParseBool(reject)
		if err != nil {
			return fmt.Errorf("%w: ASL_REJECT_WHILE_PLAYING=%q: %v", ErrInvalidConfig, reject, err)
		}
		c.RejectWhilePlaying = v
	}
	return nil
}

// Validate checks the config for values the server cannot run with.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is empty", ErrInvalidConfig)
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%w: port %q", ErrInvalidConfig, c.Port)
	}
	if !(c.TickRate > 0 && c.TickRate <= 1000) {
		return fmt.Errorf("%w: tick rate %v Hz out of range (0, 1000]", ErrInvalidConfig, c.TickRate)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if err := c.Procedural.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// TickInterval converts TickRate to a ticker period.
func (c Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRate)
}

// EffectiveLogLevel folds Debug into LogLevel.
func (c Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}
