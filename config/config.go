// Package config loads engine tuning from a YAML file with environment
// overrides.
//
// Resolution order: compiled defaults, then the YAML file if present,
// then a .env file, then process environment variables. Every knob has
// a safe default so a zero-config deployment works.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by Load.
const (
	EnvRemoteURL     = "CHAT_REMOTE_URL"
	EnvDataDir       = "CHAT_DATA_DIR"
	EnvMaxRetries    = "CHAT_MAX_RETRIES"
	EnvQueueTick     = "CHAT_QUEUE_TICK"
	EnvLogLevel      = "CHAT_LOG_LEVEL"
	EnvTypingTimeout = "CHAT_TYPING_TIMEOUT"
)

// Config holds all engine tuning knobs.
type Config struct {
	// RemoteURL is the websocket endpoint of the remote store.
	RemoteURL string `yaml:"remote_url"`
	// DataDir is where the SQLite mirror lives.
	DataDir string `yaml:"data_dir"`

	// MaxRetries bounds automatic queue retries per message.
	MaxRetries int `yaml:"max_retries"`
	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff caps the exponential retry delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// QueueTick is the optional periodic drain interval; zero disables
	// the tick and leaves draining to connectivity edges.
	QueueTick time.Duration `yaml:"queue_tick"`

	// TypingDebounce is the idle interval before an automatic
	// typing-stop broadcast.
	TypingDebounce time.Duration `yaml:"typing_debounce"`
	// TypingEntryTTL is the consumer-side staleness window for received
	// typing entries.
	TypingEntryTTL time.Duration `yaml:"typing_entry_ttl"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		DataDir:        ".",
		MaxRetries:     5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     60 * time.Second,
		QueueTick:      30 * time.Second,
		TypingDebounce: 2500 * time.Millisecond,
		TypingEntryTTL: 5 * time.Second,
		LogLevel:       "info",
	}
}

// Load builds the effective configuration from the YAML file at path
// (missing file is fine), a .env file, and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %q: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			logrus.WithFields(logrus.Fields{
				"path": path,
			}).Debug("No config file, using defaults")
		default:
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvRemoteURL); v != "" {
		cfg.RemoteURL = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvQueueTick); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.QueueTick = d
		}
	}
	if v := os.Getenv(EnvTypingTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TypingDebounce = d
		}
	}
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.MaxRetries <= 0 {
		return errors.New("max_retries must be positive")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return errors.New("backoff bounds must be positive and ordered")
	}
	if c.TypingDebounce <= 0 {
		return errors.New("typing_debounce must be positive")
	}
	if c.QueueTick < 0 {
		return errors.New("queue_tick cannot be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}
