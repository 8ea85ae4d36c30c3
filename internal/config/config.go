// Package config loads omemo's client and relay settings from TOML or YAML,
// applies OMEMO_* environment overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// DirName is the default home directory name under the user's home.
	DirName = ".omemo"
	// FileName is the default config file name inside Home.
	FileName = "config.toml"
	// DatabaseName is the default SQLite file name inside Home.
	DatabaseName = "omemo.db"
)

// Duration is a time.Duration that reads and writes as "30s", "1m" etc.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete omemo configuration.
type Config struct {
	// Home holds the identity, pre-keys, sessions and database.
	Home     string `toml:"home" yaml:"home"`
	Username string `toml:"username" yaml:"username"`
	RelayURL string `toml:"relay_url" yaml:"relay_url"`
	// Database defaults to Home/omemo.db.
	Database string `toml:"database" yaml:"database"`

	Coordinator CoordinatorConfig `toml:"coordinator" yaml:"coordinator"`
	Relay       RelayConfig       `toml:"relay" yaml:"relay"`
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
}

// CoordinatorConfig tunes the protocol coordinator.
type CoordinatorConfig struct {
	PreKeyCount    int      `toml:"prekey_count" yaml:"prekey_count"`
	RequestTimeout Duration `toml:"request_timeout" yaml:"request_timeout"`
	ExpiryInterval Duration `toml:"expiry_interval" yaml:"expiry_interval"`
}

// RelayConfig covers both the relay server and the client's use of it.
type RelayConfig struct {
	Listen       string   `toml:"listen" yaml:"listen"`
	PollLimit    int      `toml:"poll_limit" yaml:"poll_limit"`
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`
	HTTPTimeout  Duration `toml:"http_timeout" yaml:"http_timeout"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	// Output is "stderr", "stdout" or a file path.
	Output string `toml:"output" yaml:"output"`
}

// DefaultHome returns ~/.omemo, or OMEMO_HOME when set.
func DefaultHome() string {
	if v := os.Getenv("OMEMO_HOME"); v != "" {
		return v
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(dir, DirName)
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Home:     DefaultHome(),
		RelayURL: "http://127.0.0.1:8080",
		Coordinator: CoordinatorConfig{
			PreKeyCount:    100,
			RequestTimeout: Duration(30 * time.Second),
			ExpiryInterval: Duration(time.Second),
		},
		Relay: RelayConfig{
			Listen:       ":8080",
			PollLimit:    100,
			PollInterval: Duration(2 * time.Second),
			HTTPTimeout:  Duration(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// DatabasePath returns the SQLite path.
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.Home, DatabaseName)
}

// Path returns the default config file path inside Home.
func (c *Config) Path() string { return filepath.Join(c.Home, FileName) }

// ApplyEnvOverrides replaces settings with OMEMO_* environment variables.
// Malformed numeric or duration values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OMEMO_HOME"); v != "" {
		c.Home = v
	}
	if v := os.Getenv("OMEMO_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("OMEMO_RELAY_URL"); v != "" {
		c.RelayURL = v
	}
	if v := os.Getenv("OMEMO_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("OMEMO_LISTEN"); v != "" {
		c.Relay.Listen = v
	}
	if v := os.Getenv("OMEMO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("OMEMO_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("OMEMO_PREKEY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Coordinator.PreKeyCount = n
		}
	}
	if v := os.Getenv("OMEMO_REQUEST_TIMEOUT"); v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err == nil {
			c.Coordinator.RequestTimeout = d
		}
	}
}

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
