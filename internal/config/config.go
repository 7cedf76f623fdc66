// Package config loads server configuration from a TOML file with
// environment-variable overrides.
//
// PRECEDENCE (lowest to highest): defaults → TOML file → CODECLASS_* env vars.
// The file is optional: a classroom deployment can run entirely from env
// vars, and a bare `codeclass serve` with CODECLASS_JWT_SECRET set just works.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied before the file and environment are consulted.
const (
	DefaultPort       = 8080
	DefaultDBPath     = "data/codeclass.db"
	DefaultUploadRoot = "data/uploads"
	DefaultTokenTTL   = 12 * time.Hour
	DefaultLogLevel   = "info"
)

// Config is the full server configuration.
type Config struct {
	Port       int      `toml:"port"`
	DBPath     string   `toml:"db_path"`
	UploadRoot string   `toml:"upload_root"`
	JWTSecret  string   `toml:"jwt_secret"`
	TokenTTL   Duration `toml:"token_ttl"`
	BcryptCost int      `toml:"bcrypt_cost"` // 0 means the bcrypt default
	LogLevel   string   `toml:"log_level"`   // debug | info | warn | error
}

// Duration wraps time.Duration so TOML can carry values like "12h".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	return &Config{
		Port:       DefaultPort,
		DBPath:     DefaultDBPath,
		UploadRoot: DefaultUploadRoot,
		TokenTTL:   Duration(DefaultTokenTTL),
		LogLevel:   DefaultLogLevel,
	}
}

// Read decodes a Config from the provided reader on top of the defaults.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return cfg, nil
}

// Load reads the optional config file at path, applies environment
// overrides, and validates the result. An empty path skips the file;
// a missing file at a non-empty path is an error (the operator asked
// for a file that isn't there).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: opening %s: %w", path, err)
		}
		defer f.Close()
		if cfg, err = Read(f); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CODECLASS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid CODECLASS_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("CODECLASS_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CODECLASS_UPLOAD_ROOT"); v != "" {
		c.UploadRoot = v
	}
	if v := os.Getenv("CODECLASS_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("CODECLASS_TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid CODECLASS_TOKEN_TTL %q: %w", v, err)
		}
		c.TokenTTL = Duration(ttl)
	}
	if v := os.Getenv("CODECLASS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks the configuration is runnable.
//
// The token TTL is bounded to 1–24 hours: long enough for a class session,
// short enough that a leaked token on a shared lab machine goes stale the
// same day.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: jwt_secret must be at least 16 characters (set CODECLASS_JWT_SECRET)")
	}
	ttl := time.Duration(c.TokenTTL)
	if ttl < time.Hour || ttl > 24*time.Hour {
		return fmt.Errorf("config: token_ttl %s outside the allowed 1h-24h range", ttl)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if c.UploadRoot == "" {
		return fmt.Errorf("config: upload_root must not be empty")
	}
	return nil
}
