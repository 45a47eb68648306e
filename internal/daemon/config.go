// Package daemon manages the engagement service lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/touchsync/touchsync/internal/app/engagement"
	"github.com/touchsync/touchsync/internal/domain"
)

var validate = validator.New()

// Config holds all daemon configuration.
type Config struct {
	API        APIConfig        `toml:"api"`
	Store      StoreConfig      `toml:"store"`
	Auth       AuthConfig       `toml:"auth"`
	Engagement EngagementConfig `toml:"engagement"`
	Health     HealthConfig     `toml:"health"`
	Logging    LoggingConfig    `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host           string   `toml:"host" validate:"required"`
	Port           int      `toml:"port" validate:"min=1,max=65535"`
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout Duration `toml:"request_timeout"`
	Metrics        bool     `toml:"metrics"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver                string `toml:"driver" validate:"oneof=sqlite firestore memory"`
	Dir                   string `toml:"dir" validate:"required_if=Driver sqlite"`
	FirestoreProject      string `toml:"firestore_project" validate:"required_if=Driver firestore"`
	FirestoreEmulatorHost string `toml:"firestore_emulator_host"`
}

// AuthConfig selects how API callers are identified.
type AuthConfig struct {
	Mode     string `toml:"mode" validate:"oneof=noop hmac jwks"`
	Secret   string `toml:"secret" validate:"required_if=Mode hmac"`
	JWKSURL  string `toml:"jwks_url" validate:"required_if=Mode jwks"`
	Issuer   string `toml:"issuer"`
	Audience string `toml:"audience"`
}

// EngagementConfig tunes the engines.
type EngagementConfig struct {
	Timezone      string                    `toml:"timezone" validate:"required"`
	MaxProfiles   int                       `toml:"max_profiles" validate:"min=1"`
	ProfileIdle   Duration                  `toml:"profile_idle"`
	Goals         domain.GoalTargets        `toml:"goals"`
	Notifications domain.NotificationPolicy `toml:"notifications"`
}

// HealthConfig controls the background health checker.
type HealthConfig struct {
	Interval Duration `toml:"interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

// Duration is a time.Duration that reads and writes as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := touchsyncHome()
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8420,
			CORSOrigins:    []string{"*"},
			RequestTimeout: Duration{15 * time.Second},
			Metrics:        true,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Dir:    filepath.Join(homeDir, "data"),
		},
		Auth: AuthConfig{
			Mode: "noop",
		},
		Engagement: EngagementConfig{
			Timezone:      "Local",
			MaxProfiles:   engagement.DefaultMaxProfiles,
			ProfileIdle:   Duration{engagement.DefaultProfileIdle},
			Goals:         domain.DefaultGoalTargets(),
			Notifications: domain.DefaultNotificationPolicy(),
		},
		Health: HealthConfig{
			Interval: Duration{30 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads config from $TOUCHSYNC_HOME/config.toml over the defaults,
// applies environment overrides, and validates the result.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays TOUCHSYNC_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("TOUCHSYNC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TOUCHSYNC_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("TOUCHSYNC_STORE"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("TOUCHSYNC_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
		if cfg.Auth.Mode == "noop" {
			cfg.Auth.Mode = "hmac"
		}
	}
	if v := os.Getenv("FIRESTORE_EMULATOR_HOST"); v != "" && cfg.Store.FirestoreEmulatorHost == "" {
		cfg.Store.FirestoreEmulatorHost = v
	}
	return nil
}

// Validate checks struct tags plus the pieces tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: engagement.timezone: %w", err)
	}
	return nil
}

// Location resolves the engagement time zone that defines calendar days.
func (c Config) Location() (*time.Location, error) {
	if c.Engagement.Timezone == "" || c.Engagement.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Engagement.Timezone)
}

// SaveConfig writes the config to $TOUCHSYNC_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ConfigPath returns the location of config.toml.
func ConfigPath() string {
	return filepath.Join(touchsyncHome(), "config.toml")
}

// touchsyncHome returns the service data directory.
func touchsyncHome() string {
	if env := os.Getenv("TOUCHSYNC_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".touchsync")
}

// Home is exported for use by other packages.
func Home() string {
	return touchsyncHome()
}
