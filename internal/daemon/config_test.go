package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("TOUCHSYNC_HOME", t.TempDir())
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8420)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Engagement.Goals.Touches != 5 || cfg.Engagement.Goals.Responses != 3 || cfg.Engagement.Goals.QualitySeconds != 60 {
		t.Errorf("Engagement.Goals = %+v", cfg.Engagement.Goals)
	}
	if cfg.Engagement.MaxProfiles != 10_000 || cfg.Engagement.ProfileIdle.Duration != 10*time.Minute {
		t.Errorf("profile cache = %d / %v", cfg.Engagement.MaxProfiles, cfg.Engagement.ProfileIdle)
	}
	if cfg.Engagement.Notifications.MaxPerDay != 5 {
		t.Errorf("Notifications.MaxPerDay = %d, want 5", cfg.Engagement.Notifications.MaxPerDay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TOUCHSYNC_HOME", home)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Store.Dir != filepath.Join(home, "data") {
		t.Errorf("Store.Dir = %q", cfg.Store.Dir)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	t.Setenv("TOUCHSYNC_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9001
	cfg.Engagement.Timezone = "UTC"
	cfg.Engagement.Goals.Touches = 8
	cfg.Health.Interval = Duration{45 * time.Second}

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("config round trip (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TOUCHSYNC_HOME", home)
	body := "[api]\nport = 7000\n\n[engagement.goals]\ntouches = 2\n"
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 7000 || cfg.API.Host != "127.0.0.1" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Engagement.Goals.Touches != 2 || cfg.Engagement.Goals.Responses != 3 {
		t.Errorf("Goals = %+v", cfg.Engagement.Goals)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TOUCHSYNC_HOME", t.TempDir())
	t.Setenv("TOUCHSYNC_PORT", "9100")
	t.Setenv("TOUCHSYNC_STORE", "MEMORY")
	t.Setenv("TOUCHSYNC_AUTH_SECRET", "s3cret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want 9100", cfg.API.Port)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Auth.Mode != "hmac" || cfg.Auth.Secret != "s3cret" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "Driver"},
		{"firestore without project", func(c *Config) { c.Store.Driver = "firestore" }, "FirestoreProject"},
		{"hmac without secret", func(c *Config) { c.Auth.Mode = "hmac" }, "Secret"},
		{"jwks without url", func(c *Config) { c.Auth.Mode = "jwks" }, "JWKSURL"},
		{"zero port", func(c *Config) { c.API.Port = 0 }, "Port"},
		{"zero profile cap", func(c *Config) { c.Engagement.MaxProfiles = 0 }, "MaxProfiles"},
		{"zero goal", func(c *Config) { c.Engagement.Goals.Responses = 0 }, "Responses"},
		{"bad quiet hour", func(c *Config) { c.Engagement.Notifications.QuietStart = "25:00" }, "QuietStart"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"unknown timezone", func(c *Config) { c.Engagement.Timezone = "Mars/Olympus" }, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q should mention %q", err, tt.errMsg)
			}
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("Duration = %v", d.Duration)
	}
	out, _ := d.MarshalText()
	if string(out) != "1m30s" {
		t.Errorf("MarshalText() = %q", out)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected parse error")
	}
}
