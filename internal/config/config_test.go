package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaicfund/mosaic-engine/internal/config"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Reserve.MaxMultiplier != 10 {
		t.Errorf("max multiplier = %d, want 10", cfg.Reserve.MaxMultiplier)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "debug"

[server]
port = 9000

[reserve]
max_multiplier = 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MOSAIC_SERVER_PORT", "9100")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Reserve.MaxMultiplier != 5 {
		t.Errorf("max multiplier = %d, want 5", cfg.Reserve.MaxMultiplier)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Port = 0
	cfg.LogLevel = "loud"
	cfg.Redis.Enabled = true // no database dsn

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
