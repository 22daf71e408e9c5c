package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MOSAIC_* environment variable overrides, and
// returns the final Config. Passing an empty path (or a missing file) runs
// on defaults plus environment overrides. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MOSAIC_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "MOSAIC_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MOSAIC_SERVER_CORS_ORIGINS")

	setStr(&cfg.Database.DSN, "MOSAIC_DATABASE_DSN")
	setInt(&cfg.Database.PoolMaxConns, "MOSAIC_DATABASE_POOL_MAX_CONNS")
	setBool(&cfg.Database.RunMigrations, "MOSAIC_DATABASE_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "MOSAIC_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MOSAIC_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOSAIC_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOSAIC_REDIS_DB")

	setInt64(&cfg.Reserve.MaxMultiplier, "MOSAIC_RESERVE_MAX_MULTIPLIER")

	setStr(&cfg.LogLevel, "MOSAIC_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
