// Package config loads runtime settings for the console and the archiver.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvDevelopment disables read retries.
const EnvDevelopment = "development"

// Config holds all runtime knobs.
type Config struct {
	Env string `mapstructure:"env"`
	API struct {
		BaseURL string        `mapstructure:"base_url"`
		Prefix  string        `mapstructure:"prefix"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"api"`
	Retry struct {
		Max  int           `mapstructure:"max"`
		Base time.Duration `mapstructure:"base"`
	} `mapstructure:"retry"`
	State struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"state"`
	Download struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"download"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	CSRF struct {
		Strict bool `mapstructure:"strict"`
	} `mapstructure:"csrf"`
	Archive struct {
		DSN      string        `mapstructure:"dsn"`
		Username string        `mapstructure:"username"`
		Password string        `mapstructure:"password"`
		Interval time.Duration `mapstructure:"interval"`
		Filter   struct {
			Type   string `mapstructure:"type"`
			Window string `mapstructure:"window"`
			Limit  int    `mapstructure:"limit"`
		} `mapstructure:"filter"`
	} `mapstructure:"archive"`
}

// Dev reports whether the development profile is active.
func (c *Config) Dev() bool { return c.Env == EnvDevelopment }

// Retries is the read retry budget for the active profile.
func (c *Config) Retries() int {
	if c.Dev() {
		return 0
	}
	return c.Retry.Max
}

// CookiePath is the sealed cookie database.
func (c *Config) CookiePath() string { return filepath.Join(c.State.Dir, "session.db") }

// KeyPath is the master key that seals persisted cookies.
func (c *Config) KeyPath() string { return filepath.Join(c.State.Dir, "master.key") }

// Load reads .env, the optional YAML file at path and C3DS_* variables.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("c3ds")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.API.Timeout <= 0 {
		return nil, fmt.Errorf("api.timeout must be positive, got %s", cfg.API.Timeout)
	}
	if cfg.Retry.Max < 0 {
		return nil, fmt.Errorf("retry.max must not be negative, got %d", cfg.Retry.Max)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.prefix", "/api/v1")
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("retry.max", 3)
	v.SetDefault("retry.base", "500ms")

	v.SetDefault("state.dir", defaultStateDir())
	v.SetDefault("download.dir", ".")
	v.SetDefault("log.level", "info")
	v.SetDefault("csrf.strict", false)

	v.SetDefault("archive.dsn", "")
	v.SetDefault("archive.username", "")
	v.SetDefault("archive.password", "")
	v.SetDefault("archive.interval", "10s")
	v.SetDefault("archive.filter.type", "")
	v.SetDefault("archive.filter.window", "24h")
	v.SetDefault("archive.filter.limit", 200)
}

func defaultStateDir() string {
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		return filepath.Join(x, "c3ds")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".c3ds"
	}
	return filepath.Join(home, ".config", "c3ds")
}
