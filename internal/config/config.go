// Package config loads emtodo settings from defaults, an optional config
// file, EMTODO_* environment variables and command-line overrides, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: db.path -> EMTODO_DB_PATH.
const EnvPrefix = "EMTODO"

// Config is the full application configuration.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Watch     WatchConfig     `mapstructure:"watch"`
	UI        UIConfig        `mapstructure:"ui"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig configures the remote seed list and its retry policy.
type APIConfig struct {
	URL        string        `mapstructure:"url"`
	PageSize   int           `mapstructure:"page_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	FirstDelay time.Duration `mapstructure:"first_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// UIConfig controls terminal output. Color is auto, always or never.
type UIConfig struct {
	Color string `mapstructure:"color"`
}

// Options control Load.
type Options struct {
	// File is an explicit config file; it must exist when set
	File string
	// Overrides are applied last, keyed like "db.path"
	Overrides map[string]interface{}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", DefaultDBPath())

	v.SetDefault("api.url", "https://dummyjson.com/todos")
	v.SetDefault("api.page_size", 0)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.first_delay", 2*time.Second)
	v.SetDefault("api.max_delay", 30*time.Second)
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("ui.color", "auto")
}

// Load builds the configuration.
//
// Without Options.File the default config file is read when it exists.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := opts.File
	if path == "" {
		if p := DefaultConfigPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the Config has valid field values.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.API.URL == "" {
		return fmt.Errorf("api.url is required")
	}
	if c.API.PageSize < 0 {
		return fmt.Errorf("api.page_size must be >= 0 (got %d)", c.API.PageSize)
	}
	if c.API.MaxRetries < 1 {
		return fmt.Errorf("api.max_retries must be >= 1 (got %d)", c.API.MaxRetries)
	}
	if c.API.FirstDelay <= 0 {
		return fmt.Errorf("api.first_delay must be positive (got %v)", c.API.FirstDelay)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be 0-65535 (got %d)", c.Dashboard.Port)
	}
	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("ui.color must be auto, always or never (got %q)", c.UI.Color)
	}
	return nil
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q: %w", name, err)
	}
	return level, nil
}

// DefaultDBPath returns $XDG_DATA_HOME/emtodo/todos.db, falling back to
// ~/.local/share.
func DefaultDBPath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "emtodo", "todos.db")
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/emtodo/config.yaml, falling
// back to ~/.config.
func DefaultConfigPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "emtodo", "config.yaml")
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
