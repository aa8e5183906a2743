// Package config loads sqlrest settings from a config file, the
// environment and .env files.
//
// Priority, highest first:
//  1. Environment variables (SQLREST_ prefix, dots become underscores)
//  2. Config file (sqlrest.yaml in ., $HOME/.config/sqlrest or --config)
//  3. Defaults
//
// .env and .env.local are loaded into the environment first; .env.local
// overrides .env, and neither overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultConfigFileName is the config file searched for without --config.
const DefaultConfigFileName = "sqlrest"

// Backend names.
const (
	BackendPostgREST = "postgrest"
	BackendSQL       = "sql"
)

// Config holds every sqlrest setting.
type Config struct {
	// Backend selects the postgrest.Client implementation: postgrest or sql.
	Backend string `mapstructure:"backend"`

	PostgREST PostgRESTConfig `mapstructure:"postgrest"`
	SQL       SQLConfig       `mapstructure:"sql"`

	// Catalog is an optional path to a CUE table catalog.
	Catalog string `mapstructure:"catalog"`

	Translator TranslatorConfig `mapstructure:"translator"`
	Log        LogConfig        `mapstructure:"log"`
}

// PostgRESTConfig configures the HTTP backend.
type PostgRESTConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	Schema         string `mapstructure:"schema"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SQLConfig configures the database/sql backend.
type SQLConfig struct {
	// Driver is pgx, postgres, mysql or sqlite3.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	// ApplySchema creates the CRM fixture tables (sqlite3 only).
	ApplySchema bool `mapstructure:"apply_schema"`
}

// TranslatorConfig tunes compilation and the mutation guard.
type TranslatorConfig struct {
	Strict          bool `mapstructure:"strict"`
	StrictMutations bool `mapstructure:"strict_mutations"`
	DefaultLimit    int  `mapstructure:"default_limit"`
	MaxRows         int  `mapstructure:"max_rows"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // text | json
}

var (
	validBackends = []string{BackendPostgREST, BackendSQL}
	validDrivers  = []string{"pgx", "postgres", "mysql", "sqlite3"}
	validLevels   = []string{"debug", "info", "warn", "error"}
	validFormats  = []string{"text", "json"}
)

// Load reads configuration. cfgFile may be empty to search the default
// locations; a missing default file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sqlrest"))
		}
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix("SQLREST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by hosted PostgREST deployments.
	_ = v.BindEnv("postgrest.url", "SQLREST_POSTGREST_URL", "SUPABASE_URL")
	_ = v.BindEnv("postgrest.api_key", "SQLREST_POSTGREST_API_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	_ = v.BindEnv("sql.dsn", "SQLREST_SQL_DSN", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendPostgREST)
	v.SetDefault("postgrest.url", "")
	v.SetDefault("postgrest.api_key", "")
	v.SetDefault("postgrest.schema", "")
	v.SetDefault("postgrest.timeout_seconds", 30)
	v.SetDefault("sql.driver", "pgx")
	v.SetDefault("sql.dsn", "")
	v.SetDefault("sql.apply_schema", false)
	v.SetDefault("catalog", "")
	v.SetDefault("translator.strict", false)
	v.SetDefault("translator.strict_mutations", false)
	v.SetDefault("translator.default_limit", 1000)
	v.SetDefault("translator.max_rows", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadDotEnv loads .env and then .env.local from dir when present.
// Variables already in the environment win over both files.
func LoadDotEnv(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// godotenv.Load never overrides, so loading .env.local first
		// gives it priority over .env.
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Validate fails fast on settings the selected backend cannot run with.
func (c *Config) Validate() error {
	if !slices.Contains(validBackends, c.Backend) {
		return fmt.Errorf("invalid backend %q: must be one of %v", c.Backend, validBackends)
	}

	switch c.Backend {
	case BackendPostgREST:
		if c.PostgREST.URL == "" {
			return fmt.Errorf("postgrest.url is required (set in config or SQLREST_POSTGREST_URL)")
		}
		if c.PostgREST.APIKey == "" {
			return fmt.Errorf("postgrest.api_key is required (set in config or SQLREST_POSTGREST_API_KEY)")
		}
		if c.PostgREST.TimeoutSeconds < 0 {
			return fmt.Errorf("invalid postgrest.timeout_seconds: %d", c.PostgREST.TimeoutSeconds)
		}
	case BackendSQL:
		if !slices.Contains(validDrivers, c.SQL.Driver) {
			return fmt.Errorf("invalid sql.driver %q: must be one of %v", c.SQL.Driver, validDrivers)
		}
		if c.SQL.DSN == "" {
			return fmt.Errorf("sql.dsn is required (set in config or SQLREST_SQL_DSN)")
		}
	}

	if c.Translator.DefaultLimit < 0 || c.Translator.MaxRows < 0 {
		return fmt.Errorf("translator limits must not be negative")
	}
	if c.Translator.MaxRows > 0 && c.Translator.DefaultLimit > c.Translator.MaxRows {
		return fmt.Errorf("translator.default_limit (%d) exceeds translator.max_rows (%d)",
			c.Translator.DefaultLimit, c.Translator.MaxRows)
	}
	if !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid log.level %q: must be one of %v", c.Log.Level, validLevels)
	}
	if !slices.Contains(validFormats, c.Log.Format) {
		return fmt.Errorf("invalid log.format %q: must be one of %v", c.Log.Format, validFormats)
	}
	return nil
}

// Logger builds a slog.Logger writing to stderr per the log settings.
func (c *Config) Logger() *slog.Logger {
	return c.Log.NewLogger(os.Stderr)
}

// NewLogger builds a slog.Logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
