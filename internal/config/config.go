// Package config resolves connection, cache and logging settings from a
// config file, dotenv files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/omegaalfa/QueryBuilder/query/cache"
	"github.com/omegaalfa/QueryBuilder/runtime/connection"
)

// AppFs is the filesystem configuration and dotenv files are read from
var AppFs = afero.NewOsFs()

// ConfigName is the base name of the config file searched for
const ConfigName = ".querybuilder"

// Cache backends
const (
	CacheMemory = "memory"
	CacheFile   = "file"
	CacheNone   = "none"
)

// environment variables, by config key
var envKeys = map[string]string{
	"database.driver":     "DB_DRIVER",
	"database.host":       "DB_HOST",
	"database.database":   "DB_DATABASE",
	"database.port":       "DB_PORT",
	"database.username":   "DB_USERNAME",
	"database.password":   "DB_PASSWORD",
	"database.charset":    "DB_CHARSET",
	"database.collation":  "DB_COLLATION",
	"database.prefix":     "DB_PREFIX",
	"cache.backend":       "CACHE_BACKEND",
	"cache.dir":           "CACHE_DIR",
	"cache.max_entries":   "CACHE_MAX_ENTRIES",
	"cache.default_ttl":   "CACHE_DEFAULT_TTL",
	"reject_empty_values": "QUERY_REJECT_EMPTY_VALUES",
	"debug":               "DEBUG",
}

// CacheConfig selects the result cache store
type CacheConfig struct {
	Backend    string        `yaml:"backend"`
	Dir        string        `yaml:"dir,omitempty"`
	MaxEntries int           `yaml:"max_entries"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// Config holds the resolved settings
type Config struct {
	Database          connection.Config `yaml:"database"`
	Cache             CacheConfig       `yaml:"cache"`
	RejectEmptyValues bool              `yaml:"reject_empty_values"`
	Debug             bool              `yaml:"debug"`

	// File is the config file that was read, if any
	File string `yaml:"-"`
}

// LoadOptions controls where settings are looked up
type LoadOptions struct {
	// ConfigFile is read instead of searching for .querybuilder.yaml
	ConfigFile string
	// EnvFiles replaces the default .env and .env.local
	EnvFiles []string
	// Dir is the working directory searched first. Defaults to ".".
	Dir string
	// Home overrides the home directory
	Home string
}

// Load resolves the configuration. Environment variables win over the config
// file, which wins over defaults. Variables already set in the process are
// never replaced by .env, while .env.local overrides everything.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	home := opts.Home
	if home == "" {
		var err error
		if home, err = homedir.Dir(); err != nil {
			return nil, err
		}
	}

	if err := loadEnvFiles(opts); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)
	setDefaults(v, home)
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(opts.Dir)
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "querybuilder"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	options, err := databaseOptions(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: connection.Config{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Database:        v.GetString("database.database"),
			Port:            v.GetInt("database.port"),
			Username:        v.GetString("database.username"),
			Password:        v.GetString("database.password"),
			Charset:         v.GetString("database.charset"),
			Collation:       v.GetString("database.collation"),
			Prefix:          v.GetString("database.prefix"),
			Options:         options,
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(v.GetString("cache.backend")),
			Dir:        v.GetString("cache.dir"),
			MaxEntries: v.GetInt("cache.max_entries"),
			DefaultTTL: v.GetDuration("cache.default_ttl"),
		},
		RejectEmptyValues: v.GetBool("reject_empty_values"),
		Debug:             v.GetBool("debug"),
		File:              v.ConfigFileUsed(),
	}

	switch cfg.Cache.Backend {
	case CacheMemory, CacheFile, CacheNone:
	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", cfg.Cache.Backend)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	db := connection.DefaultConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.charset", db.Charset)
	v.SetDefault("database.collation", db.Collation)
	v.SetDefault("database.max_open_conns", db.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", db.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", db.ConnMaxIdleTime)

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.dir", filepath.Join(home, ".cache", "querybuilder"))
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.default_ttl", time.Duration(0))
	v.SetDefault("reject_empty_values", true)
	v.SetDefault("debug", false)
}

// databaseOptions reads driver options from DB_OPTIONS ("k=v,k=v") or from
// the database.options map of the config file
func databaseOptions(v *viper.Viper) (map[string]string, error) {
	if raw, ok := os.LookupEnv("DB_OPTIONS"); ok {
		return ParseOptions(raw)
	}
	options := v.GetStringMapString("database.options")
	if len(options) == 0 {
		return nil, nil
	}
	return options, nil
}

// ParseOptions parses a comma separated list of key=value pairs
func ParseOptions(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	options := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q, expected key=value", pair)
		}
		options[key] = strings.TrimSpace(value)
	}
	return options, nil
}

// loadEnvFiles applies dotenv files found on AppFs. The first file only fills
// unset variables; later files override.
func loadEnvFiles(opts LoadOptions) error {
	files := opts.EnvFiles
	explicit := len(files) > 0
	if !explicit {
		files = []string{filepath.Join(opts.Dir, ".env"), filepath.Join(opts.Dir, ".env.local")}
	}

	for i, name := range files {
		f, err := AppFs.Open(name)
		if err != nil {
			if explicit {
				return fmt.Errorf("failed to open env file: %w", err)
			}
			continue
		}
		vars, err := godotenv.Parse(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", name, err)
		}
		for key, value := range vars {
			if _, set := os.LookupEnv(key); set && i == 0 {
				continue
			}
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// CacheStore builds the configured store, or nil for the "none" backend.
// The file backend is rooted in Cache.Dir on fs.
func (c *Config) CacheStore(fs afero.Fs) (cache.Store, error) {
	switch c.Cache.Backend {
	case CacheNone:
		return nil, nil
	case CacheFile:
		if c.Cache.Dir == "" {
			return nil, fmt.Errorf("cache dir is required for the file backend")
		}
		store, err := cache.NewFileStore(fs, c.Cache.Dir, c.Cache.DefaultTTL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return cache.NewLRUCache(c.Cache.MaxEntries, c.Cache.DefaultTTL), nil
	}
}

// Redacted returns a copy safe for display
func (c *Config) Redacted() *Config {
	out := *c
	out.Database = c.Database.Redacted()
	return &out
}
