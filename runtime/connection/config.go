// Package connection opens and memoizes the database handle used to execute
// statements and runs transactional units of work on it.
package connection

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config describes how to reach the database. It is read-only once a Provider
// has been created from it.
type Config struct {
	Driver    string            `mapstructure:"driver" yaml:"driver"`
	Host      string            `mapstructure:"host" yaml:"host"`
	Database  string            `mapstructure:"database" yaml:"database"`
	Port      int               `mapstructure:"port" yaml:"port"`
	Username  string            `mapstructure:"username" yaml:"username"`
	Password  string            `mapstructure:"password" yaml:"password"`
	Charset   string            `mapstructure:"charset" yaml:"charset"`
	Collation string            `mapstructure:"collation" yaml:"collation"`
	Prefix    string            `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Options   map[string]string `mapstructure:"options" yaml:"options,omitempty"`

	// Pool limits applied to the memoized handle
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// DefaultConfig returns a MySQL configuration on localhost with the default
// character set, collation and pool limits
func DefaultConfig() Config {
	return Config{
		Driver:          "mysql",
		Host:            "127.0.0.1",
		Charset:         "utf8",
		Collation:       "utf8_unicode_ci",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Kind returns the normalized driver family: mysql, postgres or sqlite
func (c Config) Kind() string {
	switch strings.ToLower(c.Driver) {
	case "mysql", "mariadb":
		return "mysql"
	case "pgsql", "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

// DriverName maps the configured driver onto a registered database/sql driver.
// "sqlite3" selects the cgo driver and "sqlite" the pure Go one.
func (c Config) DriverName() (string, error) {
	switch strings.ToLower(c.Driver) {
	case "mysql", "mariadb":
		return "mysql", nil
	case "pgsql", "postgres", "postgresql":
		return "postgres", nil
	case "sqlite3":
		return "sqlite3", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported driver: %q", c.Driver)
	}
}

// Validate reports missing settings
func (c Config) Validate() error {
	if _, err := c.DriverName(); err != nil {
		return err
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Kind() != "sqlite" && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	switch c.Kind() {
	case "mysql":
		return 3306
	case "postgres":
		return 5432
	}
	return 0
}

// DSN builds the data source name for the configured driver
func (c Config) DSN() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	switch c.Kind() {
	case "mysql":
		return c.mysqlDSN(), nil
	case "postgres":
		return c.postgresDSN(), nil
	default:
		return c.sqliteDSN(), nil
	}
}

func (c Config) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host + ":" + strconv.Itoa(c.port())
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Collation = c.Collation
	cfg.Params = map[string]string{}
	if c.Charset != "" {
		cfg.Params["charset"] = c.Charset
	}
	for k, v := range c.Options {
		cfg.Params[k] = v
	}
	return cfg.FormatDSN()
}

func (c Config) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + strconv.Itoa(c.port()),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	q := url.Values{}
	if c.Charset != "" {
		q.Set("client_encoding", strings.ToUpper(c.Charset))
	}
	for k, v := range c.Options {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c Config) sqliteDSN() string {
	if len(c.Options) == 0 {
		return c.Database
	}
	keys := make([]string, 0, len(c.Options))
	for k := range c.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = url.QueryEscape(k) + "=" + url.QueryEscape(c.Options[k])
	}
	sep := "?"
	if strings.Contains(c.Database, "?") {
		sep = "&"
	}
	return c.Database + sep + strings.Join(parts, "&")
}

// Redacted returns a copy with the password masked, for display
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "******"
	}
	return c
}
