package database

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config describes the database connection and its pool limits. The zero
// value is not usable; use DefaultConfig as the starting point.
type Config struct {
	// Driver selects the backend, "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`

	// Path is the sqlite database file, or ":memory:" for tests.
	Path string `mapstructure:"path"`

	// Postgres connection parameters.
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslMode"`

	// Pool limits apply to both drivers.
	PoolMin             int `mapstructure:"poolMin"`
	PoolMax             int `mapstructure:"poolMax"`
	IdleTimeoutMs       int `mapstructure:"idleTimeoutMs"`
	ConnectionTimeoutMs int `mapstructure:"connectionTimeoutMs"`
}

// DefaultConfig is an in-memory sqlite database with modest pool limits.
func DefaultConfig() Config {
	return Config{
		Driver:              DriverSQLite,
		Path:                ":memory:",
		SSLMode:             "disable",
		PoolMin:             2,
		PoolMax:             25,
		IdleTimeoutMs:       300_000,
		ConnectionTimeoutMs: 5_000,
	}
}

// Validate checks the configuration for a usable combination.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("database: sqlite path is required")
		}
	case DriverPostgres:
		if c.Host == "" {
			return fmt.Errorf("database: postgres host is required")
		}
		if c.Database == "" {
			return fmt.Errorf("database: postgres database name is required")
		}
		if c.User == "" {
			return fmt.Errorf("database: postgres user is required")
		}
	default:
		return fmt.Errorf("database: unknown driver %q", c.Driver)
	}
	if c.PoolMax > 0 && c.PoolMin > c.PoolMax {
		return fmt.Errorf("database: poolMin %d exceeds poolMax %d", c.PoolMin, c.PoolMax)
	}
	return nil
}

// IdleTimeout returns the idle timeout as a duration.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// ConnectionTimeout returns the acquisition timeout as a duration.
func (c Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

// postgresDSN renders a keyword/value DSN for pgx.
func (c Config) postgresDSN() string {
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host, port, c.Database, sslMode,
	)
}
