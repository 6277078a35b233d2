// Package config loads the identrad configuration from an optional
// identra.yaml plus IDENTRA_-prefixed environment variables, with
// defaults for everything a development setup needs.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/database"
)

// Config is the root configuration of the identrad binary.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Database   database.Config  `mapstructure:"database"`
	Eventstore EventstoreConfig `mapstructure:"eventstore"`
	Projection ProjectionConfig `mapstructure:"projection"`
	IDGen      IDGenConfig      `mapstructure:"idgen"`
	Crypto     CryptoConfig     `mapstructure:"crypto"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EventstoreConfig tunes the event log.
type EventstoreConfig struct {
	// InstanceID is the default tenant for bootstrap operations.
	InstanceID string `mapstructure:"instanceId"`

	MaxPushBatchSize int `mapstructure:"maxPushBatchSize"`

	// EnableSubscriptions publishes committed pushes on the event bus so
	// projection workers wake before the next poll.
	EnableSubscriptions bool `mapstructure:"enableSubscriptions"`
}

// ProjectionConfig tunes the projection workers.
type ProjectionConfig struct {
	PollIntervalMs int `mapstructure:"pollIntervalMs"`
	BatchSize      int `mapstructure:"batchSize"`
	MaxErrorCount  int `mapstructure:"maxErrorCount"`
	LockTTLMs      int `mapstructure:"lockTtlMs"`
}

// PollInterval returns the poll interval as a duration.
func (c ProjectionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// LockTTL returns the lock TTL as a duration.
func (c ProjectionConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMs) * time.Millisecond
}

// IDGenConfig tunes the snowflake generator.
type IDGenConfig struct {
	// MachineID must be unique per writer process, 0..1023.
	MachineID int `mapstructure:"machineId"`

	// Epoch is the custom epoch as RFC3339; empty keeps the built-in one.
	Epoch string `mapstructure:"epoch"`
}

// CryptoConfig holds hashing cost and the encryption key catalog.
type CryptoConfig struct {
	BcryptCost  int               `mapstructure:"bcryptCost"`
	AESKeys     map[string]string `mapstructure:"aesKeys"`
	ActiveKeyID string            `mapstructure:"activeKeyId"`
}

// NATSConfig wires the event bus.
type NATSConfig struct {
	// Embedded starts an in-process nats-server instead of dialing URL.
	Embedded bool `mapstructure:"embedded"`

	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
}

// TelemetryConfig switches OpenTelemetry on or off.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"serviceName"`
	Enabled     bool   `mapstructure:"enabled"`
}

// Load reads identra.yaml (from path when given, else the working
// directory and /etc/identra) and applies IDENTRA_ environment
// overrides. A missing config file is fine; defaults carry a dev setup.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("identra")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/identra")
	}

	v.SetEnvPrefix("IDENTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency beyond what defaults fix.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	if c.IDGen.MachineID < 0 || c.IDGen.MachineID > 1023 {
		return fmt.Errorf("config: idgen.machineId must be in 0..1023, got %d", c.IDGen.MachineID)
	}
	if c.IDGen.Epoch != "" {
		if _, err := time.Parse(time.RFC3339, c.IDGen.Epoch); err != nil {
			return fmt.Errorf("config: idgen.epoch is not RFC3339: %w", err)
		}
	}
	if c.Crypto.BcryptCost < crypto.MinCost || c.Crypto.BcryptCost > crypto.MaxCost {
		return fmt.Errorf("config: crypto.bcryptCost must be in %d..%d, got %d",
			crypto.MinCost, crypto.MaxCost, c.Crypto.BcryptCost)
	}
	if len(c.Crypto.AESKeys) > 0 {
		if _, ok := c.Crypto.AESKeys[c.Crypto.ActiveKeyID]; !ok {
			return fmt.Errorf("config: crypto.activeKeyId %q is not in crypto.aesKeys", c.Crypto.ActiveKeyID)
		}
	}
	if !c.NATS.Embedded && c.NATS.URL == "" && c.Eventstore.EnableSubscriptions {
		return fmt.Errorf("config: eventstore.enableSubscriptions needs nats.embedded or nats.url")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	db := database.DefaultConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.path", db.Path)
	v.SetDefault("database.sslMode", db.SSLMode)
	v.SetDefault("database.poolMin", db.PoolMin)
	v.SetDefault("database.poolMax", db.PoolMax)
	v.SetDefault("database.idleTimeoutMs", db.IdleTimeoutMs)
	v.SetDefault("database.connectionTimeoutMs", db.ConnectionTimeoutMs)

	v.SetDefault("eventstore.instanceId", "")
	v.SetDefault("eventstore.maxPushBatchSize", 100)
	v.SetDefault("eventstore.enableSubscriptions", false)

	v.SetDefault("projection.pollIntervalMs", 1000)
	v.SetDefault("projection.batchSize", 200)
	v.SetDefault("projection.maxErrorCount", 5)
	v.SetDefault("projection.lockTtlMs", 30_000)

	v.SetDefault("idgen.machineId", 0)

	v.SetDefault("crypto.bcryptCost", crypto.DefaultCost)

	v.SetDefault("nats.embedded", false)
	v.SetDefault("nats.subjectPrefix", "identra")

	v.SetDefault("telemetry.serviceName", "identrad")
	v.SetDefault("telemetry.enabled", false)
}
