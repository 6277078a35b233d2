package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/config"
	"github.com/identra/identra/pkg/database"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 200, cfg.Projection.BatchSize)
	assert.Equal(t, 1000, cfg.Projection.PollIntervalMs)
	assert.Equal(t, "identra", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 12, cfg.Crypto.BcryptCost)
	assert.Equal(t, 100, cfg.Eventstore.MaxPushBatchSize)
	assert.False(t, cfg.Eventstore.EnableSubscriptions)
}

func TestLoadFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
log:
  level: debug
  format: json
database:
  driver: postgres
  host: db.internal
  database: identra
  user: identra
projection:
  batchSize: 50
crypto:
  bcryptCost: 10
  activeKeyId: k1
  aesKeys:
    k1: c29tZS1iYXNlNjQta2V5LXRoYXQtaXMtbG9uZw==
`))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 50, cfg.Projection.BatchSize)
	assert.Equal(t, "k1", cfg.Crypto.ActiveKeyID)
	assert.NotEmpty(t, cfg.Crypto.AESKeys["k1"])
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("IDENTRA_LOG_LEVEL", "warn")
	t.Setenv("IDENTRA_PROJECTION_BATCHSIZE", "17")

	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 17, cfg.Projection.BatchSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad log format", yaml: "log:\n  format: xml\n"},
		{name: "machine id out of range", yaml: "idgen:\n  machineId: 4096\n"},
		{name: "bad epoch", yaml: "idgen:\n  epoch: yesterday\n"},
		{name: "bcrypt cost out of range", yaml: "crypto:\n  bcryptCost: 99\n"},
		{name: "active key not in catalog", yaml: "crypto:\n  activeKeyId: k2\n  aesKeys:\n    k1: abc\n"},
		{name: "subscriptions without nats", yaml: "eventstore:\n  enableSubscriptions: true\n"},
		{name: "postgres without host", yaml: "database:\n  driver: postgres\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.yaml))
			assert.Error(t, err, "invalid config accepted")
		})
	}
}
