package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, EnvDevelopment, cfg.Server.Environment)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, int64(9999), cfg.Numbering.MaxBatchSequence)
	assert.Equal(t, int64(99999), cfg.Numbering.MaxUnitSequence)
	assert.Equal(t, 5000, cfg.Numbering.MaxBulk)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traceledger.yaml")
	yaml := []byte(`
server:
  port: 9090
storage:
  backend: sqlite
  sqlite:
    path: /var/lib/traceledger/site.db
numbering:
  max_batch_sequence: 500
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))
	t.Setenv("TRACELEDGER_SERVER_PORT", "9191")
	t.Setenv("TRACELEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/traceledger/site.db", cfg.Storage.SQLite.Path)
	assert.Equal(t, int64(500), cfg.Numbering.Limits().MaxBatchSequence)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Environment: EnvDevelopment},
		Storage:   StorageConfig{Backend: BackendMemory},
		JWT:       JWTConfig{Secret: devJWTSecret},
		Numbering: NumberingConfig{MaxBatchSequence: 9999, MaxUnitSequence: 99999, MaxDailySequence: 99999, MaxBulk: 5000},
		Ledger:    LedgerConfig{MaxBatch: 1000},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "development defaults", mutate: func(*Config) {}},
		{name: "batch bound above width", mutate: func(c *Config) { c.Numbering.MaxBatchSequence = 10000 }, wantErr: true},
		{name: "bulk above unit bound", mutate: func(c *Config) { c.Numbering.MaxBulk = 100000 }, wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "redis" }, wantErr: true},
		{name: "sqlite in memory", mutate: func(c *Config) {
			c.Storage.Backend = BackendSQLite
			c.Storage.SQLite.Path = ":memory:"
		}, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.Storage.Backend = BackendPostgres }, wantErr: true},
		{name: "production with dev secret", mutate: func(c *Config) {
			c.Server.Environment = EnvProduction
			c.Storage.Backend = BackendPostgres
			c.Storage.Postgres.URL = "postgres://db.internal/traceledger"
		}, wantErr: true},
		{name: "production memory backend", mutate: func(c *Config) {
			c.Server.Environment = EnvProduction
			c.JWT.Secret = "s3cure"
		}, wantErr: true},
		{name: "production localhost database", mutate: func(c *Config) {
			c.Server.Environment = EnvStaging
			c.JWT.Secret = "s3cure"
			c.Storage.Backend = BackendPostgres
			c.Storage.Postgres.URL = "postgres://localhost/traceledger"
		}, wantErr: true},
		{name: "production ready", mutate: func(c *Config) {
			c.Server.Environment = EnvProduction
			c.JWT.Secret = "s3cure"
			c.Storage.Backend = BackendPostgres
			c.Storage.Postgres.URL = "postgres://db.internal/traceledger"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
