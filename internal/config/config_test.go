package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collab/pkg/persistence"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "collab.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultClientIDsDiffer(t *testing.T) {
	a, err := Load("")
	require.NoError(t, err)
	b, err := Load("")
	require.NoError(t, err)
	assert.NotEqual(t, a.ClientID, b.ClientID)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.NotZero(t, cfg.ClientID)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, StorageDatabase, cfg.Storage)
	assert.Equal(t, persistence.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, ".collab/collab.db", cfg.Database.Path)
	assert.Equal(t, ".collab/logs", cfg.FileLog.Dir)
	assert.Equal(t, []string{"localhost:19092"}, cfg.Brokers())
	assert.Equal(t, "collab.updates", cfg.Topic())
	assert.Empty(t, cfg.ConsumerGroup())
	assert.Empty(t, cfg.DeadLetterTopic())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
client_id   = 7
log_level   = "debug"
storage     = "filelog"
flush_every = 50

database {
  driver = "postgres"
  host   = "db.internal"
  dbname = "collab"
}

filelog {
  dir = "/var/lib/collab"
}

kafka {
  brokers           = ["broker-1:9092", "broker-2:9092"]
  topic             = "docs.updates"
  consumer_group    = "replica-7"
  dead_letter_topic = "docs.updates.dlq"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), cfg.ClientID)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, StorageFileLog, cfg.Storage)
	assert.Equal(t, 50, cfg.FlushEvery)
	assert.Equal(t, "/var/lib/collab", cfg.FileLog.Dir)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers())
	assert.Equal(t, "docs.updates", cfg.Topic())
	assert.Equal(t, "replica-7", cfg.ConsumerGroup())
	assert.Equal(t, "docs.updates.dlq", cfg.DeadLetterTopic())

	pc := cfg.Database.ToPersistenceConfig()
	assert.Equal(t, persistence.DriverPostgres, pc.Driver)
	assert.Equal(t, "db.internal", pc.Host)
	assert.Equal(t, "collab", pc.DBName)
	assert.Empty(t, pc.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COLLAB_KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("COLLAB_KAFKA_TOPIC", "env.topic")
	t.Setenv("COLLAB_DB_DRIVER", "postgres")

	path := writeConfig(t, `
database {
  dsn = "postgres://localhost/collab"
}
kafka {
  brokers = ["file:9092"]
  topic   = "file.topic"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Brokers())
	assert.Equal(t, "env.topic", cfg.Topic())
	assert.Equal(t, persistence.DriverPostgres, cfg.Database.Driver)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "unknown storage",
			content: `storage = "s3"`,
		},
		{
			name:    "unknown log level",
			content: `log_level = "loud"`,
		},
		{
			name:    "negative flush interval",
			content: `flush_every = -1`,
		},
		{
			name: "postgres without host",
			content: `
database {
  driver = "postgres"
  dbname = "collab"
}`,
		},
		{
			name:    "syntax error",
			content: `client_id = `,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_FileLogSkipsDatabaseValidation(t *testing.T) {
	path := writeConfig(t, `
storage = "filelog"
database {
  driver = "postgres"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageFileLog, cfg.Storage)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
