// Package config loads the collab operator configuration from an HCL file.
package config

import (
	"fmt"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hashicorp-forge/collab/pkg/collab"
	"github.com/hashicorp-forge/collab/pkg/persistence"
)

// Storage backends.
const (
	StorageDatabase = "database"
	StorageFileLog  = "filelog"
)

const (
	defaultLogLevel   = "info"
	defaultSQLitePath = ".collab/collab.db"
	defaultLogDir     = ".collab/logs"
	defaultBroker     = "localhost:19092"
	defaultTopic      = "collab.updates"
)

// Config is the root configuration.
type Config struct {
	// ClientID identifies this replica in the documents it edits. Replicas
	// editing the same document must use distinct ids; when unset a random
	// one is picked.
	ClientID uint64 `hcl:"client_id,optional"`

	LogLevel string `hcl:"log_level,optional"`

	// Storage selects the document store: "database" (default) or "filelog".
	Storage string `hcl:"storage,optional"`

	// FlushEvery compacts a document's log after this many updates. Zero
	// never compacts.
	FlushEvery int `hcl:"flush_every,optional"`

	Database *Database `hcl:"database,block"`
	FileLog  *FileLog  `hcl:"filelog,block"`
	Kafka    *Kafka    `hcl:"kafka,block"`
}

// Database configures the SQL document store.
type Database struct {
	Driver   string `hcl:"driver,optional"`
	Path     string `hcl:"path,optional"`
	DSN      string `hcl:"dsn,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`

	// SkipAutoMigrate expects the schema to be managed by collab-migrate.
	SkipAutoMigrate bool `hcl:"skip_auto_migrate,optional"`
}

// FileLog configures the file document store.
type FileLog struct {
	Dir string `hcl:"dir,optional"`
}

// Kafka configures update broadcasting.
type Kafka struct {
	Brokers       []string `hcl:"brokers,optional"`
	Topic         string   `hcl:"topic,optional"`
	ConsumerGroup string   `hcl:"consumer_group,optional"`

	// DeadLetterTopic receives remote updates that fail to apply. Empty
	// disables dead lettering.
	DeadLetterTopic string `hcl:"dead_letter_topic,optional"`
}

// Load parses the HCL file at path. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.ClientID == 0 {
		c.ClientID = collab.NewClientID()
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Storage == "" {
		c.Storage = StorageDatabase
	}
	if c.Database == nil {
		c.Database = &Database{}
	}
	if driver := os.Getenv("COLLAB_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if c.Database.Driver == "" {
		c.Database.Driver = persistence.DriverSQLite
	}
	if c.Database.Driver == persistence.DriverSQLite && c.Database.Path == "" {
		c.Database.Path = defaultSQLitePath
	}
	if c.FileLog == nil {
		c.FileLog = &FileLog{}
	}
	if c.FileLog.Dir == "" {
		c.FileLog.Dir = defaultLogDir
	}
}

// Validate checks the config after defaults are applied.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LogLevel, validation.By(func(any) error {
			if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
				return fmt.Errorf("unknown log level %q", c.LogLevel)
			}
			return nil
		})),
		validation.Field(&c.Storage, validation.In(StorageDatabase, StorageFileLog)),
		validation.Field(&c.FlushEvery, validation.Min(0)),
		validation.Field(&c.Database, validation.By(func(any) error {
			if c.Storage != StorageDatabase {
				return nil
			}
			return c.Database.ToPersistenceConfig().Validate()
		})),
	)
}

// ToPersistenceConfig converts the database block for persistence.Connect.
func (d *Database) ToPersistenceConfig() persistence.Config {
	return persistence.Config{
		Driver:   d.Driver,
		Path:     d.Path,
		DSN:      d.DSN,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.DBName,
		SSLMode:  d.SSLMode,

		SkipAutoMigrate: d.SkipAutoMigrate,
	}
}

// Brokers returns the Kafka broker addresses.
// It checks environment variables first, then falls back to config, then default.
func (c *Config) Brokers() []string {
	// Try environment variable first
	if brokers := os.Getenv("COLLAB_KAFKA_BROKERS"); brokers != "" {
		return strings.Split(brokers, ",")
	}

	// Fall back to config
	if c.Kafka != nil && len(c.Kafka.Brokers) > 0 {
		return c.Kafka.Brokers
	}

	// Default
	return []string{defaultBroker}
}

// Topic returns the topic updates are broadcast on.
// It checks environment variables first, then falls back to config, then default.
func (c *Config) Topic() string {
	if topic := os.Getenv("COLLAB_KAFKA_TOPIC"); topic != "" {
		return topic
	}
	if c.Kafka != nil && c.Kafka.Topic != "" {
		return c.Kafka.Topic
	}
	return defaultTopic
}

// ConsumerGroup returns the consumer group of this replica. Empty means the
// subscriber picks one per replica.
func (c *Config) ConsumerGroup() string {
	if c.Kafka != nil {
		return c.Kafka.ConsumerGroup
	}
	return ""
}

// DeadLetterTopic returns the dead letter topic, or "" when disabled.
func (c *Config) DeadLetterTopic() string {
	if c.Kafka != nil {
		return c.Kafka.DeadLetterTopic
	}
	return ""
}
