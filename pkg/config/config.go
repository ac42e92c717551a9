// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// index engine, the commit lock, and the services around it (Kafka ingestion,
// Redis, PostgreSQL, logging, metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Index      IndexConfig      `yaml:"index"`
	CommitLock CommitLockConfig `yaml:"commitLock"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the health endpoints.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty Host
// disables document status tracking.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexCommit    string `yaml:"indexCommit"`
}

// RedisConfig holds Redis connection parameters used by the distributed
// commit lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// IndexConfig controls the segment merge policy and inversion limits.
type IndexConfig struct {
	DataDir        string        `yaml:"dataDir"`
	NumShards      int           `yaml:"numShards"`
	MergeFactor    int           `yaml:"mergeFactor"`
	MinMergeDocs   int           `yaml:"minMergeDocs"`
	MaxMergeDocs   int           `yaml:"maxMergeDocs"`
	MaxFieldLength int           `yaml:"maxFieldLength"`
	MergeFrequency time.Duration `yaml:"mergeFrequency"`
	MergeInterval  time.Duration `yaml:"mergeInterval"`
}

// CommitLockConfig selects the commit lock implementation. Backend is one
// of "process", "file" or "redis".
type CommitLockConfig struct {
	Backend string        `yaml:"backend"`
	Name    string        `yaml:"name"`
	Timeout time.Duration `yaml:"timeout"`
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8083,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "searchplatform",
			User:            "searchplatform",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "segindex-group",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexCommit:    "index.commit",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Index: IndexConfig{
			DataDir:        "data/index",
			NumShards:      1,
			MergeFactor:    10,
			MinMergeDocs:   10,
			MaxMergeDocs:   1 << 30,
			MaxFieldLength: 10000,
			MergeFrequency: 0,
			MergeInterval:  30 * time.Second,
		},
		CommitLock: CommitLockConfig{
			Backend: "process",
			Name:    "commit.lock",
			Timeout: 10 * time.Second,
			TTL:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects settings the merge policy cannot work with.
func (c *Config) Validate() error {
	ic := c.Index
	if ic.MergeFactor < 2 {
		return fmt.Errorf("index.mergeFactor must be at least 2, got %d", ic.MergeFactor)
	}
	if ic.MinMergeDocs < 1 {
		return fmt.Errorf("index.minMergeDocs must be positive, got %d", ic.MinMergeDocs)
	}
	if ic.MaxMergeDocs < ic.MinMergeDocs {
		return fmt.Errorf("index.maxMergeDocs (%d) is below minMergeDocs (%d)", ic.MaxMergeDocs, ic.MinMergeDocs)
	}
	if ic.MaxFieldLength < 1 {
		return fmt.Errorf("index.maxFieldLength must be positive, got %d", ic.MaxFieldLength)
	}
	if ic.NumShards < 1 {
		return fmt.Errorf("index.numShards must be positive, got %d", ic.NumShards)
	}
	switch c.CommitLock.Backend {
	case "process", "file", "redis":
	default:
		return fmt.Errorf("commitLock.backend %q is not one of process, file, redis", c.CommitLock.Backend)
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SP_INDEX_NUM_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.NumShards = n
		}
	}
	if v := os.Getenv("SP_INDEX_MERGE_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MergeFactor = n
		}
	}
	if v := os.Getenv("SP_INDEX_MIN_MERGE_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MinMergeDocs = n
		}
	}
	if v := os.Getenv("SP_INDEX_MERGE_FREQUENCY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Index.MergeFrequency = d
		}
	}
	if v := os.Getenv("SP_COMMIT_LOCK_BACKEND"); v != "" {
		cfg.CommitLock.Backend = v
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
