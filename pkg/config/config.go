// Package config loads and validates run configuration from YAML files with
// environment-variable overrides. Command-line flags are applied on top by
// the CLI.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

// MaxWidth bounds the phrase width accepted by Validate.
const MaxWidth = 16

// Config is the top-level run configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Report   ReportConfig   `yaml:"report"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Export   ExportConfig   `yaml:"export"`
}

// PipelineConfig controls tokenisation width, parallelism and spilling.
type PipelineConfig struct {
	Width            int    `yaml:"width"`
	Workers          int    `yaml:"workers"`
	SpillWorkers     int    `yaml:"spillWorkers"`
	SpillThreshold   int    `yaml:"spillThreshold"`
	SpillCompression string `yaml:"spillCompression"`
	FoldChunk        int    `yaml:"foldChunk"`
	MaxDepth         int    `yaml:"maxDepth"`
	TempDir          string `yaml:"tempDir"`
}

// ReportConfig controls the ranked output file.
type ReportConfig struct {
	Output    string `yaml:"output"`
	BodyLimit int    `yaml:"bodyLimit"`
	SortTies  bool   `yaml:"sortTies"`
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

// ExportConfig groups the optional sinks that receive the ranked table once
// the report file has been written.
type ExportConfig struct {
	TopK             int               `yaml:"topK"`
	BatchSize        int               `yaml:"batchSize"`
	BreakerThreshold int               `yaml:"breakerThreshold"`
	Retry            RetryConfig       `yaml:"retry"`
	Postgres         PostgresConfig    `yaml:"postgres"`
	Redis            RedisConfig       `yaml:"redis"`
	Kafka            KafkaConfig       `yaml:"kafka"`
	ObjectStore      ObjectStoreConfig `yaml:"objectStore"`
}

// RetryConfig controls backoff for exporter writes.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	Timeout      time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ObjectStoreConfig holds S3-compatible object store settings.
type ObjectStoreConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
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
	return cfg, nil
}

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Width:            1,
			Workers:          runtime.NumCPU(),
			SpillWorkers:     runtime.NumCPU(),
			SpillThreshold:   1_000_000,
			SpillCompression: "none",
			FoldChunk:        8,
			MaxDepth:         512,
		},
		Report: ReportConfig{
			Output:    "out.txt",
			BodyLimit: 1_000_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Export: ExportConfig{
			TopK:             1000,
			BatchSize:        500,
			BreakerThreshold: 3,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Timeout:      30 * time.Second,
			},
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "ngrams",
				User:            "ngrams",
				SSLMode:         "disable",
				Table:           "phrase_counts",
				MaxOpenConns:    4,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  4,
				KeyPrefix: "ngrams:",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "ngram-reports",
			},
			ObjectStore: ObjectStoreConfig{
				Endpoint: "localhost:9000",
				Bucket:   "ngram-reports",
				Prefix:   "runs/",
			},
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	switch {
	case p.Width < 1 || p.Width > MaxWidth:
		return fmt.Errorf("%w: width %d outside 1..%d", apperrors.ErrConfig, p.Width, MaxWidth)
	case p.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", apperrors.ErrConfig, p.Workers)
	case p.SpillWorkers < 1:
		return fmt.Errorf("%w: spillWorkers must be positive, got %d", apperrors.ErrConfig, p.SpillWorkers)
	case p.SpillThreshold < 1:
		return fmt.Errorf("%w: spillThreshold must be positive, got %d", apperrors.ErrConfig, p.SpillThreshold)
	case p.FoldChunk < 1:
		return fmt.Errorf("%w: foldChunk must be positive, got %d", apperrors.ErrConfig, p.FoldChunk)
	case p.MaxDepth < 1:
		return fmt.Errorf("%w: maxDepth must be positive, got %d", apperrors.ErrConfig, p.MaxDepth)
	case c.Report.Output == "":
		return fmt.Errorf("%w: output path is empty", apperrors.ErrConfig)
	case c.Report.BodyLimit < 0:
		return fmt.Errorf("%w: bodyLimit must not be negative", apperrors.ErrConfig)
	case c.Export.BatchSize < 1:
		return fmt.Errorf("%w: export batchSize must be positive, got %d", apperrors.ErrConfig, c.Export.BatchSize)
	}
	switch p.SpillCompression {
	case "none", "zstd":
	default:
		return fmt.Errorf("%w: unknown spill compression %q", apperrors.ErrConfig, p.SpillCompression)
	}
	return nil
}

// applyEnvOverrides reads NG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt("NG_WIDTH", &cfg.Pipeline.Width)
	setInt("NG_WORKERS", &cfg.Pipeline.Workers)
	setInt("NG_SPILL_WORKERS", &cfg.Pipeline.SpillWorkers)
	setInt("NG_SPILL_THRESHOLD", &cfg.Pipeline.SpillThreshold)
	setInt("NG_METRICS_PORT", &cfg.Metrics.Port)
	if v := os.Getenv("NG_SPILL_COMPRESSION"); v != "" {
		cfg.Pipeline.SpillCompression = v
	}
	if v := os.Getenv("NG_TEMP_DIR"); v != "" {
		cfg.Pipeline.TempDir = v
	}
	if v := os.Getenv("NG_OUTPUT"); v != "" {
		cfg.Report.Output = v
	}
	if v := os.Getenv("NG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NG_POSTGRES_HOST"); v != "" {
		cfg.Export.Postgres.Host = v
	}
	if v := os.Getenv("NG_POSTGRES_PASSWORD"); v != "" {
		cfg.Export.Postgres.Password = v
	}
	if v := os.Getenv("NG_REDIS_ADDR"); v != "" {
		cfg.Export.Redis.Addr = v
	}
	if v := os.Getenv("NG_REDIS_PASSWORD"); v != "" {
		cfg.Export.Redis.Password = v
	}
	if v := os.Getenv("NG_KAFKA_BROKERS"); v != "" {
		cfg.Export.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NG_OBJSTORE_ENDPOINT"); v != "" {
		cfg.Export.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("NG_OBJSTORE_ACCESS_KEY"); v != "" {
		cfg.Export.ObjectStore.AccessKeyID = v
	}
	if v := os.Getenv("NG_OBJSTORE_SECRET_KEY"); v != "" {
		cfg.Export.ObjectStore.SecretAccessKey = v
	}
}
