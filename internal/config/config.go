package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultBatchSize = 1000

// Config holds the runtime configuration of the indexing pipeline.
type Config struct {
	KafkaBrokers         []string      `env:"KAFKA_BROKERS,notEmpty" envSeparator:","`
	KafkaTopic           string        `env:"KAFKA_TOPIC" envDefault:"indexing"`
	KafkaGroupID         string        `env:"KAFKA_GROUP_ID" envDefault:"indexer-group"`
	KafkaDeadLetterTopic string        `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:"indexing-dead-letter"`
	ElasticURLs          []string      `env:"ELASTIC_URLS,notEmpty" envSeparator:","`
	ElasticIndexPrefix   string        `env:"ELASTIC_INDEX_PREFIX" envDefault:"shop"`
	IndexLanguages       []string      `env:"INDEX_LANGUAGES" envSeparator:","`
	WorkerCount          int           `env:"WORKER_COUNT" envDefault:"5"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	StorePath            string        `env:"STORE_PATH" envDefault:"data/store.db"`
	StatePath            string        `env:"STATE_PATH" envDefault:"data/state.db"`
	StateLockTimeout     time.Duration `env:"STATE_LOCK_TIMEOUT" envDefault:"5s"`
	BatchSize            int           `env:"BATCH_SIZE" envDefault:"1000"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT" envDefault:"10s"`
	SearchTimeout        time.Duration `env:"SEARCH_TIMEOUT" envDefault:"30s"`
	MaxAttempts          int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff         time.Duration `env:"RETRY_BACKOFF" envDefault:"500ms"`
	DedupWindow          time.Duration `env:"DEDUP_WINDOW" envDefault:"5m"`
	DedupCapacity        int           `env:"DEDUP_CAPACITY" envDefault:"10000"`
	MetricsAddr          string        `env:"METRICS_ADDR" envDefault:":9090"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.DedupCapacity < 0 {
		cfg.DedupCapacity = 0
	}
	return &cfg, nil
}
